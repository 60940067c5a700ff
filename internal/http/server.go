// README: API gateway; builds the gin engine and delegates to module services.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/simaodiazz/curvas-humildes-server/internal/http/handlers"
	"github.com/simaodiazz/curvas-humildes-server/internal/http/middleware"
	"github.com/simaodiazz/curvas-humildes-server/internal/infra"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ServerDeps struct {
	Bookings handlers.BookingService
	Fares    handlers.FareService
	Vouchers handlers.VoucherService
	Tariffs  handlers.TariffService
	Verifier infra.TokenVerifier

	// Optional.
	Metrics  middleware.RequestObserver
	Gatherer prometheus.Gatherer
	DB       Pinger
	Logger   *zap.Logger

	VATRate       float64
	CORSOrigins   []string
	RatePerMinute int
	RateBurst     int
}

type Server struct {
	deps    ServerDeps
	limiter *middleware.RateLimiter
}

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{deps: deps}
	if deps.RatePerMinute > 0 {
		s.limiter = middleware.NewRateLimiter(deps.RatePerMinute, deps.RateBurst)
	}
	return s
}

// Routes returns the fully wired engine.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(s.deps.Logger),
		middleware.Logging(s.deps.Logger),
		middleware.CORS(s.deps.CORSOrigins),
	)
	if s.deps.Metrics != nil {
		r.Use(middleware.Metrics(s.deps.Metrics))
	}

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	s.registerAPI(r.Group("/api"))
	return r
}

func (s *Server) health(c *gin.Context) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.deps.Logger.Warn("health check: database unreachable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// limited wraps fare-spending routes with the per-client limiter when one is configured.
func (s *Server) limited() []gin.HandlerFunc {
	if s.limiter == nil {
		return nil
	}
	return []gin.HandlerFunc{s.limiter.Middleware()}
}
