// README: Entry point; loads config, wires services and serves the booking API until signalled.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/simaodiazz/curvas-humildes-server/internal/cache"
	"github.com/simaodiazz/curvas-humildes-server/internal/clock"
	"github.com/simaodiazz/curvas-humildes-server/internal/config"
	httptransport "github.com/simaodiazz/curvas-humildes-server/internal/http"
	"github.com/simaodiazz/curvas-humildes-server/internal/infra"
	"github.com/simaodiazz/curvas-humildes-server/internal/maps"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/availability"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/booking"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/driver"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/pricing"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/tariff"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Log, cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DB.MigrateOnStart {
		if err := infra.Migrate(cfg.DB.DSN); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer dbPool.Close()

	var shared cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() { _ = redisClient.Close() }()
		shared = cache.NewRedis(redisClient, "curvas")
	default:
		shared = cache.NewMemory(cfg.Cache.Sweep)
	}
	defer func() { _ = shared.Close() }()

	metrics := infra.NewMetrics(prometheus.DefaultRegisterer)

	provider, providerErr := maps.NewProvider(cfg.Maps)
	if providerErr != nil {
		logger.Warn("maps provider unavailable; fare estimation will fail", zap.Error(providerErr))
	}
	routes := maps.NewRouteClient(provider, providerErr, shared, maps.Options{
		TTL:      cfg.Cache.RouteTTL,
		Timeout:  cfg.Maps.Timeout,
		Logger:   logger.Named("maps"),
		Observer: metrics,
	})

	tariffSvc := tariff.NewService(tariff.NewStore(dbPool), shared, cfg.Cache.TariffTTL, cfg.Fare.Defaults, logger.Named("tariff"))
	pricingSvc := pricing.NewService(routes, tariffSvc, cfg.Fare.PredefinedRoutes, cfg.Fare.VATRate, logger.Named("pricing"))

	voucherStore := voucher.NewStore(dbPool)
	voucherSvc := voucher.NewService(voucherStore, clock.System(), cfg.Booking.Location, logger.Named("voucher"))

	driverStore := driver.NewStore(dbPool)
	bookingStore := booking.NewStore(dbPool)
	checker := availability.NewChecker(driverStore, bookingStore, tariffSvc, logger.Named("availability"))

	bookingSvc := booking.NewService(booking.Deps{
		Store:    bookingStore,
		UoW:      booking.NewPgUnitOfWork(dbPool, bookingStore, driverStore, voucherStore),
		Fares:    pricingSvc,
		Vouchers: voucherSvc,
		Checker:  checker,
	}, booking.Options{
		Location:  cfg.Booking.Location,
		PastGrace: cfg.Booking.PastGrace,
		Observer:  metrics,
		Logger:    logger.Named("booking"),
	})

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Bookings:      bookingSvc,
		Fares:         bookingSvc,
		Vouchers:      voucherSvc,
		Tariffs:       tariffSvc,
		Verifier:      infra.NewJWTVerifier(cfg.Auth.JWTSecret),
		Metrics:       metrics,
		DB:            dbPool,
		Logger:        logger.Named("http"),
		VATRate:       cfg.Fare.VATRate,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		RatePerMinute: cfg.HTTP.RatePerMinute,
		RateBurst:     cfg.HTTP.RateBurst,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Env))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", zap.Error(err))
	}
	logger.Info("stopped")
}
