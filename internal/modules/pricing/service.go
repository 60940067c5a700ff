// README: Pricing service computes fare estimates from tariff settings, flat-rate routes and live route lookups.
package pricing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/maps"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/tariff"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

// DefaultPredefinedDuration is used for a flat-rate route when the route
// lookup for its duration fails.
const DefaultPredefinedDuration = 60

type RouteResolver interface {
	ResolveRoute(ctx context.Context, pickup, dropoff string) (maps.Route, error)
}

type TariffSource interface {
	GetActive(ctx context.Context) (tariff.Settings, error)
}

type Service struct {
	routes     RouteResolver
	tariffs    TariffSource
	predefined map[string]types.Money
	vatRate    float64
	log        *zap.Logger
}

// NewService normalizes the keys of predefined ("pickup#dropoff" -> euros) so
// lookups match however the route was typed in configuration.
func NewService(routes RouteResolver, tariffs TariffSource, predefined map[string]float64, vatRate float64, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	table := make(map[string]types.Money, len(predefined))
	for k, v := range predefined {
		pickup, dropoff, _ := strings.Cut(k, "#")
		table[maps.RouteKey(pickup, dropoff)] = types.FromFloat(v)
	}
	return &Service{routes: routes, tariffs: tariffs, predefined: table, vatRate: vatRate, log: log}
}

func (s *Service) VATRate() float64 { return s.vatRate }

// PredefinedPrice returns the flat pre-VAT price for a route, if any.
func (s *Service) PredefinedPrice(pickup, dropoff string) (types.Money, bool) {
	m, ok := s.predefined[maps.RouteKey(pickup, dropoff)]
	return m, ok
}

func (s *Service) Estimate(ctx context.Context, req FareRequest) (FareBreakdown, error) {
	if err := validate(req); err != nil {
		return FareBreakdown{}, err
	}
	settings, err := s.tariffs.GetActive(ctx)
	if err != nil {
		return FareBreakdown{}, err
	}

	var (
		out      FareBreakdown
		subtotal decimal.Decimal
	)
	if flat, ok := s.PredefinedPrice(req.Pickup, req.Dropoff); ok {
		out.Predefined = true
		subtotal = flat.Decimal()
		out.DurationMinutes = DefaultPredefinedDuration
		route, err := s.routes.ResolveRoute(ctx, req.Pickup, req.Dropoff)
		if err != nil {
			s.log.Warn("duration lookup failed for predefined route; using default",
				zap.String("route", maps.RouteKey(req.Pickup, req.Dropoff)),
				zap.Error(err),
			)
		} else {
			out.DurationMinutes = route.DurationMinutes
			out.DistanceKm = route.DistanceKm
		}
	} else {
		route, err := s.routes.ResolveRoute(ctx, req.Pickup, req.Dropoff)
		if err != nil {
			if apperr.IsRouting(err) {
				return FareBreakdown{}, err
			}
			return FareBreakdown{}, apperr.RoutingError{Op: "resolve", Err: err}
		}
		if route.DistanceKm <= 0 && maps.Normalize(req.Pickup) != maps.Normalize(req.Dropoff) {
			return FareBreakdown{}, apperr.Validation("route", "distance between pickup and dropoff could not be determined")
		}
		out.DistanceKm = route.DistanceKm
		out.DurationMinutes = route.DurationMinutes
		subtotal = decimal.NewFromFloat(settings.BaseRate).
			Add(decimal.NewFromFloat(route.DistanceKm).Mul(decimal.NewFromFloat(settings.RatePerKm)))
	}

	if req.Passengers > 1 {
		subtotal = subtotal.Add(decimal.NewFromInt(int64(req.Passengers - 1)).Mul(decimal.NewFromFloat(settings.RatePerPassenger)))
	}
	if req.Bags > 0 {
		subtotal = subtotal.Add(decimal.NewFromInt(int64(req.Bags)).Mul(decimal.NewFromFloat(settings.RatePerBag)))
	}
	if settings.NightSurchargeDue(req.TimeOfDay) {
		surcharge := subtotal.Mul(decimal.NewFromFloat(settings.NightSurchargePercentage)).Div(decimal.NewFromInt(100))
		subtotal = subtotal.Add(surcharge)
		out.NightSurchargeApplied = true
	}

	out.OriginalBudgetPreVAT = types.FromDecimal(subtotal)
	out.VATPercentage = s.vatRate
	out = out.WithDiscount(types.Cents(0))
	return out, nil
}

func validate(req FareRequest) error {
	if req.Passengers < 1 {
		return apperr.Validation("passengers", "must be at least 1")
	}
	if req.Bags < 0 {
		return apperr.Validation("bags", "must be >= 0")
	}
	if strings.TrimSpace(req.Pickup) == "" {
		return apperr.Validation("pickup_location", "is required")
	}
	if strings.TrimSpace(req.Dropoff) == "" {
		return apperr.Validation("dropoff_location", "is required")
	}
	if req.TimeOfDay < 0 || req.TimeOfDay >= 24*60 {
		return apperr.Validation("time", "must be within the day")
	}
	return nil
}
