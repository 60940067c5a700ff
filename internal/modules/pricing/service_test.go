package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/maps"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/tariff"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type stubRoutes struct {
	route maps.Route
	err   error
	calls int
}

func (s *stubRoutes) ResolveRoute(context.Context, string, string) (maps.Route, error) {
	s.calls++
	return s.route, s.err
}

type stubTariffs struct {
	settings tariff.Settings
	err      error
}

func (s stubTariffs) GetActive(context.Context) (tariff.Settings, error) {
	return s.settings, s.err
}

var defaultSettings = tariff.Settings{
	BaseRate:                  10,
	RatePerKm:                 0.85,
	RatePerPassenger:          2.5,
	RatePerBag:                1,
	NightSurchargeApplies:     true,
	NightSurchargePercentage:  20,
	NightSurchargeStartHour:   22,
	NightSurchargeEndHour:     6,
	BookingSlotOverlapMinutes: 30,
}

var predefined = map[string]float64{
	"aeroporto lisboa#cascais":     55,
	"Gare do Oriente#Baixa Lisboa": 18,
}

func at(t *testing.T, hhmm string) types.TimeOfDay {
	t.Helper()
	v, err := types.ParseTimeOfDay(hhmm)
	require.NoError(t, err)
	return v
}

func TestService_Estimate(t *testing.T) {
	tests := []struct {
		name      string
		route     maps.Route
		routeErr  error
		req       FareRequest
		wantPre   int64
		wantVAT   int64
		wantTotal int64
		wantDur   int
		wantNight bool
		wantFlat  bool
	}{
		{
			name:  "distance fare 20km daytime",
			route: maps.Route{DistanceKm: 20, DurationMinutes: 25},
			req:   FareRequest{Passengers: 1, Pickup: "Rua A", Dropoff: "Rua B", TimeOfDay: at(t, "10:00")},
			// 10 + 20*0.85 = 27.00; VAT 6.21; total 33.21
			wantPre: 2700, wantVAT: 621, wantTotal: 3321, wantDur: 25,
		},
		{
			name:  "extra passengers and bags",
			route: maps.Route{DistanceKm: 20, DurationMinutes: 25},
			req:   FareRequest{Passengers: 3, Bags: 2, Pickup: "Rua A", Dropoff: "Rua B", TimeOfDay: at(t, "10:00")},
			// 27 + 2*2.5 + 2*1 = 34.00; VAT 7.82
			wantPre: 3400, wantVAT: 782, wantTotal: 4182, wantDur: 25,
		},
		{
			name:  "night surcharge wraps midnight",
			route: maps.Route{DistanceKm: 20, DurationMinutes: 25},
			req:   FareRequest{Passengers: 1, Pickup: "Rua A", Dropoff: "Rua B", TimeOfDay: at(t, "23:00")},
			// 27 * 1.2 = 32.40; VAT 7.452 -> 7.45
			wantPre: 3240, wantVAT: 745, wantTotal: 3985, wantDur: 25, wantNight: true,
		},
		{
			name:    "night window end is exclusive",
			route:   maps.Route{DistanceKm: 20, DurationMinutes: 25},
			req:     FareRequest{Passengers: 1, Pickup: "Rua A", Dropoff: "Rua B", TimeOfDay: at(t, "06:00")},
			wantPre: 2700, wantVAT: 621, wantTotal: 3321, wantDur: 25,
		},
		{
			name:  "predefined route uses flat price",
			route: maps.Route{DistanceKm: 33, DurationMinutes: 35},
			req:   FareRequest{Passengers: 1, Pickup: "Aeroporto  LISBOA", Dropoff: "Cascais", TimeOfDay: at(t, "12:00")},
			// 55.00; VAT 12.65
			wantPre: 5500, wantVAT: 1265, wantTotal: 6765, wantDur: 35, wantFlat: true,
		},
		{
			name:     "predefined route falls back to default duration",
			routeErr: apperr.RoutingError{Op: "directions", Err: maps.ErrRouteTimeout},
			req:      FareRequest{Passengers: 1, Pickup: "gare do oriente", Dropoff: "baixa lisboa", TimeOfDay: at(t, "12:00")},
			// 18.00; VAT 4.14
			wantPre: 1800, wantVAT: 414, wantTotal: 2214, wantDur: DefaultPredefinedDuration, wantFlat: true,
		},
		{
			name:  "fractional distance rounds half a cent up",
			route: maps.Route{DistanceKm: 3.3, DurationMinutes: 8},
			req:   FareRequest{Passengers: 1, Pickup: "Rua A", Dropoff: "Rua B", TimeOfDay: at(t, "10:00")},
			// 10 + 3.3*0.85 = 12.805 -> 12.81; VAT 2.9463 -> 2.95
			wantPre: 1281, wantVAT: 295, wantTotal: 1576, wantDur: 8,
		},
		{
			name:    "same place is base fare only",
			route:   maps.Route{DistanceKm: 0, DurationMinutes: 0},
			req:     FareRequest{Passengers: 1, Pickup: "Rossio", Dropoff: " rossio ", TimeOfDay: at(t, "12:00")},
			wantPre: 1000, wantVAT: 230, wantTotal: 1230,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes := &stubRoutes{route: tt.route, err: tt.routeErr}
			s := NewService(routes, stubTariffs{settings: defaultSettings}, predefined, 23, nil)

			got, err := s.Estimate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPre, got.OriginalBudgetPreVAT.Amount, "pre-VAT")
			assert.Equal(t, tt.wantPre, got.FinalBudgetPreVAT.Amount, "final pre-VAT")
			assert.Equal(t, int64(0), got.DiscountAmount.Amount)
			assert.Equal(t, tt.wantVAT, got.VATAmount.Amount, "VAT")
			assert.Equal(t, tt.wantTotal, got.TotalWithVAT.Amount, "total")
			assert.Equal(t, tt.wantDur, got.DurationMinutes)
			assert.Equal(t, tt.wantNight, got.NightSurchargeApplied)
			assert.Equal(t, tt.wantFlat, got.Predefined)
			assert.Equal(t, 23.0, got.VATPercentage)
		})
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	routes := &stubRoutes{route: maps.Route{DistanceKm: 17.37, DurationMinutes: 21}}
	s := NewService(routes, stubTariffs{settings: defaultSettings}, nil, 23, nil)
	req := FareRequest{Passengers: 2, Bags: 1, Pickup: "a", Dropoff: "b", TimeOfDay: at(t, "22:30")}

	first, err := s.Estimate(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Estimate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first.FinalBudgetPreVAT.Amount+first.VATAmount.Amount, first.TotalWithVAT.Amount)
}

func TestEstimateValidation(t *testing.T) {
	s := NewService(&stubRoutes{}, stubTariffs{settings: defaultSettings}, nil, 23, nil)
	cases := []struct {
		req   FareRequest
		field string
	}{
		{FareRequest{Passengers: 0, Pickup: "a", Dropoff: "b"}, "passengers"},
		{FareRequest{Passengers: 1, Bags: -1, Pickup: "a", Dropoff: "b"}, "bags"},
		{FareRequest{Passengers: 1, Pickup: " ", Dropoff: "b"}, "pickup_location"},
		{FareRequest{Passengers: 1, Pickup: "a", Dropoff: ""}, "dropoff_location"},
	}
	for _, tc := range cases {
		_, err := s.Estimate(context.Background(), tc.req)
		var ve apperr.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, tc.field, ve.Field)
	}
}

func TestEstimateRoutingFailure(t *testing.T) {
	routes := &stubRoutes{err: apperr.RoutingError{Op: "geocode", Err: maps.ErrGeocodeFailed}}
	s := NewService(routes, stubTariffs{settings: defaultSettings}, nil, 23, nil)

	_, err := s.Estimate(context.Background(), FareRequest{Passengers: 1, Pickup: "x", Dropoff: "y"})
	require.Error(t, err)
	assert.True(t, apperr.IsRouting(err))
	assert.ErrorIs(t, err, maps.ErrGeocodeFailed)
}

func TestEstimateDegenerateRoute(t *testing.T) {
	routes := &stubRoutes{route: maps.Route{DistanceKm: 0}}
	s := NewService(routes, stubTariffs{settings: defaultSettings}, nil, 23, nil)

	_, err := s.Estimate(context.Background(), FareRequest{Passengers: 1, Pickup: "x", Dropoff: "y"})
	assert.True(t, apperr.IsValidation(err))
}

func TestEstimateTariffFailure(t *testing.T) {
	boom := errors.New("db down")
	s := NewService(&stubRoutes{}, stubTariffs{err: apperr.Persistence("load", boom)}, nil, 23, nil)

	_, err := s.Estimate(context.Background(), FareRequest{Passengers: 1, Pickup: "x", Dropoff: "y"})
	assert.ErrorIs(t, err, boom)
}

func TestWithDiscountClampsAndRecomputes(t *testing.T) {
	base := FareBreakdown{OriginalBudgetPreVAT: types.Cents(3000), VATPercentage: 23}

	got := base.WithDiscount(types.Cents(5000))
	assert.Equal(t, int64(3000), got.DiscountAmount.Amount)
	assert.Equal(t, int64(0), got.FinalBudgetPreVAT.Amount)
	assert.Equal(t, int64(0), got.TotalWithVAT.Amount)

	got = base.WithDiscount(types.Cents(300))
	assert.Equal(t, int64(2700), got.FinalBudgetPreVAT.Amount)
	assert.Equal(t, int64(621), got.VATAmount.Amount)
	assert.Equal(t, int64(3321), got.TotalWithVAT.Amount)
}
