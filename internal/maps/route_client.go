// README: Route client resolving distance and duration between two free-text locations, cached by normalized input.
package maps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/cache"
)

type Route struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
}

// Observer receives cache and provider call outcomes. *infra.Metrics implements it.
type Observer interface {
	CacheLookup(kind string, hit bool)
	ProviderCall(call string, seconds float64, err error)
}

type nopObserver struct{}

func (nopObserver) CacheLookup(string, bool)            {}
func (nopObserver) ProviderCall(string, float64, error) {}

// GeocodeError tells which side of the trip could not be located.
type GeocodeError struct {
	Side     string
	Location string
	Err      error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("geocode %s %q: %v", e.Side, e.Location, e.Err)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

type Options struct {
	TTL      time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
	Observer Observer
}

type RouteClient struct {
	provider    Provider
	providerErr error
	cache       cache.Cache
	ttl         time.Duration
	timeout     time.Duration
	log         *zap.Logger
	obs         Observer
}

// NewRouteClient wires a provider and cache. A nil provider is allowed when
// providerErr explains why; every lookup then fails with that error.
func NewRouteClient(provider Provider, providerErr error, c cache.Cache, opts Options) *RouteClient {
	if provider == nil && providerErr == nil {
		providerErr = ErrProviderMisconfigured
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &RouteClient{
		provider:    provider,
		providerErr: providerErr,
		cache:       c,
		ttl:         opts.TTL,
		timeout:     opts.Timeout,
		log:         opts.Logger,
		obs:         opts.Observer,
	}
}

// ResolveRoute returns the driving distance and duration between pickup and
// dropoff. Errors are apperr.RoutingError wrapping one of the package sentinels.
func (c *RouteClient) ResolveRoute(ctx context.Context, pickup, dropoff string) (Route, error) {
	if c.providerErr != nil {
		return Route{}, apperr.RoutingError{Op: "config", Err: c.providerErr}
	}
	normPickup, normDropoff := Normalize(pickup), Normalize(dropoff)
	if normPickup == "" || normDropoff == "" {
		return Route{}, apperr.RoutingError{Op: "geocode", Err: ErrGeocodeFailed}
	}

	routeKey := cache.Key("route", "leg", normPickup+"#"+normDropoff)
	var cached Route
	if c.lookup(ctx, "route", routeKey, &cached) {
		return cached, nil
	}

	from, err := c.geocode(ctx, "pickup", pickup, normPickup)
	if err != nil {
		return Route{}, apperr.RoutingError{Op: "geocode", Err: err}
	}
	to, err := c.geocode(ctx, "dropoff", dropoff, normDropoff)
	if err != nil {
		return Route{}, apperr.RoutingError{Op: "geocode", Err: err}
	}

	leg, err := c.directions(ctx, from, to)
	if err != nil {
		return Route{}, apperr.RoutingError{Op: "directions", Err: err}
	}
	route := Route{
		DistanceKm:      math.Round(float64(leg.Meters)/10) / 100,
		DurationMinutes: int(math.Round(leg.Duration.Seconds() / 60)),
	}
	c.store(ctx, routeKey, route)
	c.log.Debug("route resolved",
		zap.String("pickup", normPickup),
		zap.String("dropoff", normDropoff),
		zap.Float64("distance_km", route.DistanceKm),
		zap.Int("duration_minutes", route.DurationMinutes),
	)
	return route, nil
}

// Invalidate drops any cached route and geocode entries for the pair.
func (c *RouteClient) Invalidate(ctx context.Context, pickup, dropoff string) error {
	if c.cache == nil {
		return nil
	}
	p, d := Normalize(pickup), Normalize(dropoff)
	return c.cache.Delete(ctx,
		cache.Key("route", "leg", p+"#"+d),
		cache.Key("route", "geo", p),
		cache.Key("route", "geo", d),
	)
}

func (c *RouteClient) geocode(ctx context.Context, side, raw, normalized string) (Point, error) {
	key := cache.Key("route", "geo", normalized)
	var p Point
	if c.lookup(ctx, "geocode", key, &p) {
		return p, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	p, err := c.provider.Geocode(callCtx, raw)
	c.obs.ProviderCall("geocode", time.Since(start).Seconds(), err)
	if err != nil {
		return Point{}, &GeocodeError{Side: side, Location: raw, Err: classify(callCtx, err)}
	}
	c.store(ctx, key, p)
	return p, nil
}

func (c *RouteClient) directions(ctx context.Context, from, to Point) (Leg, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	leg, err := c.provider.Directions(callCtx, from, to)
	c.obs.ProviderCall("directions", time.Since(start).Seconds(), err)
	if err != nil {
		return Leg{}, classify(callCtx, err)
	}
	return leg, nil
}

func (c *RouteClient) lookup(ctx context.Context, kind, key string, dst any) bool {
	if c.cache == nil {
		return false
	}
	hit, err := c.cache.Get(ctx, key, dst)
	if err != nil {
		c.log.Warn("route cache read failed", zap.String("key", key), zap.Error(err))
		hit = false
	}
	c.obs.CacheLookup(kind, hit)
	return hit
}

func (c *RouteClient) store(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, v, c.ttl); err != nil {
		c.log.Warn("route cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// classify maps a provider error onto a package sentinel. Known sentinels
// pass through; deadline expiry becomes ErrRouteTimeout.
func classify(callCtx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrGeocodeFailed), errors.Is(err, ErrNoRoute),
		errors.Is(err, ErrRouteTimeout), errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrProviderMisconfigured):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrRouteTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
