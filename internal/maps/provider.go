package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"github.com/simaodiazz/curvas-humildes-server/internal/config"
)

const ProviderGoogle = "GOOGLE"

var (
	ErrProviderMisconfigured = errors.New("routing provider misconfigured")
	ErrGeocodeFailed         = errors.New("location could not be geocoded")
	ErrNoRoute               = errors.New("no driving route between locations")
	ErrRouteTimeout          = errors.New("routing provider timed out")
	ErrProviderUnavailable   = errors.New("routing provider unavailable")
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Leg is a raw driving leg as reported by the provider.
type Leg struct {
	Meters   int           `json:"meters"`
	Duration time.Duration `json:"duration"`
}

// Provider is the external geocoding and directions service.
type Provider interface {
	Geocode(ctx context.Context, address string) (Point, error)
	Directions(ctx context.Context, from, to Point) (Leg, error)
}

// GoogleProvider handles interactions with the Google Maps API.
type GoogleProvider struct {
	client   *maps.Client
	region   string
	language string
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg config.MapsConfig) (Provider, error) {
	if !strings.EqualFold(cfg.Provider, ProviderGoogle) {
		return nil, fmt.Errorf("%w: provider %q is not supported", ErrProviderMisconfigured, cfg.Provider)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is missing", ErrProviderMisconfigured)
	}
	client, err := maps.NewClient(maps.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderMisconfigured, err)
	}
	return &GoogleProvider{client: client, region: cfg.Region, language: cfg.Language}, nil
}

func (p *GoogleProvider) Geocode(ctx context.Context, address string) (Point, error) {
	results, err := p.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  address,
		Region:   p.region,
		Language: p.language,
	})
	if err != nil {
		if isZeroResults(err) {
			return Point{}, ErrGeocodeFailed
		}
		return Point{}, err
	}
	if len(results) == 0 {
		return Point{}, ErrGeocodeFailed
	}
	loc := results[0].Geometry.Location
	return Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func (p *GoogleProvider) Directions(ctx context.Context, from, to Point) (Leg, error) {
	routes, _, err := p.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Region:      p.region,
		Language:    p.language,
	})
	if err != nil {
		if isZeroResults(err) {
			return Leg{}, ErrNoRoute
		}
		return Leg{}, err
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Leg{}, ErrNoRoute
	}
	leg := routes[0].Legs[0]
	return Leg{Meters: leg.Distance.Meters, Duration: leg.Duration}, nil
}

func latLng(p Point) string {
	return (&maps.LatLng{Lat: p.Lat, Lng: p.Lng}).String()
}

func isZeroResults(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ZERO_RESULTS") || strings.Contains(msg, "NOT_FOUND")
}
