// README: Tariff service; lazily seeds defaults, caches the active row and refreshes it on update.
package tariff

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/cache"
	"github.com/simaodiazz/curvas-humildes-server/internal/config"
)

var ErrNotFound = errors.New("tariff settings not found")

var cacheKey = cache.Key("tariff", "active")

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	CreateDefault(ctx context.Context, t Settings) error
	Update(ctx context.Context, cmd UpdateCommand) (*Settings, error)
}

type Service struct {
	store    Repository
	cache    cache.Cache
	ttl      time.Duration
	defaults config.TariffDefaults
	log      *zap.Logger

	// gen counts updates; a read only caches its row if no update ran
	// between its load and its cache write.
	mu  sync.Mutex
	gen uint64
}

func NewService(store Repository, c cache.Cache, ttl time.Duration, defaults config.TariffDefaults, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, cache: c, ttl: ttl, defaults: defaults, log: log}
}

// GetActive returns the current settings, creating the default row on first use.
func (s *Service) GetActive(ctx context.Context) (Settings, error) {
	if s.cache != nil {
		var cached Settings
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.log.Warn("tariff cache read failed", zap.Error(err))
		}
		if hit {
			return cached, nil
		}
	}

	gen := s.generation()
	t, err := s.load(ctx)
	if err != nil {
		return Settings{}, err
	}
	s.remember(ctx, gen, t)
	return t, nil
}

// Update writes the supplied fields and replaces the cached copy with the saved row.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (Settings, error) {
	if err := cmd.Validate(); err != nil {
		return Settings{}, err
	}
	// Seeds the default row so the column-wise update has something to change.
	if _, err := s.load(ctx); err != nil {
		return Settings{}, err
	}
	saved, err := s.store.Update(ctx, cmd)
	if err != nil {
		return Settings{}, apperr.Persistence("save tariff settings", err)
	}
	s.publish(ctx, *saved)
	s.log.Info("tariff settings updated",
		zap.Float64("base_rate", saved.BaseRate),
		zap.Float64("rate_per_km", saved.RatePerKm),
		zap.Bool("night_surcharge_applies", saved.NightSurchargeApplies),
	)
	return *saved, nil
}

func (s *Service) load(ctx context.Context) (Settings, error) {
	t, err := s.store.Get(ctx)
	if err == nil {
		return *t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Settings{}, apperr.Persistence("load tariff settings", err)
	}

	s.log.Info("tariff settings missing; creating defaults")
	if err := s.store.CreateDefault(ctx, FromDefaults(s.defaults)); err != nil {
		return Settings{}, apperr.Persistence("create default tariff settings", err)
	}
	// Re-read so a concurrent creator's row wins consistently.
	t, err = s.store.Get(ctx)
	if err != nil {
		return Settings{}, apperr.Persistence("reload tariff settings", err)
	}
	return *t, nil
}

func (s *Service) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// remember caches t unless an update has happened since gen was read.
func (s *Service) remember(ctx context.Context, gen uint64, t Settings) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, t, s.ttl); err != nil {
		s.log.Warn("tariff cache write failed", zap.Error(err))
	}
}

// publish bumps the generation and writes the saved row through. If the
// write fails the key is dropped instead.
func (s *Service) publish(ctx context.Context, saved Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cache == nil {
		return
	}
	err := s.cache.Set(ctx, cacheKey, saved, s.ttl)
	if err == nil {
		return
	}
	s.log.Warn("tariff cache refresh failed", zap.Error(err))
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		s.log.Warn("tariff cache invalidation failed", zap.Error(err))
	}
}
