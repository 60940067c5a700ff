// README: Cache abstraction (get/set/delete with TTL) used for route lookups and tariff settings.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache stores JSON-encodable values under string keys.
// Get reports false on a miss; dst is left untouched in that case.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Key joins non-empty parts with ':' after trimming them.
func Key(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, ":")
}
