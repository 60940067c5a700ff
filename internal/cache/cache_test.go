package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	DistanceKm float64 `json:"distance_km"`
	Minutes    int     `json:"minutes"`
}

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	t.Cleanup(func() { _ = m.Close() })

	var got sample
	ok, err := m.Get(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", sample{DistanceKm: 12.3, Minutes: 20}, time.Minute))
	ok, err = m.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sample{DistanceKm: 12.3, Minutes: 20}, got)

	require.NoError(t, m.Delete(ctx, "k", "other"))
	ok, err = m.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory(0)
	m.now = func() time.Time { return now }
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.Set(ctx, "short", 1, time.Second))
	require.NoError(t, m.Set(ctx, "forever", 2, 0))

	now = now.Add(2 * time.Second)
	var v int
	ok, err := m.Get(ctx, "short", &v)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Get(ctx, "forever", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	require.NoError(t, m.Set(ctx, "short2", 3, time.Second))
	now = now.Add(time.Hour)
	m.evictExpired()
	assert.Equal(t, 1, m.Len())
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10 * time.Millisecond)
	t.Cleanup(func() { _ = m.Close() })

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				_ = m.Set(ctx, Key("route", "k"), i, time.Minute)
				var v int
				_, _ = m.Get(ctx, Key("route", "k"), &v)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, m.Len())
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	m := NewMemory(time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "route:geo:lisboa", Key("route", " geo ", "", "lisboa"))
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("CURVAS_REDIS_ADDR")
	if addr == "" {
		t.Skip("CURVAS_REDIS_ADDR not set; skipping Redis-backed cache test")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedis(client, "test-"+uuid.NewString())
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(ctx, "k", sample{DistanceKm: 1.5, Minutes: 3}, time.Minute))
	var got sample
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.Minutes)

	require.NoError(t, c.Delete(ctx, "k"))
	ok, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
