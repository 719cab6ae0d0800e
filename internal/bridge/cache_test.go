package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestResponseCache_SetGet(t *testing.T) {
	client := newTestRedis(t)
	cache := newResponseCache(client, time.Minute, 100)
	ctx := context.Background()

	cache.Set(ctx, "k1", "hello")
	val, ok := cache.Get(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, "hello", val)
}

func TestResponseCache_Miss(t *testing.T) {
	client := newTestRedis(t)
	cache := newResponseCache(client, time.Minute, 100)
	_, ok := cache.Get(context.Background(), "missing")
	require.False(t, ok)
}

func TestResponseCache_EvictsLeastRecentlyInserted(t *testing.T) {
	client := newTestRedis(t)
	cache := newResponseCache(client, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cache.Set(ctx, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}

	_, ok := cache.Get(ctx, "k0")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = cache.Get(ctx, "k1")
	require.False(t, ok, "second oldest entry should have been evicted")
	val, ok := cache.Get(ctx, "k4")
	require.True(t, ok)
	require.Equal(t, "v4", val)
}

func TestCacheKey_StableAndDistinct(t *testing.T) {
	k1 := CacheKey("how is my glucose", "type2", "normal")
	k2 := CacheKey("how is my glucose", "type2", "normal")
	k3 := CacheKey("how is my glucose", "type2", "high")
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}
