package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "bridge:cache:"
	cacheIndexKey  = "bridge:cache:index"
	cacheSeqKey    = "bridge:cache:seq"
)

// responseCache is the AI Bridge's response cache: Redis-backed, keyed by a
// stable hash of (normalized query text, diabetes type, glucose bucket)
// per spec.md §4.4, TTL-bounded, and capped at a maximum entry count with
// least-recently-inserted eviction tracked via a Redis sorted set (score =
// monotonically increasing insertion sequence number). Grounded on the
// teacher's pkg/cache/redis.go, generalized from a package-global client
// to a component-owned field (spec.md §9).
type responseCache struct {
	client     *redis.Client
	ttl        time.Duration
	maxEntries int
}

func newResponseCache(client *redis.Client, ttl time.Duration, maxEntries int) *responseCache {
	return &responseCache{client: client, ttl: ttl, maxEntries: maxEntries}
}

// CacheKey computes the stable lookup key for a query, per spec.md §4.4.
func CacheKey(normalizedQueryText, diabetesType, glucoseBucket string) string {
	h := sha256.Sum256([]byte(normalizedQueryText + "|" + diabetesType + "|" + glucoseBucket))
	return hex.EncodeToString(h[:])
}

func (c *responseCache) Get(ctx context.Context, key string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, cacheKeyPrefix+key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set stores value under key with the cache's TTL, then evicts the
// least-recently-inserted entries beyond maxEntries.
func (c *responseCache) Set(ctx context.Context, key, value string) {
	if c.client == nil {
		return
	}
	fullKey := cacheKeyPrefix + key
	if err := c.client.Set(ctx, fullKey, value, c.ttl).Err(); err != nil {
		return
	}
	seq, err := c.client.Incr(ctx, cacheSeqKey).Result()
	if err != nil {
		return
	}
	c.client.ZAdd(ctx, cacheIndexKey, redis.Z{Score: float64(seq), Member: fullKey})
	c.evictExcess(ctx)
}

func (c *responseCache) evictExcess(ctx context.Context) {
	count, err := c.client.ZCard(ctx, cacheIndexKey).Result()
	if err != nil || int(count) <= c.maxEntries {
		return
	}
	excess := int(count) - c.maxEntries
	oldest, err := c.client.ZPopMin(ctx, cacheIndexKey, int64(excess)).Result()
	if err != nil {
		return
	}
	for _, z := range oldest {
		if member, ok := z.Member.(string); ok {
			c.client.Del(ctx, member)
		}
	}
}

// glucoseBucket is a small normalization helper feeding CacheKey, grounded on the cache-key shape named in spec.md §4.4
// ("normalized query text, diabetes type, current glucose bucket").
func glucoseBucket(glucose float64, known bool) string {
	if !known {
		return "unknown"
	}
	switch {
	case glucose < 70:
		return "low"
	case glucose <= 180:
		return "normal"
	case glucose <= 300:
		return "high"
	default:
		return "critical"
	}
}
