// Package cache provides a Redis-backed cache for live analytics snapshots,
// with an in-memory fallback when Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"codelab/internal/logging"
)

// LiveCache caches short-lived aggregates such as the live-analytics view.
type LiveCache struct {
	client *redis.Client // nil when Redis is unavailable

	memMu    sync.RWMutex
	memCache map[string]memEntry

	ttl time.Duration
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// New connects to Redis at the given URL. An empty URL or a failed ping
// degrades to the in-memory fallback; the caller does not need to care.
func New(redisURL string, ttl time.Duration) *LiveCache {
	c := &LiveCache{
		memCache: make(map[string]memEntry),
		ttl:      ttl,
	}
	if redisURL == "" {
		return c
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logging.S().Warnw("invalid REDIS_URL, using in-memory cache", "error", err)
		return c
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.S().Warnw("redis unreachable, using in-memory cache", "error", err)
		return c
	}
	c.client = client
	return c
}

// GetJSON fetches a cached value into dst. Returns false on a miss.
func (c *LiveCache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Result()
		if err != nil {
			return false
		}
		return json.Unmarshal([]byte(raw), dst) == nil
	}

	c.memMu.RLock()
	entry, ok := c.memCache[key]
	c.memMu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return false
	}
	return json.Unmarshal(entry.value, dst) == nil
}

// SetJSON stores a value under key with the cache TTL.
func (c *LiveCache) SetJSON(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			logging.S().Warnw("cache set failed", "key", key, "error", err)
		}
		return
	}

	c.memMu.Lock()
	c.memCache[key] = memEntry{value: raw, expiresAt: time.Now().Add(c.ttl)}
	c.memMu.Unlock()
}

// Invalidate removes a key.
func (c *LiveCache) Invalidate(ctx context.Context, key string) {
	if c.client != nil {
		c.client.Del(ctx, key)
		return
	}
	c.memMu.Lock()
	delete(c.memCache, key)
	c.memMu.Unlock()
}

// Close releases the Redis connection if one exists.
func (c *LiveCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
