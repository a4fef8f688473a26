package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache backs report caching, alert dedup and the redis rate limiter.
// Misses are reported as redis.Nil regardless of backend.
type Cache interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// NewCache prefers redis and degrades to the in-process cache when the
// server cannot be reached at startup.
func NewCache(ctx context.Context, client *redis.Client) Cache {
	if client == nil {
		return NewMemoryCache()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return NewMemoryCache()
	}
	return &RedisCache{client: client}
}

type RedisCache struct{ client *redis.Client }

func (c *RedisCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// MemoryCache is the single-process fallback. Entries expire lazily on
// access; a full sweep runs once the map grows past pruneThreshold.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	val      string
	deadline time.Time
}

const pruneThreshold = 1024

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, live := c.liveLocked(key); live {
		return false, nil
	}
	c.storeLocked(key, value, ttl)
	return true, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, live := c.liveLocked(key)
	if !live {
		return "", redis.Nil
	}
	return val, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(key, value, ttl)
	return nil
}

func (c *MemoryCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) liveLocked(key string) (string, bool) {
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.deadline) {
		delete(c.entries, key)
		return "", false
	}
	return e.val, true
}

func (c *MemoryCache) storeLocked(key, value string, ttl time.Duration) {
	if len(c.entries) >= pruneThreshold {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.deadline) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cacheEntry{val: value, deadline: time.Now().Add(ttl)}
}
