package kernel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the simple key/value store consumed by services (§6). It is
// backed by memory or an external store selected via CACHE_PROVIDER.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttlSeconds int) error
	Del(ctx context.Context, key string) error
}

// memoryCache is the default, dependency-free Cache backend.
type memoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryCacheItem
}

type memoryCacheItem struct {
	value     any
	expiresAt time.Time
	hasExpiry bool
}

// NewMemoryCache returns an in-process Cache with lazy (read-time)
// expiry. There is no background sweep goroutine: a sweep would itself
// need lifecycle wiring (start on Bootstrap, stop on PreShutdown) for no
// real benefit at this scale, so expired entries are simply dropped the
// next time they're read.
func NewMemoryCache() Cache {
	return &memoryCache{items: make(map[string]memoryCacheItem)}
}

func (c *memoryCache) Get(_ context.Context, key string) (any, bool, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if item.hasExpiry && time.Now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return item.value, true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, ttlSeconds int) error {
	item := memoryCacheItem{value: value}
	if ttlSeconds > 0 {
		item.hasExpiry = true
		item.expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// redisCache backs Cache with an external redis.Client, selected when
// CACHE_PROVIDER=redis. Values are JSON-encoded.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache returns a Cache backed by client.
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttlSeconds int) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *redisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
