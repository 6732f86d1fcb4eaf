package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved addresses. Misses return ok == false and a nil
// error.
type Cache interface {
	Get(ctx context.Context, address string) (Result, bool, error)
	Set(ctx context.Context, address string, r Result) error
}

func cacheKey(address string) string {
	return strings.ToUpper(strings.Join(strings.Fields(address), " "))
}

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Result
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Result)}
}

func (c *MemoryCache) Get(_ context.Context, address string) (Result, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[cacheKey(address)]
	return r, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, address string, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(address)] = r
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache keeps results in Redis so repeated pipeline runs and service
// replicas share lookups.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "geocode:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, address string) (Result, bool, error) {
	data, err := c.rdb.Get(ctx, c.prefix+cacheKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("redis get: %w", err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, false, fmt.Errorf("redis decode: %w", err)
	}
	return r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, address string, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.prefix+cacheKey(address), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
