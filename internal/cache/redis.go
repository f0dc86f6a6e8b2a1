package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/refdata/validate-service/internal/domain"
)

// RedisCache implements domain.Cache directly over Redis. Used standalone
// when a deployment wants a shared cache without an L1, and as L2 inside
// TwoPhaseCache.
type RedisCache struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache connects to addr and verifies connectivity before
// returning.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) makeKey(key string) string {
	return "validate:dataset:" + key
}

// GetDataset fetches and JSON-decodes a dataset stored under key.
func (c *RedisCache) GetDataset(ctx context.Context, key string) (*domain.Dataset, bool) {
	val, err := c.client.Get(ctx, c.makeKey(key)).Bytes()
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	var ds domain.Dataset
	if err := json.Unmarshal(val, &ds); err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &ds, true
}

// SetDataset JSON-encodes ds and stores it under key with ttl.
func (c *RedisCache) SetDataset(ctx context.Context, key string, ds *domain.Dataset, ttl time.Duration) {
	data, err := json.Marshal(ds)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.makeKey(key), data, ttl)
}

// Invalidate removes key from Redis.
func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	c.client.Del(ctx, c.makeKey(key))
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Stats reports cumulative hit/miss counts; L1Size is always 0 since this
// cache has no LRU layer of its own.
func (c *RedisCache) Stats() domain.CacheStats {
	return domain.CacheStats{
		L2Hits:   c.hits.Load(),
		L2Misses: c.misses.Load(),
		RedisUp:  c.Ping(context.Background()) == nil,
	}
}
