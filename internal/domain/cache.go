package domain

import (
	"context"
	"time"
)

// Cache is a dataset cache keyed by string: the in-process LRU, the Redis
// cache, or the two-phase combination of both. The CSV Data Loader uses a
// Cache as its optional L2 to avoid re-parsing CSV files within a
// dataset's TTL window; the DB backend uses no cache.
type Cache interface {
	GetDataset(ctx context.Context, key string) (*Dataset, bool)
	SetDataset(ctx context.Context, key string, ds *Dataset, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
	Ping(ctx context.Context) error
	Stats() CacheStats
	Close() error
}

// CacheStats reports L1/L2 occupancy and hit/miss counters for
// /health/detailed.
type CacheStats struct {
	L1Size   int   `json:"l1Size"`
	L1Hits   int64 `json:"l1Hits"`
	L1Misses int64 `json:"l1Misses"`
	L2Hits   int64 `json:"l2Hits"`
	L2Misses int64 `json:"l2Misses"`
	RedisUp  bool  `json:"redisUp"`
}

// CacheConfig configures the two-phase cache; RedisAddr empty disables the
// L2 phase (dev tier runs L1-only).
type CacheConfig struct {
	RedisAddr  string
	L1TTL      time.Duration
	L2TTL      time.Duration
	L1Capacity int
}
