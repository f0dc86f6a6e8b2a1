package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/refdata/validate-service/internal/domain"
)

// New builds the cache a Config's tier implies: community gets an
// in-process LRU only, pro/enterprise with RedisAddr set get the two-phase
// L1+L2 cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	local := NewLRUCache(cfg.L1Capacity)
	if cfg.RedisAddr == "" {
		return local, nil
	}

	remote, err := NewRedisCache(cfg.RedisAddr, "", 0)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}

	l1TTL := cfg.L1TTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}, nil
}

// TwoPhaseCache reads L1 (in-process LRU) before L2 (Redis), backfilling
// L1 on an L2 hit so the next read of the same key stays local.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// GetDataset checks L1 first, then L2, populating L1 on an L2 hit.
func (c *TwoPhaseCache) GetDataset(ctx context.Context, key string) (*domain.Dataset, bool) {
	if ds, ok := c.local.GetDataset(ctx, key); ok {
		return ds, true
	}

	ds, ok := c.remote.GetDataset(ctx, key)
	if ok {
		c.local.SetDataset(ctx, key, ds, c.l1TTL)
	}
	return ds, ok
}

// SetDataset writes to both L1 (capped at l1TTL) and L2 (full ttl).
func (c *TwoPhaseCache) SetDataset(ctx context.Context, key string, ds *domain.Dataset, ttl time.Duration) {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	c.local.SetDataset(ctx, key, ds, l1TTL)
	c.remote.SetDataset(ctx, key, ds, ttl)
}

// Invalidate removes key from both phases.
func (c *TwoPhaseCache) Invalidate(ctx context.Context, key string) {
	c.local.Invalidate(ctx, key)
	c.remote.Invalidate(ctx, key)
}

// Ping checks both phases; either failing is reported.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping: %w", err)
	}
	return nil
}

// Close closes both phases.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats merges L1 occupancy/hit counters with L2 hit counters and Redis
// reachability for /health/detailed.
func (c *TwoPhaseCache) Stats() domain.CacheStats {
	l1 := c.local.Stats()
	l2 := c.remote.Stats()
	return domain.CacheStats{
		L1Size:   l1.L1Size,
		L1Hits:   l1.L1Hits,
		L1Misses: l1.L1Misses,
		L2Hits:   l2.L2Hits,
		L2Misses: l2.L2Misses,
		RedisUp:  l2.RedisUp,
	}
}
