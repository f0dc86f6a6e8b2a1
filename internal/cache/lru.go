// Package cache provides dataset caches: an in-process LRU, a Redis cache,
// and the two-phase (in-process L1 + Redis L2) combination of both. The
// CSV Data Loader attaches the Redis cache as its L2 to avoid re-parsing
// CSV files within a dataset's TTL window; the DB backend uses no cache.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/refdata/validate-service/internal/domain"
)

// LRUCache is a thread-safe, TTL-aware LRU cache of Datasets. Used alone
// as the community tier cache, and as L1 inside TwoPhaseCache.
type LRUCache struct {
	mu      sync.RWMutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key       string
	value     *domain.Dataset
	expiresAt time.Time
}

// NewLRUCache creates an LRU cache holding at most maxSize datasets.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// GetDataset returns the cached dataset for key, if present and unexpired.
func (c *LRUCache) GetDataset(ctx context.Context, key string) (*domain.Dataset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.misses.Add(1)
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return entry.value, true
}

// SetDataset stores ds under key with the given TTL, evicting the least
// recently used entry if the cache is over capacity.
func (c *LRUCache) SetDataset(ctx context.Context, key string, ds *domain.Dataset, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = ds
		entry.expiresAt = time.Now().Add(ttl)
		return
	}

	entry := &cacheEntry{key: key, value: ds, expiresAt: time.Now().Add(ttl)}
	elem := c.order.PushFront(entry)
	c.items[key] = elem

	for c.order.Len() > c.maxSize {
		c.removeOldest()
	}
}

// Invalidate removes key from the cache, forcing the next load to miss.
func (c *LRUCache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Ping always succeeds; the in-process cache has no external dependency.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close clears the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	return nil
}

// Stats reports current occupancy and cumulative hit/miss counts.
func (c *LRUCache) Stats() domain.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CacheStats{
		L1Size:   c.order.Len(),
		L1Hits:   c.hits.Load(),
		L1Misses: c.misses.Load(),
		RedisUp:  false,
	}
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}

func (c *LRUCache) removeOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
	}
}
