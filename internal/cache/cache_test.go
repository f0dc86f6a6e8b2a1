package cache

import (
	"context"
	"testing"
	"time"

	"github.com/refdata/validate-service/internal/domain"
)

func sampleDataset() *domain.Dataset {
	return &domain.Dataset{
		ProductType: "stocks",
		Exchange:    "NYSE",
		Columns:     []string{"ric", "symbol"},
		Rows: [][]any{
			{"IBM.N", "IBM"},
			{"AAPL.O", "AAPL"},
		},
	}
}

func TestLRUCacheSetAndGet(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	ds := sampleDataset()
	c.SetDataset(ctx, "stocks:NYSE", ds, time.Minute)

	got, ok := c.GetDataset(ctx, "stocks:NYSE")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.RowCount() != 2 {
		t.Errorf("expected 2 rows, got %d", got.RowCount())
	}
}

func TestLRUCacheGetMiss(t *testing.T) {
	c := NewLRUCache(100)
	if _, ok := c.GetDataset(context.Background(), "nonexistent"); ok {
		t.Error("expected miss for unset key")
	}
}

func TestLRUCacheInvalidate(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()
	c.SetDataset(ctx, "k", sampleDataset(), time.Minute)

	c.Invalidate(ctx, "k")

	if _, ok := c.GetDataset(ctx, "k"); ok {
		t.Error("expected miss after invalidate")
	}
}

func TestLRUCacheTTLExpiration(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()
	c.SetDataset(ctx, "expiring", sampleDataset(), 10*time.Millisecond)

	if _, ok := c.GetDataset(ctx, "expiring"); !ok {
		t.Error("expected hit before expiration")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.GetDataset(ctx, "expiring"); ok {
		t.Error("expected miss after expiration")
	}
}

func TestLRUCacheEviction(t *testing.T) {
	ctx := context.Background()
	small := NewLRUCache(3)

	small.SetDataset(ctx, "a", sampleDataset(), time.Minute)
	small.SetDataset(ctx, "b", sampleDataset(), time.Minute)
	small.SetDataset(ctx, "c", sampleDataset(), time.Minute)

	small.GetDataset(ctx, "a") // keep 'a' fresh

	small.SetDataset(ctx, "d", sampleDataset(), time.Minute)

	if _, ok := small.GetDataset(ctx, "b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	if _, ok := small.GetDataset(ctx, "a"); !ok {
		t.Error("expected 'a' to still exist")
	}
}

func TestLRUCacheStats(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(50)
	c.SetDataset(ctx, "k1", sampleDataset(), time.Minute)
	c.SetDataset(ctx, "k2", sampleDataset(), time.Minute)
	c.GetDataset(ctx, "k1")
	c.GetDataset(ctx, "missing")

	stats := c.Stats()
	if stats.L1Size != 2 {
		t.Errorf("expected size 2, got %d", stats.L1Size)
	}
	if stats.L1Hits != 1 || stats.L1Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", stats.L1Hits, stats.L1Misses)
	}
}

func TestLRUCachePing(t *testing.T) {
	c := NewLRUCache(10)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestLRUCacheClose(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)
	c.SetDataset(ctx, "k", sampleDataset(), time.Minute)

	if err := c.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	if _, ok := c.GetDataset(ctx, "k"); ok {
		t.Error("expected cache to be cleared after close")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("no redis addr returns LRU only", func(t *testing.T) {
		c, err := New(domain.CacheConfig{L1Capacity: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Error("expected LRUCache when RedisAddr is empty")
		}
	})
}
