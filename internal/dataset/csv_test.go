package dataset

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/refdata/validate-service/internal/domain"
)

func writeCSV(t *testing.T, dataDir, product, exchange, content string) {
	t.Helper()
	dir := filepath.Join(dataDir, product)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, exchange+".csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
}

func TestCSVLoaderParsesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stocks", "NYSE", "ric,masterid,price\nAAPL.O,M1,150.5\nMSFT.O,M2,300\n")

	l := NewCSVLoader(dir, time.Minute)
	ds, err := l.Load(context.Background(), "stock", "nyse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", ds.RowCount())
	}
	if ds.ProductType != "stocks" || ds.Exchange != "NYSE" {
		t.Errorf("expected normalized product/exchange, got %s/%s", ds.ProductType, ds.Exchange)
	}
	if ds.Column("price")[0].(float64) != 150.5 {
		t.Errorf("expected numeric coercion, got %v", ds.Column("price")[0])
	}
}

func TestCSVLoaderBlankCellIsMissing(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stocks", "NYSE", "ric,masterid\n,M1\n")

	l := NewCSVLoader(dir, time.Minute)
	ds, err := l.Load(context.Background(), "stocks", "NYSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Column("ric")[0] != nil {
		t.Errorf("expected blank cell to parse as nil, got %v", ds.Column("ric")[0])
	}
}

func TestCSVLoaderMissingFileReturnsDatasetNotFound(t *testing.T) {
	dir := t.TempDir()
	l := NewCSVLoader(dir, time.Minute)
	_, err := l.Load(context.Background(), "stocks", "LSE")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCSVLoaderCachesWithinTTL(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stocks", "NYSE", "ric\nAAPL.O\n")

	l := NewCSVLoader(dir, time.Minute)
	ctx := context.Background()
	if _, err := l.Load(ctx, "stocks", "NYSE"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := l.Load(ctx, "stocks", "NYSE"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	stats := l.Stats()
	if stats.L1Hits != 1 || stats.L1Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got hits=%d misses=%d", stats.L1Hits, stats.L1Misses)
	}
}

func TestCSVLoaderReturnsDefensiveCopies(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stocks", "NYSE", "ric\nAAPL.O\n")

	l := NewCSVLoader(dir, time.Minute)
	ctx := context.Background()
	first, _ := l.Load(ctx, "stocks", "NYSE")
	first.Rows[0][0] = "MUTATED"

	second, _ := l.Load(ctx, "stocks", "NYSE")
	if second.Rows[0][0] == "MUTATED" {
		t.Error("expected cached dataset to be unaffected by caller mutation")
	}
}

func TestCSVLoaderInvalidateEvicts(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stocks", "NYSE", "ric\nAAPL.O\n")

	l := NewCSVLoader(dir, time.Hour)
	ctx := context.Background()
	l.Load(ctx, "stocks", "NYSE")
	l.Invalidate(ctx, "stocks", "NYSE")

	writeCSV(t, dir, "stocks", "NYSE", "ric\nMSFT.O\n")
	ds, err := l.Load(ctx, "stocks", "NYSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows[0][0] != "MSFT.O" {
		t.Errorf("expected re-parsed file after invalidation, got %v", ds.Rows[0][0])
	}
}

func TestCSVLoaderCoalescesConcurrentMisses(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stocks", "NYSE", "ric\nAAPL.O\n")

	l := NewCSVLoader(dir, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := l.Load(ctx, "stocks", "NYSE")
			errs[idx] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Errorf("unexpected error from concurrent load: %v", err)
		}
	}
	stats := l.Stats()
	if stats.L1Misses != 1 {
		t.Errorf("expected exactly 1 miss across concurrent loaders, got %d", stats.L1Misses)
	}
}

func TestCSVLoaderWarmUp(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stocks", "NYSE", "ric\nAAPL.O\n")

	l := NewCSVLoader(dir, time.Minute)
	if err := l.WarmUp(context.Background(), "stocks", "NYSE"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Stats().L1Size != 1 {
		t.Errorf("expected warm-up to populate the cache")
	}
}

// fakeL2 is an in-memory stand-in for a Redis-backed domain.Cache, used to
// test CSVLoader's L2 wiring without a real Redis instance.
type fakeL2 struct {
	mu    sync.Mutex
	store map[string]*domain.Dataset
	hits  int64
}

func (f *fakeL2) GetDataset(ctx context.Context, key string) (*domain.Dataset, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.store[key]
	if ok {
		f.hits++
	}
	return ds, ok
}
func (f *fakeL2) SetDataset(ctx context.Context, key string, ds *domain.Dataset, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = ds
}
func (f *fakeL2) Invalidate(ctx context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, key)
}
func (f *fakeL2) Ping(ctx context.Context) error { return nil }
func (f *fakeL2) Stats() domain.CacheStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.CacheStats{L2Hits: f.hits, RedisUp: true}
}
func (f *fakeL2) Close() error { return nil }

func TestCSVLoaderConsultsL2BeforeParsing(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "stocks", "NYSE", "ric\nAAPL.O\n")

	l2 := &fakeL2{store: make(map[string]*domain.Dataset)}
	l := NewCSVLoader(dir, time.Minute)
	l.SetL2(l2)
	ctx := context.Background()

	if _, err := l.Load(ctx, "stocks", "NYSE"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if len(l2.store) != 1 {
		t.Fatalf("expected the first parse to populate L2, got %d entries", len(l2.store))
	}

	l.Invalidate(ctx, "stocks", "NYSE")
	if len(l2.store) != 0 {
		t.Errorf("expected Invalidate to evict L2 too, got %d entries", len(l2.store))
	}

	l2.store[l.path("stocks", "NYSE")] = &domain.Dataset{ProductType: "stocks", Exchange: "NYSE", Columns: []string{"ric"}, Rows: [][]any{{"FROM-L2"}}}
	ds, err := l.Load(ctx, "stocks", "NYSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows[0][0] != "FROM-L2" {
		t.Errorf("expected L1 miss to be served from L2, got %v", ds.Rows[0][0])
	}

	stats := l.Stats()
	if stats.L2Hits != 1 || !stats.RedisUp {
		t.Errorf("expected Stats to merge L2 counters, got %+v", stats)
	}
}

func TestNewDataLoaderSelectsBackend(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.DataDir = t.TempDir()
	loader, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := loader.(*CSVLoader); !ok {
		t.Errorf("expected CSVLoader for DataSourceCSV, got %T", loader)
	}
}
