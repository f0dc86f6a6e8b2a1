// Package dataset implements the Data Loader (spec.md C2): a uniform
// interface over a CSV-file backend and a relational-DB backend, each
// returning a columnar domain.Dataset for a (product, exchange) pair.
// Grounded on the teacher's internal/cache/lru.go mutex-guarded,
// TTL-aware map cache, repurposed here to key on file path instead of
// dataset key and to coalesce concurrent misses per path.
package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/refdata/validate-service/internal/domain"
	"github.com/refdata/validate-service/internal/ruleset"
)

type csvEntry struct {
	dataset  *domain.Dataset
	loadedAt time.Time
}

// CSVLoader implements domain.DataLoader over a directory of CSV files
// laid out as <dataDir>/<product>/<exchange>.csv. Its own map is the L1
// tier; an optional domain.Cache (set via SetL2) backs it with a Redis L2
// shared across processes, per the two-phase cache spec.md C2 names.
type CSVLoader struct {
	dataDir string
	ttl     time.Duration

	mu       sync.Mutex
	cache    map[string]csvEntry
	inflight map[string]*sync.WaitGroup

	l2 domain.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCSVLoader returns a CSVLoader rooted at dataDir, caching parsed
// datasets for ttl.
func NewCSVLoader(dataDir string, ttl time.Duration) *CSVLoader {
	return &CSVLoader{
		dataDir:  dataDir,
		ttl:      ttl,
		cache:    make(map[string]csvEntry),
		inflight: make(map[string]*sync.WaitGroup),
	}
}

// SetL2 attaches a shared L2 cache (typically Redis-backed) consulted on
// every L1 miss before the CSV file itself is parsed. Passing nil (the
// zero value) disables the L2 tier, which is the default.
func (l *CSVLoader) SetL2(c domain.Cache) {
	l.l2 = c
}

func (l *CSVLoader) path(product, exchange string) string {
	return filepath.Join(l.dataDir, ruleset.NormalizeProduct(product), strings.ToUpper(exchange)+".csv")
}

// Load returns the dataset for (product, exchange), serving a fresh cache
// entry when available or parsing the file otherwise. Concurrent misses
// for the same path are coalesced: only one goroutine parses, the rest
// wait and share its result.
func (l *CSVLoader) Load(ctx context.Context, product, exchange string) (*domain.Dataset, error) {
	path := l.path(product, exchange)

	l.mu.Lock()
	if entry, ok := l.cache[path]; ok && time.Since(entry.loadedAt) < l.ttl {
		l.mu.Unlock()
		l.hits.Add(1)
		return copyDataset(entry.dataset), nil
	}

	if wg, inflight := l.inflight[path]; inflight {
		l.mu.Unlock()
		wg.Wait()
		l.mu.Lock()
		entry, ok := l.cache[path]
		l.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, path)
		}
		return copyDataset(entry.dataset), nil
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	l.inflight[path] = wg
	l.mu.Unlock()
	l.misses.Add(1)

	ds, err := l.loadFromL2OrParse(ctx, path, product, exchange)

	l.mu.Lock()
	delete(l.inflight, path)
	if err == nil {
		l.cache[path] = csvEntry{dataset: ds, loadedAt: time.Now()}
	}
	l.mu.Unlock()
	wg.Done()

	if err != nil {
		return nil, err
	}
	return copyDataset(ds), nil
}

// loadFromL2OrParse consults the L2 cache (if attached) before falling
// back to parsing the CSV file, publishing a freshly parsed dataset to L2
// so other processes sharing it skip the parse too.
func (l *CSVLoader) loadFromL2OrParse(ctx context.Context, path, product, exchange string) (*domain.Dataset, error) {
	if l.l2 != nil {
		if ds, ok := l.l2.GetDataset(ctx, path); ok {
			return ds, nil
		}
	}

	ds, err := parseCSV(path, ruleset.NormalizeProduct(product), strings.ToUpper(exchange))
	if err != nil {
		return nil, err
	}

	if l.l2 != nil {
		l.l2.SetDataset(ctx, path, ds, l.ttl)
	}
	return ds, nil
}

// WarmUp eagerly loads and caches a single (product, exchange) dataset.
// Callers pre-loading a list should treat a returned error as a warning,
// not abort the remaining warm-ups.
func (l *CSVLoader) WarmUp(ctx context.Context, product, exchange string) error {
	_, err := l.Load(ctx, product, exchange)
	return err
}

// Invalidate evicts the cache entry for (product, exchange) from both the
// L1 map and, if attached, the L2 cache. An empty exchange evicts every
// cached exchange under that product.
func (l *CSVLoader) Invalidate(ctx context.Context, product, exchange string) {
	l.mu.Lock()
	var evicted []string
	if exchange != "" {
		path := l.path(product, exchange)
		delete(l.cache, path)
		evicted = []string{path}
	} else {
		prefix := filepath.Join(l.dataDir, ruleset.NormalizeProduct(product)) + string(filepath.Separator)
		for path := range l.cache {
			if strings.HasPrefix(path, prefix) {
				delete(l.cache, path)
				evicted = append(evicted, path)
			}
		}
	}
	l.mu.Unlock()

	if l.l2 != nil {
		for _, path := range evicted {
			l.l2.Invalidate(ctx, path)
		}
	}
}

// Stats reports the CSV cache's L1 size and hit/miss counters via the
// shared CacheStats shape, merged with the attached L2's counters when
// present.
func (l *CSVLoader) Stats() domain.CacheStats {
	l.mu.Lock()
	size := len(l.cache)
	l.mu.Unlock()

	stats := domain.CacheStats{
		L1Size:   size,
		L1Hits:   l.hits.Load(),
		L1Misses: l.misses.Load(),
	}
	if l.l2 != nil {
		l2Stats := l.l2.Stats()
		stats.L2Hits = l2Stats.L2Hits
		stats.L2Misses = l2Stats.L2Misses
		stats.RedisUp = l2Stats.RedisUp
	}
	return stats
}

func parseCSV(path, product, exchange string) (*domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDatasetNotFound, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: empty or unreadable: %v", domain.ErrDatasetNotFound, path, err)
	}

	var rows [][]any
	for {
		record, err := r.Read()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		row := make([]any, len(header))
		for i := range header {
			if i >= len(record) {
				row[i] = nil
				continue
			}
			row[i] = coerceCell(record[i])
		}
		rows = append(rows, row)
	}

	return &domain.Dataset{
		ProductType: product,
		Exchange:    exchange,
		Columns:     header,
		Rows:        rows,
		LoadedAt:    time.Now().Unix(),
	}, nil
}

// coerceCell infers a cell's scalar type: blank becomes nil (missing),
// numeric-looking strings become float64, everything else stays a string.
func coerceCell(raw string) any {
	if raw == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// copyDataset returns a defensive copy so cached values are never mutated
// by a caller.
func copyDataset(ds *domain.Dataset) *domain.Dataset {
	cols := make([]string, len(ds.Columns))
	copy(cols, ds.Columns)

	rows := make([][]any, len(ds.Rows))
	for i, row := range ds.Rows {
		r := make([]any, len(row))
		copy(r, row)
		rows[i] = r
	}

	return &domain.Dataset{
		ProductType: ds.ProductType,
		Exchange:    ds.Exchange,
		Columns:     cols,
		Rows:        rows,
		LoadedAt:    ds.LoadedAt,
	}
}
