package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	"github.com/refdata/validate-service/internal/domain"
	_ "modernc.org/sqlite"
)

// DBLoader implements domain.DataLoader over a relational database: each
// product type has a configured query template containing a ":exchange"
// bind parameter, executed against a fixed-size connection pool.
type DBLoader struct {
	db        *sql.DB
	driver    string
	templates map[string]string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewDBLoader opens the pool described by cfg and, when cfg.PrePing is
// set, validates connectivity with a ping before returning.
func NewDBLoader(cfg domain.DBLoaderConfig) (*DBLoader, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s dataset source: %w", cfg.Driver, err)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 5
	}
	overflow := cfg.Overflow
	if overflow <= 0 {
		overflow = 15
	}
	recycle := cfg.RecycleSeconds
	if recycle <= 0 {
		recycle = 3600
	}

	db.SetMaxOpenConns(poolSize + overflow)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(time.Duration(recycle) * time.Second)

	if cfg.PrePing {
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("pre-ping %s dataset source: %w", cfg.Driver, err)
		}
	}

	return &DBLoader{db: db, driver: cfg.Driver, templates: cfg.QueryTemplates}, nil
}

// Load runs the product's query template with exchange bound to its
// ":exchange" placeholder and returns the result as a Dataset. Exchange is
// required for the DB backend (there is no "scan every exchange" mode).
func (l *DBLoader) Load(ctx context.Context, product, exchange string) (*domain.Dataset, error) {
	if exchange == "" {
		return nil, fmt.Errorf("%w: exchange is required for the database backend", domain.ErrUnknownExchange)
	}

	template, ok := l.templates[product]
	if !ok {
		l.misses.Add(1)
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, product)
	}

	query := l.bind(template)

	rows, err := l.db.QueryContext(ctx, query, exchange)
	if err != nil {
		return nil, fmt.Errorf("query %s dataset: %w", product, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var dataRows [][]any
	for rows.Next() {
		scanTargets := make([]any, len(columns))
		values := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		dataRows = append(dataRows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	l.hits.Add(1)
	return &domain.Dataset{
		ProductType: product,
		Exchange:    exchange,
		Columns:     columns,
		Rows:        dataRows,
		LoadedAt:    time.Now().Unix(),
	}, nil
}

// bind rewrites the template's ":exchange" placeholder to the driver's
// native positional parameter syntax.
func (l *DBLoader) bind(template string) string {
	placeholder := "?"
	if l.driver == "postgres" {
		placeholder = "$1"
	}
	return strings.ReplaceAll(template, ":exchange", placeholder)
}

// WarmUp issues a real query to prime the DB connection pool for
// (product, exchange); there is no dataset cache to populate on this
// backend.
func (l *DBLoader) WarmUp(ctx context.Context, product, exchange string) error {
	_, err := l.Load(ctx, product, exchange)
	return err
}

// Invalidate is a no-op: the DB backend always queries live data.
func (l *DBLoader) Invalidate(ctx context.Context, product, exchange string) {}

// Stats reports query hit/miss counters; L1Size is always 0 since this
// backend holds no dataset cache.
func (l *DBLoader) Stats() domain.CacheStats {
	return domain.CacheStats{
		L1Hits:   l.hits.Load(),
		L1Misses: l.misses.Load(),
	}
}

// Close disposes the connection pool.
func (l *DBLoader) Close() error {
	return l.db.Close()
}
