package dataset

import (
	"fmt"

	"github.com/refdata/validate-service/internal/cache"
	"github.com/refdata/validate-service/internal/domain"
)

// New constructs the configured Data Loader backend: CSV files (with an
// in-process TTL cache, backed by a shared L2 when cfg.Cache names a Redis
// address) or a relational database (pooled connections, no cache — the
// connection pool itself is the resource to conserve).
func New(cfg *domain.Config) (domain.DataLoader, error) {
	switch cfg.DataSource {
	case domain.DataSourceDB:
		return NewDBLoader(cfg.DB)
	case domain.DataSourceCSV, "":
		loader := NewCSVLoader(cfg.DataDir, cfg.Cache.L1TTL)
		if cfg.Cache.RedisAddr != "" {
			// CSVLoader already provides its own L1; only the Redis phase of
			// the two-phase cache is needed here, not cache.New's LRU+Redis
			// combination (that shape is for domain.Cache consumers with no
			// L1 of their own).
			l2, err := cache.NewRedisCache(cfg.Cache.RedisAddr, "", 0)
			if err != nil {
				return nil, fmt.Errorf("initializing L2 cache: %w", err)
			}
			loader.SetL2(l2)
		}
		return loader, nil
	default:
		return nil, fmt.Errorf("unsupported data source backend: %q", cfg.DataSource)
	}
}
