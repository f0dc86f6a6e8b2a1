package config

import (
	"time"

	"github.com/refdata/validate-service/internal/domain"
)

// Resolver wraps a resolved Config snapshot with the read-only accessors
// spec.md §4.1 describes. It never reloads automatically; callers that
// need fresh configuration must call Resolve again.
type Resolver struct {
	cfg *domain.Config
}

// NewResolver wraps an already-resolved Config.
func NewResolver(cfg *domain.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Config returns the underlying snapshot.
func (r *Resolver) Config() *domain.Config { return r.cfg }

// DataSourceBackend reports whether the Data Loader reads CSV files or a
// database.
func (r *Resolver) DataSourceBackend() domain.DataSourceBackend { return r.cfg.DataSource }

// DataDir is the CSV backend's root folder.
func (r *Resolver) DataDir() string { return r.cfg.DataDir }

// RulesDir is the Rule Loader's root folder.
func (r *Resolver) RulesDir() string { return r.cfg.RulesDir }

// ExchangesFor returns the configured exchange codes for a product type.
func (r *Resolver) ExchangesFor(productType string) []string {
	return r.cfg.ExchangeMap[productType]
}

// DSN is the persistence layer's connection string.
func (r *Resolver) DSN() string { return r.cfg.Repository.DSN }

// CacheTTLs returns the L1 (in-process) and L2 (Redis) dataset cache TTLs.
func (r *Resolver) CacheTTLs() (l1, l2 time.Duration) {
	return r.cfg.Cache.L1TTL, r.cfg.Cache.L2TTL
}

// PoolSizes returns the persistence connection pool's open/idle limits.
func (r *Resolver) PoolSizes() (maxOpen, maxIdle int) {
	return r.cfg.Repository.MaxOpenConns, r.cfg.Repository.MaxIdleConns
}

// IsProd reports whether the resolved environment is production.
func (r *Resolver) IsProd() bool { return r.cfg.Environment == domain.EnvProd }
