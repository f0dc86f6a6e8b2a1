package domain

import "context"

// Repository persists validation runs across the Runs/ExpectationResults/
// RulesApplied tables in a single transaction and serves read-back queries
// for the HTTP surface's history endpoints.
type Repository interface {
	SaveRun(ctx context.Context, report *ValidationReport) (*Run, error)
	GetRun(ctx context.Context, runID string) (*ValidationReport, error)
	ListRuns(ctx context.Context, productType, exchange string, limit, offset int) ([]Run, error)
	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig selects and tunes the SQL backend: "sqlite" for dev,
// "postgres" for uat/prod, mirroring the Config Resolver's environment
// token.
type RepositoryConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}
