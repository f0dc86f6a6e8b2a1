package persist

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/refdata/validate-service/internal/domain"
)

// openPostgres opens a PostgreSQL connection using cfg.DSN verbatim (a
// standard libpq connection string or URL).
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "host=localhost port=5432 dbname=validate sslmode=disable"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}

	return db, nil
}
