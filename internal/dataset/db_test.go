package dataset

import (
	"context"
	"database/sql"
	"testing"

	"github.com/refdata/validate-service/internal/domain"
	_ "modernc.org/sqlite"
)

func seedDB(t *testing.T, dsn string) {
	t.Helper()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE instruments (ric TEXT, masterid TEXT, exchange TEXT, price REAL)`,
		`INSERT INTO instruments VALUES ('AAPL.O', 'M1', 'NYSE', 150.5)`,
		`INSERT INTO instruments VALUES ('MSFT.O', 'M2', 'NYSE', 300.0)`,
		`INSERT INTO instruments VALUES ('VOD.L', 'M3', 'LSE', 90.0)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestDBLoaderLoadFiltersByExchange(t *testing.T) {
	dsn := "file:" + t.TempDir() + "/ds_test.db?cache=shared"
	seedDB(t, dsn)

	loader, err := NewDBLoader(domain.DBLoaderConfig{
		Driver: "sqlite",
		DSN:    dsn,
		QueryTemplates: map[string]string{
			"stocks": "SELECT ric, masterid, exchange, price FROM instruments WHERE exchange = :exchange",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer loader.Close()

	ds, err := loader.Load(context.Background(), "stocks", "NYSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.RowCount() != 2 {
		t.Fatalf("expected 2 NYSE rows, got %d", ds.RowCount())
	}
}

func TestDBLoaderRequiresExchange(t *testing.T) {
	dsn := "file:" + t.TempDir() + "/ds_test2.db?cache=shared"
	seedDB(t, dsn)

	loader, err := NewDBLoader(domain.DBLoaderConfig{
		Driver:         "sqlite",
		DSN:            dsn,
		QueryTemplates: map[string]string{"stocks": "SELECT * FROM instruments WHERE exchange = :exchange"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer loader.Close()

	_, err = loader.Load(context.Background(), "stocks", "")
	if err == nil {
		t.Fatal("expected error when exchange is empty")
	}
}

func TestDBLoaderUnknownProduct(t *testing.T) {
	dsn := "file:" + t.TempDir() + "/ds_test3.db?cache=shared"
	seedDB(t, dsn)

	loader, err := NewDBLoader(domain.DBLoaderConfig{Driver: "sqlite", DSN: dsn, QueryTemplates: map[string]string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer loader.Close()

	_, err = loader.Load(context.Background(), "futures", "CME")
	if err == nil {
		t.Fatal("expected error for unconfigured product")
	}
}
