// Package persist provides the transactional SQL persistence layer for
// validation runs, working with either SQLite (dev) or PostgreSQL
// (uat/prod) through database/sql.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/refdata/validate-service/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

// SQLRepository implements domain.Repository over database/sql, writing a
// Run plus its ExpectationResults and RulesApplied rows in one
// transaction; a failed write leaves no partial rows and is reported to
// the caller as domain.ErrPersistenceFailed with the Run annotated
// Persisted=false.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured driver, applies pool settings, and runs
// migrations.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite", "":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun persists report's Run row, ExpectationResults, and RulesApplied
// in a single transaction. On any failure the transaction is rolled back
// and the returned Run has Persisted=false, wrapped in
// domain.ErrPersistenceFailed; the caller still gets the Run value so the
// HTTP layer can report the in-memory result even when the write failed.
func (r *SQLRepository) SaveRun(ctx context.Context, report *domain.ValidationReport) (*domain.Run, error) {
	run := &domain.Run{
		RunID:             report.RunID,
		Region:            report.Region,
		ProductType:       report.ProductType,
		Exchange:          report.Exchange,
		Success:           report.Success,
		ElementCount:      report.ElementCount,
		Total:             report.Total,
		Successful:        report.Successful,
		Failed:            report.Failed,
		RulesAppliedLabel: report.RulesAppliedLabel,
		CustomRuleNames:   report.CustomRuleNames,
		APIURL:            report.APIURL,
		StartedAt:         report.StartedAt,
		CompletedAt:       report.CompletedAt,
		DurationMs:        report.DurationMs,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return run, fmt.Errorf("%w: begin transaction: %v", domain.ErrPersistenceFailed, err)
	}
	defer tx.Rollback()

	insertRun := `
		INSERT INTO GeValidationRuns (
			run_id, region, product_type, exchange, success, element_count,
			total, successful, failed, rules_applied_label, custom_rule_names, api_url,
			started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	success := 0
	if run.Success {
		success = 1
	}
	if _, err := tx.ExecContext(ctx, r.rebind(insertRun),
		run.RunID, run.Region, run.ProductType, run.Exchange, success, run.ElementCount,
		run.Total, run.Successful, run.Failed, run.RulesAppliedLabel, run.CustomRuleNames, run.APIURL,
		run.StartedAt, run.CompletedAt, run.DurationMs,
	); err != nil {
		return run, fmt.Errorf("%w: insert run: %v", domain.ErrPersistenceFailed, err)
	}

	insertResult := `
		INSERT INTO GeExpectationResults (
			run_id, type, column_name, success, element_count,
			unexpected_count, unexpected_percent, missing_count, missing_percent,
			result_details_json, scope
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, res := range report.Results {
		// result_details_json stores the full expectation result (including
		// partial_unexpected) for post-hoc analysis, not just the unexpected
		// values list.
		details, _ := json.Marshal(res)
		scope, _ := json.Marshal(res.Scope)
		resSuccess := 0
		if res.Success {
			resSuccess = 1
		}
		if _, err := tx.ExecContext(ctx, r.rebind(insertResult),
			run.RunID, res.Type, res.Column, resSuccess, res.ElementCount,
			res.UnexpectedCount, res.UnexpectedPercent, res.MissingCount, res.MissingPercent,
			string(details), string(scope),
		); err != nil {
			return run, fmt.Errorf("%w: insert expectation result: %v", domain.ErrPersistenceFailed, err)
		}
	}

	insertApplied := `
		INSERT INTO GeValidationRulesApplied (run_id, layer, product_type, exchange, source, set_name)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, scope := range report.RulesApplied {
		if _, err := tx.ExecContext(ctx, r.rebind(insertApplied),
			run.RunID, scope.Layer, scope.Product, scope.Exchange, scope.Source, scope.SetName,
		); err != nil {
			return run, fmt.Errorf("%w: insert rule applied: %v", domain.ErrPersistenceFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return run, fmt.Errorf("%w: commit: %v", domain.ErrPersistenceFailed, err)
	}

	run.Persisted = true
	return run, nil
}

// GetRun reconstructs a ValidationReport from the Runs/ExpectationResults/
// RulesApplied tables.
func (r *SQLRepository) GetRun(ctx context.Context, runID string) (*domain.ValidationReport, error) {
	query := `
		SELECT run_id, region, product_type, exchange, success, element_count,
			   total, successful, failed, rules_applied_label, custom_rule_names, api_url,
			   started_at, completed_at, duration_ms
		FROM GeValidationRuns WHERE run_id = ?
	`
	var report domain.ValidationReport
	var success int
	var region, rulesAppliedLabel, customRuleNames, apiURL sql.NullString
	err := r.db.QueryRowContext(ctx, r.rebind(query), runID).Scan(
		&report.RunID, &region, &report.ProductType, &report.Exchange, &success,
		&report.ElementCount, &report.Total, &report.Successful, &report.Failed,
		&rulesAppliedLabel, &customRuleNames, &apiURL,
		&report.StartedAt, &report.CompletedAt, &report.DurationMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	report.Success = success == 1
	report.Region = region.String
	report.RulesAppliedLabel = rulesAppliedLabel.String
	report.CustomRuleNames = customRuleNames.String
	report.APIURL = apiURL.String

	resultsQuery := `
		SELECT type, column_name, success, element_count, unexpected_count, unexpected_percent,
			   missing_count, missing_percent, result_details_json, scope
		FROM GeExpectationResults WHERE run_id = ?
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(resultsQuery), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var res domain.ExpectationResult
		var resSuccess int
		var details, scope string
		if err := rows.Scan(&res.Type, &res.Column, &resSuccess, &res.ElementCount,
			&res.UnexpectedCount, &res.UnexpectedPercent, &res.MissingCount, &res.MissingPercent,
			&details, &scope); err != nil {
			return nil, err
		}
		res.Success = resSuccess == 1
		// result_details_json holds the full marshalled ExpectationResult;
		// unmarshal into a copy so the columns already scanned above aren't
		// clobbered by a stale/partial blob, then recover partial_unexpected.
		var full domain.ExpectationResult
		if err := json.Unmarshal([]byte(details), &full); err == nil {
			res.PartialUnexpected = full.PartialUnexpected
		}
		json.Unmarshal([]byte(scope), &res.Scope)
		report.Results = append(report.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	appliedQuery := `
		SELECT layer, product_type, exchange, source, set_name
		FROM GeValidationRulesApplied WHERE run_id = ?
	`
	appliedRows, err := r.db.QueryContext(ctx, r.rebind(appliedQuery), runID)
	if err != nil {
		return nil, err
	}
	defer appliedRows.Close()

	for appliedRows.Next() {
		var scope domain.RuleScope
		if err := appliedRows.Scan(&scope.Layer, &scope.Product, &scope.Exchange, &scope.Source, &scope.SetName); err != nil {
			return nil, err
		}
		report.RulesApplied = append(report.RulesApplied, scope)
	}

	return &report, appliedRows.Err()
}

// ListRuns returns Run summaries for a product/exchange, most recent
// first.
func (r *SQLRepository) ListRuns(ctx context.Context, productType, exchange string, limit, offset int) ([]domain.Run, error) {
	query := `
		SELECT run_id, region, product_type, exchange, success, element_count,
			   total, successful, failed, rules_applied_label, custom_rule_names, api_url,
			   started_at, completed_at, duration_ms
		FROM GeValidationRuns
		WHERE product_type = ? AND exchange = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), productType, exchange, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var run domain.Run
		var success int
		var region, rulesAppliedLabel, customRuleNames, apiURL sql.NullString
		if err := rows.Scan(&run.RunID, &region, &run.ProductType, &run.Exchange, &success,
			&run.ElementCount, &run.Total, &run.Successful, &run.Failed,
			&rulesAppliedLabel, &customRuleNames, &apiURL,
			&run.StartedAt, &run.CompletedAt, &run.DurationMs); err != nil {
			return nil, err
		}
		run.Success = success == 1
		run.Region = region.String
		run.RulesAppliedLabel = rulesAppliedLabel.String
		run.CustomRuleNames = customRuleNames.String
		run.APIURL = apiURL.String
		run.Persisted = true
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// Stats exposes the pool's sql.DBStats. It is not part of
// domain.Repository, and /health/detailed does not report it.
func (r *SQLRepository) Stats() sql.DBStats {
	return r.db.Stats()
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL; SQLite
// accepts ? natively so this is a no-op for that driver.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
