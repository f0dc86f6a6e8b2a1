package persist

// Schema definitions for the validation service's persistence layer.
// Compatible with both SQLite and PostgreSQL. Table names and columns
// mirror the original implementation's SQL schema (GeValidationRuns,
// GeExpectationResults, GeValidationRulesApplied), per spec.md §4.6/§6.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS GeValidationRuns (
    run_id TEXT PRIMARY KEY,
    region TEXT,
    product_type TEXT NOT NULL,
    exchange TEXT NOT NULL,
    success INTEGER NOT NULL,
    element_count INTEGER NOT NULL,
    total INTEGER NOT NULL,
    successful INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    rules_applied_label TEXT,
    custom_rule_names TEXT,
    api_url TEXT,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP NOT NULL,
    duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ge_validation_runs_product_exchange ON GeValidationRuns(product_type, exchange);
CREATE INDEX IF NOT EXISTS idx_ge_validation_runs_started ON GeValidationRuns(started_at);
CREATE INDEX IF NOT EXISTS idx_ge_validation_runs_region ON GeValidationRuns(region);
`

const schemaExpectationResults = `
CREATE TABLE IF NOT EXISTS GeExpectationResults (
    run_id TEXT NOT NULL,
    type TEXT NOT NULL,
    column_name TEXT NOT NULL,
    success INTEGER NOT NULL,
    element_count INTEGER NOT NULL,
    unexpected_count INTEGER NOT NULL,
    unexpected_percent REAL NOT NULL,
    missing_count INTEGER NOT NULL,
    missing_percent REAL NOT NULL,
    result_details_json TEXT,
    scope TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ge_expectation_results_run ON GeExpectationResults(run_id);
`

const schemaRulesApplied = `
CREATE TABLE IF NOT EXISTS GeValidationRulesApplied (
    run_id TEXT NOT NULL,
    layer TEXT NOT NULL,
    product_type TEXT,
    exchange TEXT,
    source TEXT,
    set_name TEXT
);

CREATE INDEX IF NOT EXISTS idx_ge_validation_rules_applied_run ON GeValidationRulesApplied(run_id);
`

// AllSchemas returns all schema statements in dependency order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaExpectationResults,
		schemaRulesApplied,
	}
}
