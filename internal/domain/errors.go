package domain

import "errors"

// Sentinel errors surfaced across package boundaries, translated by
// internal/api/errors.go into the single JSON error shape at the HTTP
// boundary. Concrete packages wrap these with fmt.Errorf("...: %w", ...)
// to add context; callers compare with errors.Is.
var (
	// ErrDatasetNotFound is returned by the Data Loader when no dataset
	// exists for a requested (productType, exchange) pair.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrRunNotFound is returned by the Repository when a run ID has no
	// matching Run row.
	ErrRunNotFound = errors.New("run not found")

	// ErrRuleSetNotFound is returned by the Rule Loader when a named
	// custom/combined set does not exist.
	ErrRuleSetNotFound = errors.New("rule set not found")

	// ErrCircularInclude is returned by the Rule Loader when resolving
	// `include` entries detects a cycle.
	ErrCircularInclude = errors.New("circular include detected")

	// ErrInvalidRule is returned by the Expectation Compiler when a rule's
	// parameters don't match its declared type (e.g. ColumnBetween without
	// min_value or max_value).
	ErrInvalidRule = errors.New("invalid rule")

	// ErrUnsupportedExpectation is returned by the Expectation Compiler for
	// a rule type string the compiler doesn't recognize.
	ErrUnsupportedExpectation = errors.New("unsupported expectation type")

	// ErrInvalidCondition is returned when a rule's row-condition
	// expression fails to compile.
	ErrInvalidCondition = errors.New("invalid condition expression")

	// ErrUnknownProduct is returned when a request names a product type
	// that has no configured exchange map entry.
	ErrUnknownProduct = errors.New("unknown product type")

	// ErrUnknownExchange is returned when a request names an exchange not
	// present in the configured exchange map for its product type.
	ErrUnknownExchange = errors.New("unknown exchange")

	// ErrInstrumentNotFound is returned by the Instrument Lookup component
	// when a RIC/master ID has no matching row.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrPersistenceFailed wraps a transactional write failure; the
	// associated Run is still returned to the caller with Persisted=false.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrTransient marks an error the Batch Orchestrator should retry
	// (timeouts, 5xx, connection resets).
	ErrTransient = errors.New("transient error")
)
