package domain

import "time"

// ExpectationResult is the outcome of evaluating a single compiled rule
// against a Dataset. UnexpectedCount/PartialUnexpected are only populated
// for failures; PartialUnexpected is capped at the top 20 distinct
// offending values (see spec.md §4.5), grouped with their counts.
// MissingPercent is computed over element_count. UnexpectedPercent is
// computed over element_count - missing_count (the non-null denominator)
// for value-checks; for ColumnNotNull, UnexpectedPercent equals
// MissingPercent.
type ExpectationResult struct {
	Type              ExpectationType   `json:"type"`
	Column            string            `json:"column"`
	Success           bool              `json:"success"`
	ElementCount      int               `json:"elementCount"`
	UnexpectedCount   int               `json:"unexpectedCount"`
	UnexpectedPercent float64           `json:"unexpectedPercent"`
	MissingCount      int               `json:"missingCount"`
	MissingPercent    float64           `json:"missingPercent"`
	PartialUnexpected []UnexpectedValue `json:"partialUnexpected,omitempty"`
	Scope             RuleScope         `json:"scope"`
	Error             string            `json:"error,omitempty"`
}

// UnexpectedValue pairs an offending value with how many rows it appeared
// in, as recorded in ExpectationResult.PartialUnexpected.
type UnexpectedValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ValidationReport is the full result of validating one (productType,
// exchange) dataset against the resolved rule set for a single request.
// Total/Successful/Failed satisfy the testable property
// successful + failed == total == len(results) (spec.md §8).
type ValidationReport struct {
	RunID             string              `json:"runId"`
	Region            string              `json:"region,omitempty"`
	ProductType       string              `json:"productType"`
	Exchange          string              `json:"exchange"`
	Success           bool                `json:"success"`
	ElementCount      int                 `json:"elementCount"`
	Total             int                 `json:"total"`
	Successful        int                 `json:"successful"`
	Failed            int                 `json:"failed"`
	Results           []ExpectationResult `json:"results"`
	RulesApplied      []RuleScope         `json:"rulesApplied"`
	RulesAppliedLabel string              `json:"rulesAppliedLabel,omitempty"`
	CustomRuleNames   string              `json:"customRuleNames,omitempty"`
	APIURL            string              `json:"apiUrl,omitempty"`
	StartedAt         time.Time           `json:"startedAt"`
	CompletedAt       time.Time           `json:"completedAt"`
	DurationMs        int64               `json:"durationMs"`
}

// Run is the persisted record of a validation invocation, the row stored
// in the GeValidationRuns table; ExpectationResults and RulesApplied are
// stored in their own tables keyed by RunID.
type Run struct {
	RunID             string    `json:"runId"`
	Region            string    `json:"region,omitempty"`
	ProductType       string    `json:"productType"`
	Exchange          string    `json:"exchange"`
	Success           bool      `json:"success"`
	ElementCount      int       `json:"elementCount"`
	Total             int       `json:"total"`
	Successful        int       `json:"successful"`
	Failed            int       `json:"failed"`
	RulesAppliedLabel string    `json:"rulesAppliedLabel,omitempty"`
	CustomRuleNames   string    `json:"customRuleNames,omitempty"`
	APIURL            string    `json:"apiUrl,omitempty"`
	StartedAt         time.Time `json:"startedAt"`
	CompletedAt       time.Time `json:"completedAt"`
	DurationMs        int64     `json:"durationMs"`
	Persisted         bool      `json:"persisted"`
}
