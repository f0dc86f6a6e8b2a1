// Package engine implements the Validation Engine (spec.md C5): it runs a
// compiled expectation set against a loaded Dataset and produces a
// ValidationReport, fanning rules out across a bounded worker pool the
// way the teacher's CEL rule engine parallelizes per-transaction rule
// evaluation.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/refdata/validate-service/internal/domain"
	"github.com/refdata/validate-service/internal/expectation"
)

// maxRetries bounds the transient-error retry budget per expectation
// evaluation; evaluation itself is pure (no I/O), so retries only matter
// for the rare case a row condition program errors on unexpected input
// shapes.
const maxRetries = 3

// Engine evaluates a set of compiled expectations against a Dataset.
type Engine struct {
	maxWorkers int
}

// New returns an Engine that evaluates at most maxWorkers expectations
// concurrently.
func New(maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Engine{maxWorkers: maxWorkers}
}

// EvaluateAll runs every compiled rule against ds and assembles the
// resulting ValidationReport. Rules are evaluated concurrently, but each
// result is stored at its rule's index, so Results (and RulesApplied)
// follow the input order of rules.
func (e *Engine) EvaluateAll(ctx context.Context, ds *domain.Dataset, rules []*expectation.Compiled) (*domain.ValidationReport, error) {
	started := time.Now().UTC()

	results := make([]domain.ExpectationResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *expectation.Compiled) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = e.evaluateWithRetry(ctx, ds, r)
		}(i, rule)
	}
	wg.Wait()

	success := true
	successful := 0
	for _, res := range results {
		if res.Success {
			successful++
		} else {
			success = false
		}
	}

	completed := time.Now().UTC()
	scopes := make([]domain.RuleScope, len(rules))
	for i, r := range rules {
		scopes[i] = r.Rule.Scope
	}

	return &domain.ValidationReport{
		ProductType:  ds.ProductType,
		Exchange:     ds.Exchange,
		Success:      success,
		ElementCount: ds.RowCount(),
		Total:        len(results),
		Successful:   successful,
		Failed:       len(results) - successful,
		Results:      results,
		RulesApplied: scopes,
		StartedAt:    started,
		CompletedAt:  completed,
		DurationMs:   completed.Sub(started).Milliseconds(),
	}, nil
}

func (e *Engine) evaluateWithRetry(ctx context.Context, ds *domain.Dataset, rule *expectation.Compiled) domain.ExpectationResult {
	var last domain.ExpectationResult
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := evaluateRule(ds, rule)
		if err == nil {
			return result
		}
		last = domain.ExpectationResult{
			Type:   rule.Rule.Type,
			Column: rule.Rule.Column,
			Scope:  rule.Rule.Scope,
			Error:  err.Error(),
		}
		select {
		case <-ctx.Done():
			return last
		default:
		}
	}
	return last
}

func evaluateRule(ds *domain.Dataset, rule *expectation.Compiled) (domain.ExpectationResult, error) {
	eval, ok := evaluators[rule.Rule.Type]
	if !ok {
		return domain.ExpectationResult{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedExpectation, rule.Rule.Type)
	}

	colIdx := ds.ColumnIndex(rule.Rule.Column)
	if colIdx < 0 {
		return domain.ExpectationResult{
			Type:    rule.Rule.Type,
			Column:  rule.Rule.Column,
			Success: true, // a rule against a column absent from this dataset is vacuously satisfied
			Scope:   rule.Rule.Scope,
		}, nil
	}

	elementCount := 0
	missingCount := 0
	unexpectedCounts := newOrderedCounts()
	valueCounts := newOrderedCounts() // only populated for ColumnUnique

	for i, row := range ds.Rows {
		if rule.Condition != nil {
			pass, err := evalCondition(rule.Condition, ds.RowMap(i))
			if err != nil {
				return domain.ExpectationResult{}, fmt.Errorf("%w: row %d: %v", domain.ErrTransient, i, err)
			}
			if !pass {
				continue
			}
		}

		elementCount++
		var value any
		if colIdx < len(row) {
			value = row[colIdx]
		}

		if isMissing(value) {
			missingCount++
			if rule.Rule.Type == domain.ColumnNotNull {
				unexpectedCounts.add("")
			}
			continue
		}

		if rule.Rule.Type == domain.ColumnUnique {
			valueCounts.add(toString(value))
			continue
		}

		if !eval(value, rule.Rule) {
			unexpectedCounts.add(toString(value))
		}
	}

	if rule.Rule.Type == domain.ColumnUnique {
		for _, v := range valueCounts.order {
			if c := valueCounts.counts[v]; c > 1 {
				unexpectedCounts.set(v, c)
			}
		}
	}

	unexpectedCount := unexpectedCounts.total()

	// missing_percent is computed over element_count; unexpected_percent
	// is computed over the non-null denominator (element_count -
	// missing_count). For ColumnNotNull, unexpected_count is exactly
	// missing_count, so unexpected_percent is set to missing_percent.
	var missingPercent float64
	if elementCount > 0 {
		missingPercent = float64(missingCount) / float64(elementCount) * 100
	}
	unexpectedPercent := missingPercent
	if rule.Rule.Type != domain.ColumnNotNull {
		if denominator := elementCount - missingCount; denominator > 0 {
			unexpectedPercent = float64(unexpectedCount) / float64(denominator) * 100
		} else {
			unexpectedPercent = 0
		}
	}

	return domain.ExpectationResult{
		Type:              rule.Rule.Type,
		Column:            rule.Rule.Column,
		Success:           unexpectedCount == 0,
		ElementCount:      elementCount,
		UnexpectedCount:   unexpectedCount,
		UnexpectedPercent: unexpectedPercent,
		MissingCount:      missingCount,
		MissingPercent:    missingPercent,
		PartialUnexpected: topUnexpected(unexpectedCounts, 20),
		Scope:             rule.Rule.Scope,
	}, nil
}

func evalCondition(prog cel.Program, row map[string]any) (bool, error) {
	out, _, err := prog.Eval(row)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to bool")
	}
	return b, nil
}

func isMissing(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// orderedCounts tallies string keys while remembering first-seen order, so
// ties in topUnexpected can be broken by the order values were first
// encountered rather than by value string (spec.md §4.5).
type orderedCounts struct {
	order  []string
	counts map[string]int
}

func newOrderedCounts() *orderedCounts {
	return &orderedCounts{counts: make(map[string]int)}
}

func (o *orderedCounts) add(v string) {
	if _, ok := o.counts[v]; !ok {
		o.order = append(o.order, v)
	}
	o.counts[v]++
}

// set records a precomputed count for v, preserving first-seen order.
func (o *orderedCounts) set(v string, count int) {
	if _, ok := o.counts[v]; !ok {
		o.order = append(o.order, v)
	}
	o.counts[v] = count
}

func (o *orderedCounts) total() int {
	sum := 0
	for _, c := range o.counts {
		sum += c
	}
	return sum
}
