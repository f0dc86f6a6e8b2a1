package engine

import (
	"context"
	"testing"

	"github.com/refdata/validate-service/internal/domain"
	"github.com/refdata/validate-service/internal/expectation"
)

func compile(t *testing.T, rule domain.Rule, columns []string) *expectation.Compiled {
	t.Helper()
	c, err := expectation.Compile(rule, columns)
	if err != nil {
		t.Fatalf("compile %+v: %v", rule, err)
	}
	return c
}

func sampleDataset() *domain.Dataset {
	return &domain.Dataset{
		ProductType: "stocks",
		Exchange:    "NYSE",
		Columns:     []string{"ric", "masterid", "currency", "price"},
		Rows: [][]any{
			{"AAPL.O", "M1", "USD", 150.0},
			{"MSFT.O", "M2", "USD", 300.0},
			{"", "M3", "GBP", 50.0},
			{"AAPL.O", "M1", "EUR", -5.0},
		},
	}
}

func TestEngineEvaluateAllColumnNotNull(t *testing.T) {
	ds := sampleDataset()
	rule := compile(t, domain.Rule{Type: domain.ColumnNotNull, Column: "ric"}, ds.Columns)

	e := New(4)
	report, err := e.EvaluateAll(context.Background(), ds, []*expectation.Compiled{rule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success {
		t.Fatal("expected failure due to blank ric")
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(report.Results))
	}
	res := report.Results[0]
	if res.MissingCount != 1 || res.UnexpectedCount != 1 {
		t.Errorf("unexpected counts: missing=%d unexpected=%d", res.MissingCount, res.UnexpectedCount)
	}
}

func TestEngineEvaluateAllColumnUniqueDetectsDuplicates(t *testing.T) {
	ds := sampleDataset()
	rule := compile(t, domain.Rule{Type: domain.ColumnUnique, Column: "masterid"}, ds.Columns)

	e := New(4)
	report, err := e.EvaluateAll(context.Background(), ds, []*expectation.Compiled{rule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := report.Results[0]
	if res.Success {
		t.Fatal("expected failure: M1 appears twice")
	}
	if res.UnexpectedCount != 2 {
		t.Errorf("expected 2 unexpected rows for duplicated M1, got %d", res.UnexpectedCount)
	}
	if len(res.PartialUnexpected) != 1 || res.PartialUnexpected[0].Value != "M1" || res.PartialUnexpected[0].Count != 2 {
		t.Errorf("unexpected partial_unexpected: %+v", res.PartialUnexpected)
	}
}

func TestEngineEvaluateAllColumnInSet(t *testing.T) {
	ds := sampleDataset()
	rule := compile(t, domain.Rule{Type: domain.ColumnInSet, Column: "currency", ValueSet: []string{"USD"}}, ds.Columns)

	e := New(4)
	report, _ := e.EvaluateAll(context.Background(), ds, []*expectation.Compiled{rule})
	res := report.Results[0]
	if res.UnexpectedCount != 2 {
		t.Errorf("expected 2 rows outside {USD}, got %d", res.UnexpectedCount)
	}
}

func TestEngineEvaluateAllColumnBetween(t *testing.T) {
	ds := sampleDataset()
	min := 0.0
	rule := compile(t, domain.Rule{Type: domain.ColumnBetween, Column: "price", MinValue: &min}, ds.Columns)

	e := New(4)
	report, _ := e.EvaluateAll(context.Background(), ds, []*expectation.Compiled{rule})
	res := report.Results[0]
	if res.UnexpectedCount != 1 {
		t.Errorf("expected 1 row below zero, got %d", res.UnexpectedCount)
	}
}

func TestEngineEvaluateAllColumnMatchesRegex(t *testing.T) {
	ds := sampleDataset()
	rule := compile(t, domain.Rule{Type: domain.ColumnMatchesRegex, Column: "ric", Regex: `^[A-Z]+\.[A-Z]$`}, ds.Columns)

	e := New(4)
	report, _ := e.EvaluateAll(context.Background(), ds, []*expectation.Compiled{rule})
	res := report.Results[0]
	if res.MissingCount != 1 {
		t.Errorf("expected blank ric counted as missing, got %d", res.MissingCount)
	}
}

func TestEngineEvaluateAllAppliesRowCondition(t *testing.T) {
	ds := sampleDataset()
	rule := compile(t, domain.Rule{
		Type:      domain.ColumnInSet,
		Column:    "currency",
		ValueSet:  []string{"USD"},
		Condition: `price > 0`,
	}, ds.Columns)

	e := New(4)
	report, err := e.EvaluateAll(context.Background(), ds, []*expectation.Compiled{rule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := report.Results[0]
	// Only rows with price > 0 are considered: AAPL/USD, MSFT/USD, blank-ric/GBP (50.0).
	if res.ElementCount != 3 {
		t.Errorf("expected 3 rows after condition filter, got %d", res.ElementCount)
	}
	if res.UnexpectedCount != 1 {
		t.Errorf("expected 1 non-USD row among filtered rows, got %d", res.UnexpectedCount)
	}
}

func TestEngineEvaluateAllMissingColumnIsVacuouslySatisfied(t *testing.T) {
	ds := sampleDataset()
	rule := compile(t, domain.Rule{Type: domain.ColumnNotNull, Column: "does_not_exist"}, append(ds.Columns, "does_not_exist"))

	e := New(4)
	report, err := e.EvaluateAll(context.Background(), ds, []*expectation.Compiled{rule})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Results[0].Success {
		t.Error("expected rule against absent column to succeed vacuously")
	}
}

func TestEngineEvaluateAllRunsRulesConcurrently(t *testing.T) {
	ds := sampleDataset()
	rules := []*expectation.Compiled{
		compile(t, domain.Rule{Type: domain.ColumnNotNull, Column: "ric"}, ds.Columns),
		compile(t, domain.Rule{Type: domain.ColumnUnique, Column: "masterid"}, ds.Columns),
		compile(t, domain.Rule{Type: domain.ColumnInSet, Column: "currency", ValueSet: []string{"USD", "GBP", "EUR"}}, ds.Columns),
	}

	e := New(2)
	report, err := e.EvaluateAll(context.Background(), ds, rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}
	if report.ElementCount != 4 {
		t.Errorf("expected dataset element count 4, got %d", report.ElementCount)
	}
}

func TestEngineEvaluateAllEmptyRuleSetSucceeds(t *testing.T) {
	ds := sampleDataset()
	e := New(4)
	report, err := e.EvaluateAll(context.Background(), ds, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Success {
		t.Error("expected success with no rules applied")
	}
}
