package ruleset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/refdata/validate-service/internal/domain"
)

func writeFile(t *testing.T, dir, relPath, content string) {
	t.Helper()
	full := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", relPath, err)
	}
}

func TestNormalizeProduct(t *testing.T) {
	cases := map[string]string{
		"stock": "stocks", "Stock": "stocks", "stocks": "stocks",
		"option": "options", "future": "futures", "futures": "futures",
		"  Stocks  ": "stocks",
	}
	for in, want := range cases {
		if got := NormalizeProduct(in); got != want {
			t.Errorf("NormalizeProduct(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadCombinedMergesLayersInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
- type: ColumnNotNull
  column: ric
`)
	writeFile(t, dir, "stocks/base.yaml", `
- type: ColumnUnique
  column: masterid
`)
	writeFile(t, dir, "exchanges/nyse.yaml", `
- type: ColumnInSet
  column: currency
  value_set: [USD]
`)
	writeFile(t, dir, "stocks/exchanges/nyse/exchange.yaml", `
- type: ColumnBetween
  column: price
  min_value: 0
`)

	l := New(dir)
	result, err := l.LoadCombined("stock", "nyse", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rules) != 4 {
		t.Fatalf("expected 4 merged rules, got %d", len(result.Rules))
	}
	wantOrder := []domain.ExpectationType{
		domain.ColumnNotNull, domain.ColumnUnique, domain.ColumnInSet, domain.ColumnBetween,
	}
	for i, want := range wantOrder {
		if result.Rules[i].Type != want {
			t.Errorf("rule %d: expected type %s, got %s", i, want, result.Rules[i].Type)
		}
	}
	if result.Rules[3].Scope.Layer != domain.LayerProductExchange {
		t.Errorf("expected product_exchange layer last, got %s", result.Rules[3].Scope.Layer)
	}
}

func TestLoadCombinedMissingFilesAreNotErrors(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	result, err := l.LoadCombined("stocks", "LSE", nil, nil)
	if err != nil {
		t.Fatalf("expected no error for an empty rules dir: %v", err)
	}
	if len(result.Rules) != 0 {
		t.Errorf("expected no rules, got %d", len(result.Rules))
	}
}

func TestLoadCombinedNamedSetLookupChain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "combined.yaml", `
global_set:
  rules:
    - type: ColumnNotNull
      column: ric
`)
	writeFile(t, dir, "stocks/custom.yaml", `
global_set:
  rules:
    - type: ColumnUnique
      column: masterid
`)

	l := New(dir)
	// stocks/custom.yaml should win over root combined.yaml for the same name.
	result, err := l.LoadCombined("stocks", "", []string{"global_set"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rules) != 1 || result.Rules[0].Type != domain.ColumnUnique {
		t.Fatalf("expected the product-layer custom.yaml entry to win, got %+v", result.Rules)
	}
}

func TestLoadCombinedResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "combined.yaml", `
base_checks:
  rules:
    - type: ColumnNotNull
      column: ric
full_checks:
  include: [base_checks]
  rules:
    - type: ColumnUnique
      column: masterid
`)

	l := New(dir)
	result, err := l.LoadCombined("", "", []string{"full_checks"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rules) != 2 {
		t.Fatalf("expected 2 rules (included + inline), got %d", len(result.Rules))
	}
	if result.Rules[0].Type != domain.ColumnNotNull || result.Rules[1].Type != domain.ColumnUnique {
		t.Errorf("expected included rule before inline rule, got %+v", result.Rules)
	}
}

func TestLoadCombinedDetectsCircularInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "combined.yaml", `
a:
  include: [b]
b:
  include: [a]
`)

	l := New(dir)
	_, err := l.LoadCombined("", "", []string{"a"}, nil)
	if !errors.Is(err, domain.ErrCircularInclude) {
		t.Fatalf("expected ErrCircularInclude, got %v", err)
	}
}

func TestLoadCombinedUnknownNamedSet(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	_, err := l.LoadCombined("", "", []string{"nope"}, nil)
	if !errors.Is(err, domain.ErrRuleSetNotFound) {
		t.Fatalf("expected ErrRuleSetNotFound, got %v", err)
	}
}

func TestLoadCombinedLegacyCustomFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "custom/legacy_set.yaml", `
- type: ColumnMatchesRegex
  column: ric
  regex: "^[A-Z]+$"
`)

	l := New(dir)
	result, err := l.LoadCombined("", "", []string{"legacy_set"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rules) != 1 || result.Rules[0].Type != domain.ColumnMatchesRegex {
		t.Fatalf("expected legacy custom set to resolve, got %+v", result.Rules)
	}
}

func TestLoadCombinedInlineRulesAppendLast(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
- type: ColumnNotNull
  column: ric
`)

	l := New(dir)
	inline := []domain.Rule{{Type: domain.ColumnUnique, Column: "masterid"}}
	result, err := l.LoadCombined("", "", nil, inline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rules) != 2 || result.Rules[1].Scope.SetName != "inline" {
		t.Fatalf("expected inline rule last with SetName=inline, got %+v", result.Rules)
	}
}

func TestCatalogListsNamedSets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "combined.yaml", `
set_a:
  rules: []
set_b:
  rules: []
`)

	l := New(dir)
	names, err := l.Catalog("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 named sets, got %v", names)
	}
}
