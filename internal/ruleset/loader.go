// Package ruleset implements the Rule Loader (spec.md C3): it discovers
// and parses the layered YAML rule-document hierarchy under a rules
// directory, merges base/product/exchange layers with named custom and
// combined rule sets, and recursively resolves `include` references with
// cycle detection — grounded on atlasgurus-rulestone's YAML rule-document
// loading shape.
package ruleset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/refdata/validate-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// Loader reads the layered rules directory described in spec.md §4.3 and
// produces the merged rule list for a validation request.
type Loader struct {
	rulesDir string

	mu      sync.RWMutex
	lists   map[string][]domain.Rule                // relative path -> parsed base/exchange rule list
	docs    map[string]map[string]domain.RuleSetDoc // relative path -> name -> parsed named set
	missing map[string]bool                         // relative path -> confirmed absent
}

// New returns a Loader reading rule documents from rulesDir.
func New(rulesDir string) *Loader {
	return &Loader{
		rulesDir: rulesDir,
		lists:    make(map[string][]domain.Rule),
		docs:     make(map[string]map[string]domain.RuleSetDoc),
		missing:  make(map[string]bool),
	}
}

// NormalizeProduct canonicalizes a product type token to its plural form
// (stock -> stocks, option -> options, future -> futures), per Open
// Question #1. Already-plural or unrecognized tokens pass through
// lower-cased and trimmed.
func NormalizeProduct(product string) string {
	p := strings.ToLower(strings.TrimSpace(product))
	switch p {
	case "stock":
		return "stocks"
	case "option":
		return "options"
	case "future":
		return "futures"
	default:
		return p
	}
}

// LoadResult is the merged rule list plus the provenance of each layer
// that contributed to it.
type LoadResult struct {
	Rules   []domain.Rule
	Sources []domain.RuleScope
}

// LoadCombined implements load_combined(product?, exchange?, custom_names?,
// inline_rules?): it concatenates global base, product base, root
// exchange, product×exchange, named custom/combined sets (resolved via
// the 8-step lookup chain, recursively expanding includes), and finally
// inline rules, in that fixed order. Duplicates across layers are
// permitted and preserved — the engine treats each as a distinct
// expectation.
func (l *Loader) LoadCombined(product, exchange string, customNames []string, inline []domain.Rule) (*LoadResult, error) {
	product = NormalizeProduct(product)
	exchange = strings.TrimSpace(exchange)
	exchangePath := strings.ToLower(exchange)

	result := &LoadResult{}

	l.appendLayer(result, "base.yaml", domain.RuleScope{Layer: domain.LayerBase, Source: "base.yaml"})

	if product != "" {
		path := filepath.Join(product, "base.yaml")
		l.appendLayer(result, path, domain.RuleScope{Layer: domain.LayerProduct, Product: product, Source: path})
	}

	if exchange != "" {
		path := filepath.Join("exchanges", exchangePath+".yaml")
		l.appendLayer(result, path, domain.RuleScope{Layer: domain.LayerExchange, Exchange: exchange, Source: path})
	}

	if product != "" && exchange != "" {
		path := filepath.Join(product, "exchanges", exchangePath, "exchange.yaml")
		l.appendLayer(result, path, domain.RuleScope{Layer: domain.LayerProductExchange, Product: product, Exchange: exchange, Source: path})
	}

	for _, name := range customNames {
		rules, source, err := l.resolveNamed(product, exchange, name, newVisited())
		if err != nil {
			return nil, err
		}
		for i := range rules {
			rules[i].Scope = source
		}
		result.Rules = append(result.Rules, rules...)
		result.Sources = append(result.Sources, source)
	}

	if len(inline) > 0 {
		scope := domain.RuleScope{Layer: domain.LayerCustom, SetName: "inline"}
		for i := range inline {
			inline[i].Scope = scope
		}
		result.Rules = append(result.Rules, inline...)
		result.Sources = append(result.Sources, scope)
	}

	return result, nil
}

// LoadCustomOnly resolves only customNames (plus inline rules), skipping
// the base/product/exchange layers entirely — the rule set backing
// validate-custom requests.
func (l *Loader) LoadCustomOnly(product, exchange string, customNames []string, inline []domain.Rule) (*LoadResult, error) {
	product = NormalizeProduct(product)
	exchange = strings.TrimSpace(exchange)
	result := &LoadResult{}

	for _, name := range customNames {
		rules, source, err := l.resolveNamed(product, exchange, name, newVisited())
		if err != nil {
			return nil, err
		}
		for i := range rules {
			rules[i].Scope = source
		}
		result.Rules = append(result.Rules, rules...)
		result.Sources = append(result.Sources, source)
	}

	if len(inline) > 0 {
		scope := domain.RuleScope{Layer: domain.LayerCustom, SetName: "inline"}
		for i := range inline {
			inline[i].Scope = scope
		}
		result.Rules = append(result.Rules, inline...)
		result.Sources = append(result.Sources, scope)
	}

	return result, nil
}

// appendLayer loads a base/exchange list file (if present) and stamps its
// scope onto each rule before appending.
func (l *Loader) appendLayer(result *LoadResult, relPath string, scope domain.RuleScope) {
	rules, ok, err := l.readList(relPath)
	if err != nil || !ok {
		return
	}
	for i := range rules {
		rules[i].Scope = scope
	}
	result.Rules = append(result.Rules, rules...)
	result.Sources = append(result.Sources, scope)
}

// namedFileCandidate is one entry of the 8-step lookup chain: a relative
// path to a mapping-of-name-to-RuleSet file, and the Layer its entries are
// stamped with when found there.
type namedFileCandidate struct {
	path  string
	layer domain.Layer
}

// lookupChain returns the first 6 candidate files for resolving a named
// rule set (fewer when product or exchange is empty), in first-hit-wins
// order; resolveNamed tries the two legacy files after them. Exchange
// directory lookup is
// case-insensitive (folder names are lowercase on disk); the caller's
// original-case exchange string is preserved separately for provenance.
func lookupChain(product, exchange string) []namedFileCandidate {
	exchange = strings.ToLower(exchange)
	var chain []namedFileCandidate
	if product != "" && exchange != "" {
		chain = append(chain,
			namedFileCandidate{filepath.Join(product, "exchanges", exchange, "custom.yaml"), domain.LayerProductExchange},
			namedFileCandidate{filepath.Join(product, "exchanges", exchange, "combined.yaml"), domain.LayerProductExchange},
		)
	}
	if product != "" {
		chain = append(chain,
			namedFileCandidate{filepath.Join(product, "custom.yaml"), domain.LayerProduct},
			namedFileCandidate{filepath.Join(product, "combined.yaml"), domain.LayerProduct},
		)
	}
	chain = append(chain,
		namedFileCandidate{"custom.yaml", domain.LayerBase},
		namedFileCandidate{"combined.yaml", domain.LayerBase},
	)
	// The legacy per-file layout (custom/<name>.yaml, a bare rule list
	// keyed implicitly by filename) is not a name->doc mapping, so
	// resolveNamed reads it separately.
	return chain
}

// resolveNamed finds name via the lookup chain and recursively expands its
// includes. visited guards against cycles across the whole resolution path
// (not just within one file).
func (l *Loader) resolveNamed(product, exchange, name string, visited *visitedSet) (rules []domain.Rule, scope domain.RuleScope, err error) {
	if !visited.enter(name) {
		return nil, domain.RuleScope{}, fmt.Errorf("%w: chain=%s", domain.ErrCircularInclude, visited.chain())
	}
	defer visited.leave(name)

	for _, candidate := range lookupChain(product, exchange) {
		docs, ok, err := l.readDocs(candidate.path)
		if err != nil {
			return nil, domain.RuleScope{}, err
		}
		if !ok {
			continue
		}
		doc, found := docs[name]
		if !found {
			continue
		}
		scope := domain.RuleScope{Layer: candidate.layer, Product: product, Exchange: exchange, SetName: name, Source: candidate.path}
		resolved, err := l.expandDoc(product, exchange, doc, visited)
		if err != nil {
			return nil, domain.RuleScope{}, err
		}
		return resolved, scope, nil
	}

	// Legacy layout: custom/<name>.yaml (a bare list) or
	// custom/combined/<name>.yaml (a name->RuleSetDoc mapping that must
	// hold an entry called name).
	legacyList := filepath.Join("custom", name+".yaml")
	if rules, ok, err := l.readList(legacyList); err == nil && ok {
		return rules, domain.RuleScope{Layer: domain.LayerCustom, Product: product, Exchange: exchange, SetName: name, Source: legacyList}, nil
	}

	legacyCombined := filepath.Join("custom", "combined", name+".yaml")
	if docs, ok, err := l.readDocs(legacyCombined); err == nil && ok {
		if doc, found := docs[name]; found {
			resolved, err := l.expandDoc(product, exchange, doc, visited)
			if err != nil {
				return nil, domain.RuleScope{}, err
			}
			return resolved, domain.RuleScope{Layer: domain.LayerCombined, Product: product, Exchange: exchange, SetName: name, Source: legacyCombined}, nil
		}
	}

	return nil, domain.RuleScope{}, fmt.Errorf("%w: %s", domain.ErrRuleSetNotFound, name)
}

// expandDoc resolves a RuleSetDoc's includes (in declaration order,
// depth-first, left-to-right) then appends its own inline rules.
func (l *Loader) expandDoc(product, exchange string, doc domain.RuleSetDoc, visited *visitedSet) ([]domain.Rule, error) {
	var out []domain.Rule
	for _, included := range doc.Include {
		rules, _, err := l.resolveNamed(product, exchange, included, visited)
		if err != nil {
			return nil, err
		}
		out = append(out, rules...)
	}
	out = append(out, doc.Rules...)
	return out, nil
}

// readList loads and caches a base/exchange YAML file whose top level is a
// bare list of rules. A missing file is not an error: ok is false.
func (l *Loader) readList(relPath string) ([]domain.Rule, bool, error) {
	l.mu.RLock()
	if rules, ok := l.lists[relPath]; ok {
		l.mu.RUnlock()
		return rules, true, nil
	}
	if l.missing[relPath] {
		l.mu.RUnlock()
		return nil, false, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(l.rulesDir, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			l.mu.Lock()
			l.missing[relPath] = true
			l.mu.Unlock()
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", relPath, err)
	}

	var rules []domain.Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, false, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidRule, relPath, err)
	}

	l.mu.Lock()
	l.lists[relPath] = rules
	l.mu.Unlock()
	return rules, true, nil
}

// readDocs loads and caches a combined/custom YAML file whose top level is
// a mapping of name -> RuleSet.
func (l *Loader) readDocs(relPath string) (map[string]domain.RuleSetDoc, bool, error) {
	l.mu.RLock()
	if docs, ok := l.docs[relPath]; ok {
		l.mu.RUnlock()
		return docs, true, nil
	}
	if l.missing[relPath] {
		l.mu.RUnlock()
		return nil, false, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(l.rulesDir, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			l.mu.Lock()
			l.missing[relPath] = true
			l.mu.Unlock()
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", relPath, err)
	}

	docs := make(map[string]domain.RuleSetDoc)
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, false, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidRule, relPath, err)
	}

	l.mu.Lock()
	l.docs[relPath] = docs
	l.mu.Unlock()
	return docs, true, nil
}

// Catalog lists every named custom and combined rule set discoverable
// across the layered hierarchy for product/exchange (or the global layer
// when both are empty), for the catalog-enumeration endpoints.
func (l *Loader) Catalog(product, exchange string) ([]string, error) {
	product = NormalizeProduct(product)
	exchange = strings.TrimSpace(exchange)

	seen := make(map[string]bool)
	var names []string
	for _, candidate := range lookupChain(product, exchange) {
		docs, ok, err := l.readDocs(candidate.path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for name := range docs {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// ExpandColumns splits any Rule whose Column is a comma-separated list into
// one Rule per column, trimming whitespace and dropping empty entries;
// every other field is copied unchanged. Rules with a single column pass
// through untouched. This runs once, after the full layered rule list has
// been merged and before it reaches the expectation compiler — grounded on
// the original implementation's _expand_rules_with_multiple_columns, which
// expands rules right after loading and before building the suite.
func ExpandColumns(rules []domain.Rule) []domain.Rule {
	expanded := make([]domain.Rule, 0, len(rules))
	for _, rule := range rules {
		if !strings.Contains(rule.Column, ",") {
			expanded = append(expanded, rule)
			continue
		}
		for _, col := range strings.Split(rule.Column, ",") {
			col = strings.TrimSpace(col)
			if col == "" {
				continue
			}
			r := rule
			r.Column = col
			expanded = append(expanded, r)
		}
	}
	return expanded
}

// RulesAppliedLabel derives the Run's rules_applied_label deterministically
// from the layers of the scopes that contributed rules to a request:
// "combined" if any scope has LayerCombined, else "custom" if any has
// LayerCustom, else "exchange" if any has LayerExchange or
// LayerProductExchange, else "base". Only the legacy
// custom/combined/<name>.yaml file yields LayerCombined, and only the
// legacy custom/<name>.yaml file and inline rules yield LayerCustom; a
// named set found through lookupChain carries the layer of the file it
// came from. Neither rule set names nor RuleSetDoc.Kind are inspected.
func RulesAppliedLabel(scopes []domain.RuleScope) string {
	hasCombined, hasCustom, hasExchange := false, false, false
	for _, scope := range scopes {
		switch scope.Layer {
		case domain.LayerCombined:
			hasCombined = true
		case domain.LayerCustom:
			hasCustom = true
		case domain.LayerExchange, domain.LayerProductExchange:
			hasExchange = true
		}
	}
	switch {
	case hasCombined:
		return "combined"
	case hasCustom:
		return "custom"
	case hasExchange:
		return "exchange"
	default:
		return "base"
	}
}
