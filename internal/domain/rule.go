// Package domain defines the core types and interfaces shared across the
// validation service: rules, datasets, reports, and the component
// boundaries (Repository, DataLoader, Cache, EventBus) that the concrete
// packages implement.
package domain

// ExpectationType names one of the five expectation families the engine
// understands. Unknown type strings are rejected at compile time by the
// expectation compiler, never at evaluation time.
type ExpectationType string

const (
	ColumnUnique       ExpectationType = "ColumnUnique"
	ColumnNotNull      ExpectationType = "ColumnNotNull"
	ColumnInSet        ExpectationType = "ColumnInSet"
	ColumnBetween      ExpectationType = "ColumnBetween"
	ColumnMatchesRegex ExpectationType = "ColumnMatchesRegex"
)

// Layer identifies where in the override hierarchy a Rule originated.
// Runs record the layer of every applied rule for provenance.
type Layer string

const (
	LayerBase            Layer = "base"
	LayerProduct         Layer = "product"
	LayerExchange        Layer = "exchange"
	LayerProductExchange Layer = "product_exchange"
	LayerCustom          Layer = "custom"
	LayerCombined        Layer = "combined"
)

// RuleScope is the tuple (layer, product_type?, exchange?) every loaded
// Rule carries so a Run can record where each applied rule came from.
type RuleScope struct {
	Layer    Layer  `json:"layer"`
	Product  string `json:"productType,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	// Source is a human-readable origin: a file path, or "inline" for
	// programmatic rules passed directly to the compiler.
	Source string `json:"source,omitempty"`
	// SetName is the named rule/combined set this rule was resolved from,
	// empty for base/exchange-layer rules that aren't part of a named set.
	SetName string `json:"setName,omitempty"`
}

// Rule is the declarative, untyped-from-YAML form of an expectation.
// Column expansion (comma-separated column lists) happens before a Rule
// reaches the expectation compiler; every Rule here already names exactly
// one column.
type Rule struct {
	Type      ExpectationType `yaml:"type" json:"type" validate:"required"`
	Column    string          `yaml:"column" json:"column" validate:"required"`
	ValueSet  []string        `yaml:"value_set,omitempty" json:"value_set,omitempty"`
	MinValue  *float64        `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue  *float64        `yaml:"max_value,omitempty" json:"max_value,omitempty"`
	Regex     string          `yaml:"regex,omitempty" json:"regex,omitempty"`
	Condition string          `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Scope is populated by the Rule Loader when it merges a rule into a
	// combined list; it is not part of the YAML wire shape.
	Scope RuleScope `yaml:"-" json:"scope"`
}

// RuleSetKind distinguishes a named rule set's declared purpose. The
// loader parses it from an optional `kind:` field but does not read it or
// require it: rules_applied_label comes from the layers of the applied
// rules (ruleset.RulesAppliedLabel), not from this flag.
type RuleSetKind string

const (
	RuleSetCustom   RuleSetKind = "custom"
	RuleSetCombined RuleSetKind = "combined"
)

// RuleSetDoc is the parsed shape of one named entry in a custom.yaml or
// combined.yaml document: either a flat list of rules, or a document with
// an `include` list plus inline rules appended after the included ones.
type RuleSetDoc struct {
	Kind    RuleSetKind `yaml:"kind,omitempty"`
	Include []string    `yaml:"include,omitempty"`
	Rules   []Rule      `yaml:"rules,omitempty"`
}
