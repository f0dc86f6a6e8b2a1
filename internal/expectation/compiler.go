// Package expectation compiles declarative domain.Rule documents into
// typed, checked expectations ready for the validation engine: it
// validates each rule's parameters against its declared type and, for
// rules carrying a row condition, compiles the condition's predicate
// grammar into a CEL program bound to the target dataset's columns.
package expectation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/refdata/validate-service/internal/domain"
)

// Compiled is a Rule paired with its optional compiled row condition,
// ready for the Validation Engine to evaluate against a Dataset.
type Compiled struct {
	Rule      domain.Rule
	Condition cel.Program // nil if Rule.Condition is empty
}

// Compile validates rule's parameters for its declared type and compiles
// its row condition (if any) against columns, the target Dataset's column
// list.
func Compile(rule domain.Rule, columns []string) (*Compiled, error) {
	if err := validateParams(rule); err != nil {
		return nil, err
	}

	c := &Compiled{Rule: rule}
	if strings.TrimSpace(rule.Condition) == "" {
		return c, nil
	}

	prog, err := compileCondition(rule.Condition, columns)
	if err != nil {
		return nil, fmt.Errorf("%w: column %s: %v", domain.ErrInvalidCondition, rule.Column, err)
	}
	c.Condition = prog
	return c, nil
}

// validateParams checks that a rule carries the parameters its declared
// type requires, per the expectation type dispatch table.
func validateParams(rule domain.Rule) error {
	switch rule.Type {
	case domain.ColumnUnique, domain.ColumnNotNull:
		// No parameters beyond the column name.
		return nil

	case domain.ColumnInSet:
		if len(rule.ValueSet) == 0 {
			return fmt.Errorf("%w: %s on %s requires a non-empty value_set", domain.ErrInvalidRule, rule.Type, rule.Column)
		}
		return nil

	case domain.ColumnBetween:
		if rule.MinValue == nil && rule.MaxValue == nil {
			return fmt.Errorf("%w: %s on %s requires min_value and/or max_value", domain.ErrInvalidRule, rule.Type, rule.Column)
		}
		if rule.MinValue != nil && rule.MaxValue != nil && *rule.MinValue > *rule.MaxValue {
			return fmt.Errorf("%w: %s on %s has min_value > max_value", domain.ErrInvalidRule, rule.Type, rule.Column)
		}
		return nil

	case domain.ColumnMatchesRegex:
		if strings.TrimSpace(rule.Regex) == "" {
			return fmt.Errorf("%w: %s on %s requires a regex", domain.ErrInvalidRule, rule.Type, rule.Column)
		}
		if _, err := regexp.Compile(rule.Regex); err != nil {
			return fmt.Errorf("%w: %s on %s has invalid regex: %v", domain.ErrInvalidRule, rule.Type, rule.Column, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedExpectation, rule.Type)
	}
}

// keywordPattern matches whole-word occurrences of the condition
// grammar's boolean keywords so they can be translated to CEL operators
// without touching identifiers that merely contain them (e.g. "android").
var keywordPattern = regexp.MustCompile(`\b(and|or|not)\b`)

// compileCondition translates the row-condition grammar (bare
// identifiers, literals, comparison operators, and/or/not, parens) into
// CEL syntax and compiles it against a dynamic environment declaring one
// DynType variable per dataset column.
func compileCondition(expr string, columns []string) (cel.Program, error) {
	translated := keywordPattern.ReplaceAllStringFunc(expr, func(kw string) string {
		switch kw {
		case "and":
			return "&&"
		case "or":
			return "||"
		case "not":
			return "!"
		default:
			return kw
		}
	})

	opts := make([]cel.EnvOption, 0, len(columns))
	for _, col := range columns {
		opts = append(opts, cel.Variable(col, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("build condition environment: %w", err)
	}

	ast, issues := env.Compile(translated)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", translated, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition %q must evaluate to bool, got %s", translated, ast.OutputType())
	}

	return env.Program(ast)
}
