package metric

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Filter selects solution rows with a CEL expression over `row`.
//
// Fields available to the expression:
//   - row.state  string
//   - row.month  string, integral months in canonical form ("7", not "07")
//   - row.value  double, the true value
//   - row.id     string, empty when the table has no ID column
//
// Examples:
//   - row.state in ["CA", "OR", "WA"]
//   - row.month == "8" && row.value > 1000.0
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter compiles expr once; the result must be a bool expression
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter %q must return bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program filter %q: %w", expr, err)
	}

	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression
func (f *Filter) String() string {
	return f.expr
}

// Match evaluates the expression against one record
func (f *Filter) Match(rec Record) (bool, error) {
	key := rec.Key()
	out, _, err := f.prg.Eval(map[string]interface{}{
		"row": map[string]interface{}{
			"state": key.State,
			"month": key.Month,
			"value": rec.Value,
			"id":    rec.ID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("eval filter %q on %s: %w", f.expr, key, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", f.expr, out.Value())
	}
	return matched, nil
}

// Apply returns the records the expression accepts, in order
func (f *Filter) Apply(records []Record) ([]Record, error) {
	kept := make([]Record, 0, len(records))
	for _, rec := range records {
		ok, err := f.Match(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}
