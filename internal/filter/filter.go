// Package filter selects stored records with CEL expressions.
//
// Variables available to expressions:
//
//	id          string
//	amount      double
//	priority    double
//	status      string   one of Pending, Processing, Completed, Retrying, FailedPermanently
//	updated_ms  int      unix milliseconds of the last write
//
// Examples:
//
//	status == "FailedPermanently"
//	priority > 0.8 && amount >= 500000.0
//	id.startsWith("tx-")
package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/roach88/txsim/internal/ir"
)

// Filter is a compiled record predicate. The zero value matches everything.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// Compile parses and type-checks expr. An empty expression yields a Filter
// that matches every record.
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("priority", cel.DoubleType),
		cel.Variable("status", cel.StringType),
		cel.Variable("updated_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, fmt.Errorf("cel env: %w", err)
	}

	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("parse filter: %w", iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("check filter: %w", iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, fmt.Errorf("filter must evaluate to bool, got %s", checked.OutputType())
	}

	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, fmt.Errorf("build filter: %w", err)
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match reports whether rec satisfies the expression. Evaluation errors
// count as no match.
func (f Filter) Match(rec ir.Record) bool {
	if !f.enabled {
		return true
	}

	out, _, err := f.prog.Eval(map[string]any{
		"id":         rec.Item.ID(),
		"amount":     rec.Item.Amount(),
		"priority":   rec.Item.Priority(),
		"status":     string(rec.Status),
		"updated_ms": rec.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Apply returns the records that match, preserving order.
func (f Filter) Apply(records []ir.Record) []ir.Record {
	if !f.enabled {
		return records
	}
	out := make([]ir.Record, 0, len(records))
	for _, rec := range records {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}
