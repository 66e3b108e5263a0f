// Package exprpredicate implements engine.ExpressionEvaluator using
// github.com/expr-lang/expr, letting conditional combinators (WhenExpr,
// IfThenExpr) take a string predicate instead of a Go closure.
package exprpredicate

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// Evaluator compiles and caches expressions on first use.
type Evaluator struct {
	programs map[string]*expr.Program
}

// New returns a ready Evaluator.
func New() *Evaluator {
	return &Evaluator{programs: make(map[string]*expr.Program)}
}

// EvaluateBool compiles exprStr (caching the compiled program) and runs it
// against vars, requiring a bool result.
func (e *Evaluator) EvaluateBool(exprStr string, vars map[string]any) (bool, error) {
	program, ok := e.programs[exprStr]
	if !ok {
		compiled, err := expr.Compile(exprStr, expr.Env(vars), expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("exprpredicate: compile %q: %w", exprStr, err)
		}
		program = compiled
		e.programs[exprStr] = program
	}

	out, err := expr.Run(program, vars)
	if err != nil {
		return false, fmt.Errorf("exprpredicate: evaluate %q: %w", exprStr, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("exprpredicate: expression %q did not evaluate to bool", exprStr)
	}
	return result, nil
}
