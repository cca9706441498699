// Package expr evaluates branch gate expressions using JavaScript (goja).
// Gates are small boolean predicates over sample inputs, e.g.
// `experiment == "RNA-Seq"` or `subsample_depth > 0`.
package expr

import (
	"fmt"

	"github.com/dop251/goja"
)

// Evaluator evaluates gate expressions against an input context.
type Evaluator struct{}

// NewEvaluator creates a gate expression evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// setupVM initializes a fresh JavaScript VM with the inputs bound both
// as an `inputs` object and as bare top-level names, so gates can read
// `experiment` or `inputs.experiment` interchangeably.
func (e *Evaluator) setupVM(inputs map[string]any) (*goja.Runtime, error) {
	vm := goja.New()

	if err := vm.Set("inputs", inputs); err != nil {
		return nil, fmt.Errorf("set inputs: %w", err)
	}
	for k, v := range inputs {
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
	}

	return vm, nil
}

// Evaluate evaluates an expression and returns its value.
func (e *Evaluator) Evaluate(expr string, inputs map[string]any) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}

	vm, err := e.setupVM(inputs)
	if err != nil {
		return nil, err
	}

	val, err := vm.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("expression error in %q: %w", expr, err)
	}
	if val == goja.Undefined() {
		return nil, fmt.Errorf("expression %q returned undefined (unknown input reference)", expr)
	}

	return val.Export(), nil
}

// EvaluateBool evaluates a gate expression that must produce a boolean.
// A nil result counts as false; any other non-boolean is an error.
func (e *Evaluator) EvaluateBool(expr string, inputs map[string]any) (bool, error) {
	val, err := e.Evaluate(expr, inputs)
	if err != nil {
		return false, err
	}

	switch v := val.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("gate %q did not return boolean: %T", expr, val)
	}
}
