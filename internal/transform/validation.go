// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"fmt"

	"github.com/dataforge/migrator/internal/model"
)

// ValidationAction selects what the consumer does with a row that fails a
// ValidationRule's check.
type ValidationAction int

const (
	ValidationSkip ValidationAction = iota // drop the row, continue the run
	ValidationFail                         // abort the run
	ValidationWarn                         // log and keep the row
)

// ValidationRule is one row-level check a PipelineValidator runs against
// every row of a table: Check must evaluate to a boolean.
type ValidationRule struct {
	Label   string
	Table   string
	Check   Expr
	Message string
	Action  ValidationAction
}

// ValidationResult is the outcome of validating one row.
type ValidationResult struct {
	Pass    bool
	Rule    string
	Message string
	Action  ValidationAction
}

// PipelineValidator runs a table's configured ValidationRules against each
// row, stopping at the first rule that fails (later rules are not
// evaluated against a row the consumer is already going to skip or fail
// on).
type PipelineValidator struct {
	Rules map[string][]ValidationRule // keyed by destination table name
	Eval  Evaluator
	Env   EnvGetter
}

// Validate checks row against its table's rules. A non-boolean Check
// result is itself an error: a validation rule that cannot produce
// pass/fail is a configuration mistake, not a row-level failure.
func (v PipelineValidator) Validate(row model.Row) (ValidationResult, error) {
	rules, ok := v.Rules[row.Entity.Name]
	if !ok {
		return ValidationResult{Pass: true}, nil
	}
	for _, rule := range rules {
		result, err := v.Eval.EvaluateExpr(rule.Check, EvalContext{Row: &row, Env: v.Env})
		if err != nil {
			return ValidationResult{}, fmt.Errorf("transform: validation rule %q: %w", rule.Label, err)
		}
		var passed bool
		switch result.Kind {
		case model.ValueBool:
			passed = result.Bool
		case model.ValueNull:
			passed = false
		default:
			return ValidationResult{}, fmt.Errorf("transform: validation rule %q returned a non-boolean value", rule.Label)
		}
		if !passed {
			return ValidationResult{
				Pass:    false,
				Rule:    rule.Label,
				Message: rule.Message,
				Action:  rule.Action,
			}, nil
		}
	}
	return ValidationResult{Pass: true}, nil
}
