// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"testing"

	"github.com/dataforge/migrator/internal/model"
)

func TestPipelineValidatorPassesWhenCheckIsTrue(t *testing.T) {
	v := PipelineValidator{
		Rules: map[string][]ValidationRule{
			"customers": {{Label: "email-present", Table: "customers", Check: mustParse(t, "email is not null"), Action: ValidationFail}},
		},
		Eval: NewEvaluator(),
	}
	row := model.Row{
		Entity: model.Entity{Name: "customers"},
		Fields: []model.FieldValue{{Name: "email", Value: model.String("a@example.com")}},
	}
	result, err := v.Validate(row)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !result.Pass {
		t.Errorf("Validate() = %+v, want Pass=true", result)
	}
}

func TestPipelineValidatorFailsAndReportsRule(t *testing.T) {
	v := PipelineValidator{
		Rules: map[string][]ValidationRule{
			"customers": {{Label: "email-present", Check: mustParse(t, "email is not null"), Message: "email required", Action: ValidationSkip}},
		},
		Eval: NewEvaluator(),
	}
	row := model.Row{
		Entity: model.Entity{Name: "customers"},
		Fields: []model.FieldValue{{Name: "email", Value: model.Null()}},
	}
	result, err := v.Validate(row)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if result.Pass || result.Rule != "email-present" || result.Action != ValidationSkip {
		t.Errorf("Validate() = %+v", result)
	}
}

func TestPipelineValidatorStopsAtFirstFailure(t *testing.T) {
	v := PipelineValidator{
		Rules: map[string][]ValidationRule{
			"customers": {
				{Label: "first", Check: mustParse(t, "email is not null"), Action: ValidationFail},
				{Label: "second", Check: mustParse(t, "1 == 2"), Action: ValidationFail},
			},
		},
		Eval: NewEvaluator(),
	}
	row := model.Row{
		Entity: model.Entity{Name: "customers"},
		Fields: []model.FieldValue{{Name: "email", Value: model.Null()}},
	}
	result, err := v.Validate(row)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if result.Rule != "first" {
		t.Errorf("Validate() should stop at the first failing rule, got %+v", result)
	}
}

func TestPipelineValidatorNonBooleanCheckIsAnError(t *testing.T) {
	v := PipelineValidator{
		Rules: map[string][]ValidationRule{
			"customers": {{Label: "bad-rule", Check: mustParse(t, `"not a bool"`)}},
		},
		Eval: NewEvaluator(),
	}
	row := model.Row{Entity: model.Entity{Name: "customers"}}
	if _, err := v.Validate(row); err == nil {
		t.Errorf("expected a non-boolean check result to be an error")
	}
}

func TestPipelineValidatorSkipsUnconfiguredTable(t *testing.T) {
	v := PipelineValidator{Rules: map[string][]ValidationRule{}, Eval: NewEvaluator()}
	row := model.Row{Entity: model.Entity{Name: "orders"}}
	result, err := v.Validate(row)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !result.Pass {
		t.Errorf("Validate() on an unconfigured table should pass, got %+v", result)
	}
}
