// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"testing"

	"github.com/dataforge/migrator/internal/model"
)

func evalRow(t *testing.T, src string, row model.Row) model.Value {
	t.Helper()
	v, err := NewEvaluator().Evaluate(src, EvalContext{Row: &row})
	if err != nil {
		t.Fatalf("Evaluate(%q) error: %v", src, err)
	}
	return v
}

func TestEvaluateLiterals(t *testing.T) {
	e := NewEvaluator()
	cases := map[string]model.Value{
		`"hello"`: model.String("hello"),
		"42":      model.Float(42),
		"true":    model.Bool(true),
		"null":    model.Null(),
	}
	for src, want := range cases {
		got, err := e.Evaluate(src, EvalContext{})
		if err != nil {
			t.Fatalf("Evaluate(%q) error: %v", src, err)
		}
		if !got.Equal(want) {
			t.Errorf("Evaluate(%q) = %+v, want %+v", src, got, want)
		}
	}
}

func TestEvaluateArithmeticAndConcat(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate("1 + 2 * 3", EvalContext{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if got.Float != 7 {
		t.Errorf("expected precedence-respecting result 7, got %v", got.Float)
	}

	got, err = e.Evaluate(`"a" + "b"`, EvalContext{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if got.Str != "ab" {
		t.Errorf("expected string concatenation, got %q", got.Str)
	}
}

func TestEvaluateRowIdentifierAndIsNull(t *testing.T) {
	row := model.Row{Fields: []model.FieldValue{
		{Name: "email", Value: model.String("a@example.com")},
		{Name: "deleted_at", Value: model.Null()},
	}}
	if got := evalRow(t, "email", row); got.Str != "a@example.com" {
		t.Errorf("expected identifier to resolve to row field, got %+v", got)
	}
	if got := evalRow(t, "deleted_at is null", row); !got.Bool {
		t.Errorf("expected deleted_at is null to be true")
	}
	if got := evalRow(t, "email is not null", row); !got.Bool {
		t.Errorf("expected email is not null to be true")
	}
}

func TestEvaluateWhenExpression(t *testing.T) {
	row := model.Row{Fields: []model.FieldValue{{Name: "status", Value: model.String("active")}}}
	src := `when(status == "active" => "A", status == "pending" => "P", else => "U")`
	got := evalRow(t, src, row)
	if got.Str != "A" {
		t.Errorf("Evaluate(when) = %+v, want A", got)
	}

	row2 := model.Row{Fields: []model.FieldValue{{Name: "status", Value: model.String("deleted")}}}
	got = evalRow(t, src, row2)
	if got.Str != "U" {
		t.Errorf("Evaluate(when) fallthrough to else = %+v, want U", got)
	}
}

func TestEvaluateFunctions(t *testing.T) {
	e := NewEvaluator()
	cases := []struct {
		src  string
		want string
	}{
		{`upper("abc")`, "ABC"},
		{`lower("ABC")`, "abc"},
		{`concat("a", "b", "c")`, "abc"},
		{`trim("  x  ")`, "x"},
	}
	for _, tt := range cases {
		got, err := e.Evaluate(tt.src, EvalContext{})
		if err != nil {
			t.Fatalf("Evaluate(%q) error: %v", tt.src, err)
		}
		if got.AsString() != tt.want {
			t.Errorf("Evaluate(%q) = %q, want %q", tt.src, got.AsString(), tt.want)
		}
	}
}

func TestEvaluateCoalesce(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate(`coalesce(null, null, "fallback")`, EvalContext{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if got.Str != "fallback" {
		t.Errorf("coalesce() = %+v, want fallback", got)
	}
}

func TestEvaluateMatches(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate(`matches("hello@example.com", "^[^@]+@[^@]+$")`, EvalContext{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !got.Bool {
		t.Errorf("expected matches() to return true")
	}
}

func TestEvaluateEnv(t *testing.T) {
	e := NewEvaluator()
	ctx := EvalContext{Env: func(name string) (string, bool) {
		if name == "REGION" {
			return "us-east-1", true
		}
		return "", false
	}}
	got, err := e.Evaluate(`env("REGION")`, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if got.Str != "us-east-1" {
		t.Errorf("env() = %+v, want us-east-1", got)
	}

	got, err = e.Evaluate(`env("MISSING")`, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !got.IsNull() {
		t.Errorf("expected env() of an unset var to be null, got %+v", got)
	}
}
