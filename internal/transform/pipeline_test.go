// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"errors"
	"testing"

	"github.com/dataforge/migrator/internal/model"
)

type stageFunc func(row model.Row) (model.Row, error)

func (f stageFunc) Apply(row model.Row) (model.Row, error) { return f(row) }

func TestTransformPipelineAppliesStagesInOrder(t *testing.T) {
	var order []string
	p := NewPipeline().
		Add(stageFunc(func(row model.Row) (model.Row, error) {
			order = append(order, "first")
			return row.With("seen_first", model.Bool(true)), nil
		})).
		Add(stageFunc(func(row model.Row) (model.Row, error) {
			order = append(order, "second")
			return row.With("seen_second", model.Bool(true)), nil
		}))

	out, err := p.Apply(model.Row{Entity: model.Entity{Name: "t"}})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("stages ran out of order: %v", order)
	}
	if _, ok := out.Get("seen_first"); !ok {
		t.Errorf("expected seen_first field from first stage")
	}
	if _, ok := out.Get("seen_second"); !ok {
		t.Errorf("expected seen_second field from second stage")
	}
}

func TestTransformPipelineAddIfSkipsWhenFalse(t *testing.T) {
	ran := false
	p := NewPipeline().AddIf(false, stageFunc(func(row model.Row) (model.Row, error) {
		ran = true
		return row, nil
	}))
	if _, err := p.Apply(model.Row{}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if ran {
		t.Errorf("AddIf(false, ...) should not have added the stage")
	}
}

func TestTransformPipelineAddIfIncludesWhenTrue(t *testing.T) {
	ran := false
	p := NewPipeline().AddIf(true, stageFunc(func(row model.Row) (model.Row, error) {
		ran = true
		return row, nil
	}))
	if _, err := p.Apply(model.Row{}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if !ran {
		t.Errorf("AddIf(true, ...) should have added the stage")
	}
}

func TestTransformPipelineStopsOnStageError(t *testing.T) {
	sentinel := errors.New("boom")
	secondRan := false
	p := NewPipeline().
		Add(stageFunc(func(row model.Row) (model.Row, error) { return row, sentinel })).
		Add(stageFunc(func(row model.Row) (model.Row, error) {
			secondRan = true
			return row, nil
		}))
	_, err := p.Apply(model.Row{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Apply() error = %v, want sentinel", err)
	}
	if secondRan {
		t.Errorf("pipeline should stop after a stage error")
	}
}

func TestTransformPipelineEndToEndMapAndCompute(t *testing.T) {
	p := NewPipeline().
		Add(TableMapper{NameMap: NewNameMap(map[string]string{"legacy_customers": "customers"})}).
		Add(FieldMapper{Tables: map[string]NameMap{
			"customers": NewNameMap(map[string]string{"cust_name": "name"}),
		}}).
		Add(ComputedTransform{
			Tables: map[string][]ComputedField{
				"customers": {{Name: "greeting", Parsed: mustParse(t, `concat("hi ", name)`)}},
			},
			Eval: NewEvaluator(),
		}).
		Add(NewFieldPruner(map[string][]string{"customers": {"name", "greeting"}}, nil))

	row := model.Row{
		Entity: model.Entity{Name: "legacy_customers"},
		Fields: []model.FieldValue{
			{Name: "cust_name", Value: model.String("Ada")},
			{Name: "internal_id", Value: model.Int(99)},
		},
	}
	out, err := p.Apply(row)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if out.Entity.Name != "customers" {
		t.Fatalf("Entity.Name = %q, want customers", out.Entity.Name)
	}
	if len(out.Fields) != 2 {
		t.Fatalf("expected pruning to leave exactly 2 fields, got %+v", out.Fields)
	}
	greeting, ok := out.Get("greeting")
	if !ok || greeting.Str != "hi Ada" {
		t.Errorf("greeting = %+v, ok=%v, want 'hi Ada'", greeting, ok)
	}
}
