// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import "github.com/dataforge/migrator/internal/model"

// Transform is one stage of a TransformPipeline: it takes a Row and
// returns the transformed Row, or an error if the row cannot be
// transformed (e.g. a computed field's expression fails to evaluate).
type Transform interface {
	Apply(row model.Row) (model.Row, error)
}

// TransformPipeline applies an ordered sequence of Transforms to each row
// read from a source before it reaches the sink. Stages run in the order
// they were added: TableMapper, then FieldMapper, then ComputedTransform,
// then (if copy_columns = MAP_ONLY) FieldPruner.
type TransformPipeline struct {
	stages []Transform
}

func NewPipeline() TransformPipeline { return TransformPipeline{} }

// Add appends stage to the pipeline, returning the pipeline for chaining.
func (p TransformPipeline) Add(stage Transform) TransformPipeline {
	p.stages = append(p.stages, stage)
	return p
}

// AddIf appends stage only if condition holds, letting callers build a
// pipeline conditionally without an if-chain around each Add call.
func (p TransformPipeline) AddIf(condition bool, stage Transform) TransformPipeline {
	if condition {
		return p.Add(stage)
	}
	return p
}

// Apply runs row through every stage in order, threading each stage's
// output into the next.
func (p TransformPipeline) Apply(row model.Row) (model.Row, error) {
	cur := row
	for _, stage := range p.stages {
		var err error
		cur, err = stage.Apply(cur)
		if err != nil {
			return model.Row{}, err
		}
	}
	return cur, nil
}
