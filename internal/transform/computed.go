// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"fmt"

	"github.com/dataforge/migrator/internal/model"
)

// ComputedField is one computed column a ComputedTransform evaluates and
// writes into each row of a table.
type ComputedField struct {
	Name   string
	Parsed Expr
}

// ComputedTransform evaluates each table's configured computed fields
// against the row and writes the results, overwriting the field if it
// already exists (e.g. a mapped column) or appending a new one.
type ComputedTransform struct {
	// Tables maps destination table name -> the computed fields to
	// evaluate for rows of that table, same keying convention as
	// FieldMapper.Tables.
	Tables map[string][]ComputedField
	Eval   Evaluator
	Env    EnvGetter
}

func (c ComputedTransform) Apply(row model.Row) (model.Row, error) {
	fields, ok := c.Tables[row.Entity.Name]
	if !ok {
		return row, nil
	}
	out := row.Clone()
	for _, cf := range fields {
		v, err := c.Eval.EvaluateExpr(cf.Parsed, EvalContext{Row: &out, Env: c.Env})
		if err != nil {
			return model.Row{}, fmt.Errorf("transform: computed column %q on %s: %w", cf.Name, row.Entity.Name, err)
		}
		out = out.With(cf.Name, v)
	}
	return out, nil
}
