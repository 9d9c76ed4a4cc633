// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"strings"

	"github.com/dataforge/migrator/internal/model"
)

// FieldPruner drops fields a row carries that were neither explicitly
// mapped nor computed, used when an item's copy_columns setting is
// MAP_ONLY rather than ALL: the destination table should only ever see
// columns the migration spec named.
type FieldPruner struct {
	// Tables maps destination table name -> the set of field names (case
	// insensitive) to keep.
	Tables map[string]map[string]struct{}
}

// NewFieldPruner builds the keep-set for table from its mapped field
// targets and computed field names, lower-cased for case-insensitive
// matching against row field names.
func NewFieldPruner(mappedTargets map[string][]string, computed map[string][]ComputedField) FieldPruner {
	tables := make(map[string]map[string]struct{})
	for table, targets := range mappedTargets {
		keep := tables[table]
		if keep == nil {
			keep = make(map[string]struct{})
			tables[table] = keep
		}
		for _, name := range targets {
			keep[strings.ToLower(name)] = struct{}{}
		}
	}
	for table, fields := range computed {
		keep := tables[table]
		if keep == nil {
			keep = make(map[string]struct{})
			tables[table] = keep
		}
		for _, cf := range fields {
			keep[strings.ToLower(cf.Name)] = struct{}{}
		}
	}
	return FieldPruner{Tables: tables}
}

func (p FieldPruner) Apply(row model.Row) (model.Row, error) {
	keep, ok := p.Tables[row.Entity.Name]
	if !ok {
		return row, nil
	}
	out := model.Row{Entity: row.Entity, Fields: make([]model.FieldValue, 0, len(row.Fields))}
	for _, f := range row.Fields {
		if _, ok := keep[strings.ToLower(f.Name)]; ok {
			out.Fields = append(out.Fields, f)
		}
	}
	return out, nil
}
