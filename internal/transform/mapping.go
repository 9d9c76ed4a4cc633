// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"strings"

	"github.com/dataforge/migrator/internal/model"
)

// NameMap is a case-insensitive, bidirectional rename table: source names
// map forward to destination names, and ReverseResolve recovers the
// original source name (used by the schema planner to find a mapped
// table's source definition when generating DDL).
type NameMap struct {
	forward map[string]string
	reverse map[string]string
}

// NewNameMap builds a NameMap from old-name -> new-name pairs.
func NewNameMap(renames map[string]string) NameMap {
	forward := make(map[string]string, len(renames))
	reverse := make(map[string]string, len(renames))
	for k, v := range renames {
		kl, vl := strings.ToLower(k), strings.ToLower(v)
		forward[kl] = vl
		reverse[vl] = kl
	}
	return NameMap{forward: forward, reverse: reverse}
}

// Resolve maps a source name to its destination name, or returns name
// unchanged if it has no rename entry.
func (m NameMap) Resolve(name string) string {
	if v, ok := m.forward[strings.ToLower(name)]; ok {
		return v
	}
	return name
}

// ReverseResolve maps a destination name back to its source name.
func (m NameMap) ReverseResolve(name string) string {
	if v, ok := m.reverse[strings.ToLower(name)]; ok {
		return v
	}
	return name
}

// TableMapper renames a row's Entity from its source name to its
// destination name per name_map.
type TableMapper struct {
	NameMap NameMap
}

func (t TableMapper) Apply(row model.Row) (model.Row, error) {
	row.Entity.Name = t.NameMap.Resolve(row.Entity.Name)
	return row, nil
}

// FieldMapper renames each of a row's fields from its source column name to
// its destination column name. It runs after TableMapper in the pipeline,
// so row.Entity.Name is already the destination table name by the time
// Apply sees it — Tables is keyed the same way.
type FieldMapper struct {
	// Tables maps destination table name -> NameMap of that table's column renames.
	Tables map[string]NameMap
}

func (f FieldMapper) Apply(row model.Row) (model.Row, error) {
	names, ok := f.Tables[row.Entity.Name]
	if !ok {
		return row, nil
	}
	out := row.Clone()
	for i := range out.Fields {
		out.Fields[i].Name = names.Resolve(out.Fields[i].Name)
	}
	return out, nil
}
