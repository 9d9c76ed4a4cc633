// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package model defines the data types that flow through the migration
// pipeline: entities (tables or CSV files), their column metadata, and the
// rows read from a source and written to a destination.
package model

import (
	"strconv"
	"time"
)

// EntityKind distinguishes the two kinds of relation a migration item can
// read from or write to.
type EntityKind int

const (
	EntityTable EntityKind = iota
	EntityCSVFile
)

func (k EntityKind) String() string {
	switch k {
	case EntityTable:
		return "table"
	case EntityCSVFile:
		return "csv_file"
	default:
		return "unknown"
	}
}

// Entity identifies a single source or destination relation: a SQL table
// (Name is the table name, Schema the containing schema/database) or a CSV
// file (Name is the local path or S3 key).
type Entity struct {
	Kind   EntityKind
	Schema string
	Name   string
}

func (e Entity) String() string {
	if e.Schema == "" {
		return e.Name
	}
	return e.Schema + "." + e.Name
}

// Column describes one field of an Entity's schema as reported by a source
// or destination adapter.
type Column struct {
	Name       string
	Type       string // adapter-reported type name, e.g. "integer", "varchar(255)", "enum('a','b')"
	Nullable   bool
	PrimaryKey bool
	Ordinal    int
}

// FieldMetadata is the ordered column set of an Entity, as returned by a
// source's schema introspection.
type FieldMetadata struct {
	Entity  Entity
	Columns []Column
}

// Column returns the column named name, if present.
func (m FieldMetadata) Column(name string) (Column, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKeyColumns returns the columns flagged as primary key, in ordinal order.
func (m FieldMetadata) PrimaryKeyColumns() []Column {
	var pk []Column
	for _, c := range m.Columns {
		if c.PrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// ValueKind tags the dynamic type carried by a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueInt
	ValueFloat
	ValueBool
	ValueTime
	ValueBytes
)

// Value is a single typed field value. Exactly one of the typed fields is
// meaningful, selected by Kind; this mirrors the tagged-union Value the
// source/transform/sink layers pass around instead of bare interface{}, so
// comparisons and ordering (needed by the pagination strategies) don't need
// type switches at every call site.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Time  time.Time
	Bytes []byte
}

func Null() Value            { return Value{Kind: ValueNull} }
func String(s string) Value  { return Value{Kind: ValueString, Str: s} }
func Int(i int64) Value      { return Value{Kind: ValueInt, Int: i} }
func Float(f float64) Value  { return Value{Kind: ValueFloat, Float: f} }
func Bool(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }
func Time(t time.Time) Value { return Value{Kind: ValueTime, Time: t} }
func Bytes(b []byte) Value   { return Value{Kind: ValueBytes, Bytes: b} }

func (v Value) IsNull() bool { return v.Kind == ValueNull }

// AsString renders v as text for logging, CSV output, and contexts that don't
// need dialect-specific SQL literal escaping (that lives in internal/dialect).
func (v Value) AsString() string {
	switch v.Kind {
	case ValueNull:
		return ""
	case ValueString:
		return v.Str
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueTime:
		return v.Time.Format(time.RFC3339Nano)
	case ValueBytes:
		return string(v.Bytes)
	default:
		return ""
	}
}

// Equal reports whether v and other carry the same kind and value.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueNull:
		return true
	case ValueString:
		return v.Str == other.Str
	case ValueInt:
		return v.Int == other.Int
	case ValueFloat:
		return v.Float == other.Float
	case ValueBool:
		return v.Bool == other.Bool
	case ValueTime:
		return v.Time.Equal(other.Time)
	case ValueBytes:
		return string(v.Bytes) == string(other.Bytes)
	default:
		return false
	}
}

// Less reports whether v sorts before other under the ordering pagination
// strategies rely on: null sorts below any non-null value (see
// internal/pagination), and values of differing Kind otherwise compare by
// Kind as a last resort so ordering stays total.
func (v Value) Less(other Value) bool {
	if v.Kind == ValueNull || other.Kind == ValueNull {
		if v.Kind == other.Kind {
			return false
		}
		return v.Kind == ValueNull
	}
	if v.Kind != other.Kind {
		return v.Kind < other.Kind
	}
	switch v.Kind {
	case ValueString:
		return v.Str < other.Str
	case ValueInt:
		return v.Int < other.Int
	case ValueFloat:
		return v.Float < other.Float
	case ValueBool:
		return !v.Bool && other.Bool
	case ValueTime:
		return v.Time.Before(other.Time)
	case ValueBytes:
		return string(v.Bytes) < string(other.Bytes)
	default:
		return false
	}
}

// FieldValue is one named field within a Row.
type FieldValue struct {
	Name  string
	Value Value
}

// Row is a single record moving through the pipeline: the Entity it was
// read from and an ordered set of named field values. Field order is
// preserved from the source read so CSV output and COPY encoding stay
// column-stable.
type Row struct {
	Entity Entity
	Fields []FieldValue
}

// Get returns the value of the named field, if present.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Clone returns a Row with its own backing Fields slice, safe to mutate
// independently of r.
func (r Row) Clone() Row {
	fields := make([]FieldValue, len(r.Fields))
	copy(fields, r.Fields)
	return Row{Entity: r.Entity, Fields: fields}
}

// With returns a copy of r with name set to v, appending a new field if name
// is not already present.
func (r Row) With(name string, v Value) Row {
	out := r.Clone()
	for i := range out.Fields {
		if out.Fields[i].Name == name {
			out.Fields[i].Value = v
			return out
		}
	}
	out.Fields = append(out.Fields, FieldValue{Name: name, Value: v})
	return out
}

// Without returns a copy of r with name removed, if present.
func (r Row) Without(name string) Row {
	out := Row{Entity: r.Entity, Fields: make([]FieldValue, 0, len(r.Fields))}
	for _, f := range r.Fields {
		if f.Name != name {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

// Names returns the field names of r, in order.
func (r Row) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}
