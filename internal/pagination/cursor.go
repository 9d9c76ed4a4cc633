// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package pagination implements the cursor types and pagination strategies
// the source reader (internal/source) uses to fetch a relation page by page
// under a total order, and to resume that fetch from a durable checkpoint
// after a crash.
package pagination

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUndefinedResume is returned by Strategy.Resume when asked to validate
// a cursor whose kind does not match the strategy or whose strategy is not
// resumable-safe, and by Strategy.NextCursor when the row's boundary column
// is null. Resuming pagination from a null boundary is
// undefined: null sorts below every non-null value (see model.Value.Less),
// so "strictly after a null cursor" has no well-defined meaning.
var ErrUndefinedResume = errors.New("pagination: cursor cannot be resumed")

// Kind tags which of the Cursor sum type's variants is populated.
type Kind int

const (
	KindNone Kind = iota
	KindDefault
	KindPk
	KindNumeric
	KindTimestamp
	KindCompositeNumPk
	KindCompositeTsPk
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDefault:
		return "default"
	case KindPk:
		return "pk"
	case KindNumeric:
		return "numeric"
	case KindTimestamp:
		return "timestamp"
	case KindCompositeNumPk:
		return "composite_num_pk"
	case KindCompositeTsPk:
		return "composite_ts_pk"
	default:
		return "unknown"
	}
}

// QualCol is a column qualified by the table or alias it belongs to, as it
// would appear in a FROM/JOIN clause.
type QualCol struct {
	Table  string
	Column string
}

func (q QualCol) String() string {
	if q.Table == "" {
		return q.Column
	}
	return q.Table + "." + q.Column
}

// ParseQualCol parses "table.column" or a bare "column" into a QualCol.
func ParseQualCol(s string) QualCol {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return QualCol{Table: s[:i], Column: s[i+1:]}
	}
	return QualCol{Column: s}
}

// Cursor is an exclusive lower bound under a Strategy's total order: rows
// at or before the cursor have already been delivered to the consumer, and
// the next fetch must return only rows strictly after it. Cursor{} (the
// zero value, Kind: KindNone) means "from the beginning".
//
// Only the fields relevant to Kind are meaningful; this mirrors the
// original's tagged-union Cursor enum (Default/Pk/Numeric/Timestamp/
// CompositeNumPk/CompositeTsPk) flattened into a single struct, which keeps
// it trivially encodable by the state store (internal/state) without a
// custom (de)serializer per variant.
type Cursor struct {
	Kind Kind

	// KindDefault
	Offset uint64

	// KindPk
	PkCol QualCol
	ID    uint64

	// KindNumeric / KindCompositeNumPk
	NumCol QualCol
	Num    int64

	// KindTimestamp / KindCompositeTsPk
	TsCol QualCol
	Ts    int64 // microseconds since epoch

	// KindCompositeNumPk / KindCompositeTsPk tie-break column and value
	TieCol QualCol
	TieID  uint64
}

func None() Cursor { return Cursor{Kind: KindNone} }

func DefaultOffset(offset uint64) Cursor {
	return Cursor{Kind: KindDefault, Offset: offset}
}

func Pk(col QualCol, id uint64) Cursor {
	return Cursor{Kind: KindPk, PkCol: col, ID: id}
}

func Numeric(col QualCol, val int64) Cursor {
	return Cursor{Kind: KindNumeric, NumCol: col, Num: val}
}

func Timestamp(col QualCol, ts int64) Cursor {
	return Cursor{Kind: KindTimestamp, TsCol: col, Ts: ts}
}

func CompositeNumPk(numCol, pkCol QualCol, val int64, id uint64) Cursor {
	return Cursor{Kind: KindCompositeNumPk, NumCol: numCol, Num: val, TieCol: pkCol, TieID: id}
}

func CompositeTsPk(tsCol, pkCol QualCol, ts int64, id uint64) Cursor {
	return Cursor{Kind: KindCompositeTsPk, TsCol: tsCol, Ts: ts, TieCol: pkCol, TieID: id}
}

func (c Cursor) IsNone() bool { return c.Kind == KindNone }

// String renders c for WAL/log inspection. The durable encoding used by
// internal/state is a plain gob-encoded Cursor, not this string.
func (c Cursor) String() string {
	switch c.Kind {
	case KindNone:
		return "none"
	case KindDefault:
		return "default(offset=" + strconv.FormatUint(c.Offset, 10) + ")"
	case KindPk:
		return "pk(" + c.PkCol.String() + "=" + strconv.FormatUint(c.ID, 10) + ")"
	case KindNumeric:
		return "numeric(" + c.NumCol.String() + "=" + strconv.FormatInt(c.Num, 10) + ")"
	case KindTimestamp:
		return "timestamp(" + c.TsCol.String() + "=" + strconv.FormatInt(c.Ts, 10) + ")"
	case KindCompositeNumPk:
		return "composite_num_pk(" + c.NumCol.String() + "=" + strconv.FormatInt(c.Num, 10) +
			", " + c.TieCol.String() + "=" + strconv.FormatUint(c.TieID, 10) + ")"
	case KindCompositeTsPk:
		return "composite_ts_pk(" + c.TsCol.String() + "=" + strconv.FormatInt(c.Ts, 10) +
			", " + c.TieCol.String() + "=" + strconv.FormatUint(c.TieID, 10) + ")"
	default:
		return "invalid"
	}
}
