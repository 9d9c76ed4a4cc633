// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package pagination

import (
	"fmt"

	"github.com/dataforge/migrator/internal/dialect"
	"github.com/dataforge/migrator/internal/model"
)

// Strategy renders the WHERE/ORDER BY fragments for one pagination scheme
// and derives the next page's cursor from the last row of the previous
// page. A migration item picks exactly one Strategy for the lifetime of a
// run; switching strategies mid-run would invalidate any durable cursor.
type Strategy interface {
	// Name identifies the strategy for logging and config ("pk", "numeric", ...).
	Name() string
	// Kind returns the Cursor variant this strategy produces and consumes.
	Kind() Kind
	// ResumableSafe reports whether a crash can safely resume from a cursor
	// this strategy produced. Offset-based pagination is not: concurrent
	// inserts/deletes shift what "row N" refers to between runs.
	ResumableSafe() bool
	// OrderBy returns the ORDER BY clause matching this strategy's total
	// order, so successive fetches observe a stable sequence.
	OrderBy(d dialect.Dialect) string
	// Predicate returns the WHERE-clause fragment (and its bind arguments,
	// numbered from argOffset+1) restricting a fetch to rows strictly after
	// cursor. An empty cursor (Cursor{}, Kind: KindNone) yields an empty
	// predicate and nil args.
	Predicate(d dialect.Dialect, cursor Cursor, argOffset int) (string, []any, error)
	// NextCursor derives the cursor for the row immediately after lastRow
	// in this strategy's order. Returns ErrUndefinedResume if lastRow's
	// boundary column is null.
	NextCursor(lastRow model.Row) (Cursor, error)
	// Resume validates cursor against this strategy before it is used to
	// resume a fetch, returning ErrUndefinedResume if cursor.Kind does not
	// match, or if the strategy itself is not ResumableSafe.
	Resume(cursor Cursor) error
}

func resumeKindCheck(s Strategy, cursor Cursor) error {
	if cursor.IsNone() {
		return nil
	}
	if cursor.Kind != s.Kind() {
		return fmt.Errorf("%w: strategy %s cannot resume a %s cursor", ErrUndefinedResume, s.Name(), cursor.Kind)
	}
	if !s.ResumableSafe() {
		return fmt.Errorf("%w: strategy %s is not resumable-safe", ErrUndefinedResume, s.Name())
	}
	return nil
}

// DefaultStrategy paginates by LIMIT/OFFSET. It has no total order of its
// own — row order depends on whatever the underlying storage engine
// returns — so it is the least safe strategy to resume from a crash: rows
// may be skipped or repeated if the table is written to between runs.
type DefaultStrategy struct {
	PageSize uint64
}

func (DefaultStrategy) Name() string        { return "default" }
func (DefaultStrategy) Kind() Kind          { return KindDefault }
func (DefaultStrategy) ResumableSafe() bool { return false }

func (DefaultStrategy) OrderBy(dialect.Dialect) string { return "" }

func (s DefaultStrategy) Predicate(dialect.Dialect, Cursor, int) (string, []any, error) {
	return "", nil, nil
}

// Offset returns the LIMIT/OFFSET clause's OFFSET value for cursor, which
// the source reader appends itself since OFFSET is not a WHERE predicate.
func (s DefaultStrategy) Offset(cursor Cursor) uint64 {
	if cursor.IsNone() {
		return 0
	}
	return cursor.Offset + s.PageSize
}

func (s DefaultStrategy) NextCursor(model.Row) (Cursor, error) {
	return Cursor{}, fmt.Errorf("pagination: DefaultStrategy.NextCursor requires the page offset, use Offset instead")
}

func (s DefaultStrategy) Resume(cursor Cursor) error {
	return resumeKindCheck(s, cursor)
}

// PkStrategy paginates by a strictly increasing primary key column.
type PkStrategy struct {
	Col QualCol
}

func (PkStrategy) Name() string        { return "pk" }
func (PkStrategy) Kind() Kind          { return KindPk }
func (PkStrategy) ResumableSafe() bool { return true }

func (s PkStrategy) OrderBy(d dialect.Dialect) string {
	return d.QuoteQualified(s.Col.Table, s.Col.Column) + " ASC"
}

func (s PkStrategy) Predicate(d dialect.Dialect, cursor Cursor, argOffset int) (string, []any, error) {
	if cursor.IsNone() {
		return "", nil, nil
	}
	if cursor.Kind != KindPk {
		return "", nil, fmt.Errorf("pagination: PkStrategy given a %s cursor", cursor.Kind)
	}
	pred := fmt.Sprintf("%s > %s", d.QuoteQualified(s.Col.Table, s.Col.Column), d.Placeholder(argOffset+1))
	return pred, []any{cursor.ID}, nil
}

func (s PkStrategy) NextCursor(lastRow model.Row) (Cursor, error) {
	v, ok := lastRow.Get(s.Col.Column)
	if !ok {
		return Cursor{}, fmt.Errorf("pagination: row missing pk column %s", s.Col)
	}
	if v.IsNull() {
		return Cursor{}, ErrUndefinedResume
	}
	return Pk(s.Col, uint64(v.Int)), nil
}

func (s PkStrategy) Resume(cursor Cursor) error {
	return resumeKindCheck(s, cursor)
}

// NumericStrategy paginates by a single monotonic numeric column with no
// uniqueness guarantee. Ties (multiple rows sharing the boundary value) can
// cause a row to be skipped or repeated across a page boundary; prefer
// CompositeNumPkStrategy when the column is not already unique.
type NumericStrategy struct {
	Col QualCol
}

func (NumericStrategy) Name() string        { return "numeric" }
func (NumericStrategy) Kind() Kind          { return KindNumeric }
func (NumericStrategy) ResumableSafe() bool { return false }

func (s NumericStrategy) OrderBy(d dialect.Dialect) string {
	return d.QuoteQualified(s.Col.Table, s.Col.Column) + " ASC"
}

func (s NumericStrategy) Predicate(d dialect.Dialect, cursor Cursor, argOffset int) (string, []any, error) {
	if cursor.IsNone() {
		return "", nil, nil
	}
	if cursor.Kind != KindNumeric {
		return "", nil, fmt.Errorf("pagination: NumericStrategy given a %s cursor", cursor.Kind)
	}
	pred := fmt.Sprintf("%s > %s", d.QuoteQualified(s.Col.Table, s.Col.Column), d.Placeholder(argOffset+1))
	return pred, []any{cursor.Num}, nil
}

func (s NumericStrategy) NextCursor(lastRow model.Row) (Cursor, error) {
	v, ok := lastRow.Get(s.Col.Column)
	if !ok {
		return Cursor{}, fmt.Errorf("pagination: row missing numeric column %s", s.Col)
	}
	if v.IsNull() {
		return Cursor{}, ErrUndefinedResume
	}
	return Numeric(s.Col, v.Int), nil
}

func (s NumericStrategy) Resume(cursor Cursor) error {
	return resumeKindCheck(s, cursor)
}

// TimestampStrategy paginates by a single monotonic timestamp column,
// compared at microsecond resolution. Carries the same tie-break caveat as
// NumericStrategy.
type TimestampStrategy struct {
	Col QualCol
}

func (TimestampStrategy) Name() string        { return "timestamp" }
func (TimestampStrategy) Kind() Kind          { return KindTimestamp }
func (TimestampStrategy) ResumableSafe() bool { return false }

func (s TimestampStrategy) OrderBy(d dialect.Dialect) string {
	return d.QuoteQualified(s.Col.Table, s.Col.Column) + " ASC"
}

func (s TimestampStrategy) Predicate(d dialect.Dialect, cursor Cursor, argOffset int) (string, []any, error) {
	if cursor.IsNone() {
		return "", nil, nil
	}
	if cursor.Kind != KindTimestamp {
		return "", nil, fmt.Errorf("pagination: TimestampStrategy given a %s cursor", cursor.Kind)
	}
	pred := fmt.Sprintf("%s > %s", d.QuoteQualified(s.Col.Table, s.Col.Column), d.Placeholder(argOffset+1))
	return pred, []any{microsToTime(cursor.Ts)}, nil
}

func (s TimestampStrategy) NextCursor(lastRow model.Row) (Cursor, error) {
	v, ok := lastRow.Get(s.Col.Column)
	if !ok {
		return Cursor{}, fmt.Errorf("pagination: row missing timestamp column %s", s.Col)
	}
	if v.IsNull() {
		return Cursor{}, ErrUndefinedResume
	}
	return Timestamp(s.Col, timeToMicros(v)), nil
}

func (s TimestampStrategy) Resume(cursor Cursor) error {
	return resumeKindCheck(s, cursor)
}

// CompositeNumPkStrategy paginates by a numeric column with a primary-key
// tie-break, giving a total order even when the numeric column has
// duplicate values.
type CompositeNumPkStrategy struct {
	NumCol QualCol
	PkCol  QualCol
}

func (CompositeNumPkStrategy) Name() string        { return "composite_num_pk" }
func (CompositeNumPkStrategy) Kind() Kind          { return KindCompositeNumPk }
func (CompositeNumPkStrategy) ResumableSafe() bool { return true }

func (s CompositeNumPkStrategy) OrderBy(d dialect.Dialect) string {
	return d.QuoteQualified(s.NumCol.Table, s.NumCol.Column) + " ASC, " +
		d.QuoteQualified(s.PkCol.Table, s.PkCol.Column) + " ASC"
}

func (s CompositeNumPkStrategy) Predicate(d dialect.Dialect, cursor Cursor, argOffset int) (string, []any, error) {
	if cursor.IsNone() {
		return "", nil, nil
	}
	if cursor.Kind != KindCompositeNumPk {
		return "", nil, fmt.Errorf("pagination: CompositeNumPkStrategy given a %s cursor", cursor.Kind)
	}
	num := d.QuoteQualified(s.NumCol.Table, s.NumCol.Column)
	pk := d.QuoteQualified(s.PkCol.Table, s.PkCol.Column)
	pred := fmt.Sprintf("(%s > %s OR (%s = %s AND %s > %s))",
		num, d.Placeholder(argOffset+1), num, d.Placeholder(argOffset+1), pk, d.Placeholder(argOffset+2))
	return pred, []any{cursor.Num, cursor.TieID}, nil
}

func (s CompositeNumPkStrategy) NextCursor(lastRow model.Row) (Cursor, error) {
	numVal, ok := lastRow.Get(s.NumCol.Column)
	if !ok {
		return Cursor{}, fmt.Errorf("pagination: row missing numeric column %s", s.NumCol)
	}
	pkVal, ok := lastRow.Get(s.PkCol.Column)
	if !ok {
		return Cursor{}, fmt.Errorf("pagination: row missing pk column %s", s.PkCol)
	}
	if numVal.IsNull() || pkVal.IsNull() {
		return Cursor{}, ErrUndefinedResume
	}
	return CompositeNumPk(s.NumCol, s.PkCol, numVal.Int, uint64(pkVal.Int)), nil
}

func (s CompositeNumPkStrategy) Resume(cursor Cursor) error {
	return resumeKindCheck(s, cursor)
}

// CompositeTsPkStrategy paginates by a timestamp column with a primary-key
// tie-break, giving a total order even when the timestamp column has
// duplicate values (e.g. batch-inserted rows sharing a created_at).
type CompositeTsPkStrategy struct {
	TsCol QualCol
	PkCol QualCol
}

func (CompositeTsPkStrategy) Name() string        { return "composite_ts_pk" }
func (CompositeTsPkStrategy) Kind() Kind          { return KindCompositeTsPk }
func (CompositeTsPkStrategy) ResumableSafe() bool { return true }

func (s CompositeTsPkStrategy) OrderBy(d dialect.Dialect) string {
	return d.QuoteQualified(s.TsCol.Table, s.TsCol.Column) + " ASC, " +
		d.QuoteQualified(s.PkCol.Table, s.PkCol.Column) + " ASC"
}

func (s CompositeTsPkStrategy) Predicate(d dialect.Dialect, cursor Cursor, argOffset int) (string, []any, error) {
	if cursor.IsNone() {
		return "", nil, nil
	}
	if cursor.Kind != KindCompositeTsPk {
		return "", nil, fmt.Errorf("pagination: CompositeTsPkStrategy given a %s cursor", cursor.Kind)
	}
	ts := d.QuoteQualified(s.TsCol.Table, s.TsCol.Column)
	pk := d.QuoteQualified(s.PkCol.Table, s.PkCol.Column)
	pred := fmt.Sprintf("(%s > %s OR (%s = %s AND %s > %s))",
		ts, d.Placeholder(argOffset+1), ts, d.Placeholder(argOffset+1), pk, d.Placeholder(argOffset+2))
	return pred, []any{microsToTime(cursor.Ts), cursor.TieID}, nil
}

func (s CompositeTsPkStrategy) NextCursor(lastRow model.Row) (Cursor, error) {
	tsVal, ok := lastRow.Get(s.TsCol.Column)
	if !ok {
		return Cursor{}, fmt.Errorf("pagination: row missing timestamp column %s", s.TsCol)
	}
	pkVal, ok := lastRow.Get(s.PkCol.Column)
	if !ok {
		return Cursor{}, fmt.Errorf("pagination: row missing pk column %s", s.PkCol)
	}
	if tsVal.IsNull() || pkVal.IsNull() {
		return Cursor{}, ErrUndefinedResume
	}
	return CompositeTsPk(s.TsCol, s.PkCol, timeToMicros(tsVal), uint64(pkVal.Int)), nil
}

func (s CompositeTsPkStrategy) Resume(cursor Cursor) error {
	return resumeKindCheck(s, cursor)
}
