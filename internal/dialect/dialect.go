// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package dialect abstracts the SQL-text differences between source and
// destination databases: identifier quoting, bind-parameter placeholder
// style, COPY text-format value encoding, and the capability flags the
// schema planner and sink use to pick a fast or fallback write path.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dataforge/migrator/internal/model"
)

// Capabilities reports which bulk-write and schema features a destination
// dialect supports. The sink (internal/sink) uses these to choose between
// the staging-table COPY+MERGE fast path and the batched INSERT fallback.
type Capabilities struct {
	CopyStreaming   bool // supports COPY FROM STDIN (or equivalent) into a staging table
	MergeStatements bool // supports an upsert/MERGE statement against the staging table
}

// FastPathEligible reports whether both capabilities needed for the sink's
// fast path are present.
func (c Capabilities) FastPathEligible() bool {
	return c.CopyStreaming && c.MergeStatements
}

// Dialect renders the dialect-specific text a query builder or sink needs:
// quoted identifiers, numbered or positional bind placeholders, and
// COPY/CSV-safe literal encoding of a model.Value.
type Dialect interface {
	// Name identifies the dialect for logging and config ("postgres", "mysql").
	Name() string
	// QuoteIdent quotes a single identifier (table, column, constraint name).
	QuoteIdent(ident string) string
	// QuoteQualified quotes a schema-qualified identifier, e.g. schema.table.
	QuoteQualified(schema, name string) string
	// Placeholder returns the bind-parameter placeholder for the n'th
	// (1-indexed) parameter in a statement.
	Placeholder(n int) string
	// EncodeCopyValue renders v in the text format this dialect's bulk-load
	// protocol expects for a single COPY/LOAD column.
	EncodeCopyValue(v model.Value) string
	// Capabilities reports this dialect's bulk-write feature set.
	Capabilities() Capabilities
}

// Postgres renders identifiers and COPY values per PostgreSQL's COPY
// text-format rules (tab-delimited, backslash-escaped, literal \N for NULL).
type Postgres struct{}

func NewPostgres() Postgres { return Postgres{} }

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (p Postgres) QuoteQualified(schema, name string) string {
	if schema == "" {
		return p.QuoteIdent(name)
	}
	return p.QuoteIdent(schema) + "." + p.QuoteIdent(name)
}

func (Postgres) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (Postgres) EncodeCopyValue(v model.Value) string {
	if v.IsNull() {
		return `\N`
	}
	switch v.Kind {
	case model.ValueTime:
		return v.Time.UTC().Format("2006-01-02 15:04:05.999999-07")
	case model.ValueBool:
		if v.Bool {
			return "t"
		}
		return "f"
	default:
		return escapeCopyText(v.AsString())
	}
}

func (Postgres) Capabilities() Capabilities {
	return Capabilities{CopyStreaming: true, MergeStatements: true}
}

// escapeCopyText backslash-escapes the characters PostgreSQL's COPY text
// format treats specially: the column/row delimiters and the escape
// character itself.
func escapeCopyText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MySQL renders identifiers and placeholders the way the source reader
// (go-sql-driver/mysql) expects them. The migration engine never writes to
// MySQL — it is only ever a source — so Capabilities reports neither bulk
// feature; EncodeCopyValue is implemented, but nothing in the engine calls
// it for MySQL.
type MySQL struct{}

func NewMySQL() MySQL { return MySQL{} }

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (m MySQL) QuoteQualified(schema, name string) string {
	if schema == "" {
		return m.QuoteIdent(name)
	}
	return m.QuoteIdent(schema) + "." + m.QuoteIdent(name)
}

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) EncodeCopyValue(v model.Value) string {
	if v.IsNull() {
		return ""
	}
	if v.Kind == model.ValueTime {
		return v.Time.UTC().Format("2006-01-02 15:04:05.999999")
	}
	return v.AsString()
}

func (MySQL) Capabilities() Capabilities {
	return Capabilities{CopyStreaming: false, MergeStatements: false}
}

// For parses a dialect name from config ("postgres" or "mysql") into a
// Dialect implementation.
func For(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql":
		return NewPostgres(), nil
	case "mysql", "mariadb":
		return NewMySQL(), nil
	default:
		return nil, fmt.Errorf("dialect: unsupported dialect %q", name)
	}
}
