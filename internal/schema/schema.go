// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package schema plans the destination DDL a migration run needs before it
// can write rows: CREATE TABLE statements in foreign-key dependency order,
// their constraints (added separately so a foreign-key cycle never blocks
// table creation), enum type declarations, and ALTER TABLE ADD COLUMN
// statements for tables that already exist but are missing columns the
// source has.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dataforge/migrator/internal/dialect"
	"github.com/dataforge/migrator/internal/model"
)

// ForeignKey describes one outgoing reference from a TableDef to another
// table, used only to order table creation and to render the constraint's
// ALTER TABLE ... ADD CONSTRAINT statement; it does not validate that the
// referenced table or columns exist.
type ForeignKey struct {
	Columns    []string
	RefTable   string
	RefColumns []string
}

// TableDef is a destination table's desired shape, as the schema planner's
// input: the columns the migration item will write and the foreign keys it
// declares toward other tables in the same plan.
type TableDef struct {
	Entity      model.Entity
	Columns     []model.Column
	ForeignKeys []ForeignKey
}

// Plan is the ordered, de-duplicated set of DDL statements a runtime item
// executes before writing rows. CreateTableQueries are ordered so a table is
// never created before a table it references; ConstraintQueries run only
// after every CreateTableQueries statement has executed.
type Plan struct {
	CreateTableQueries []string
	ConstraintQueries  []string
	EnumQueries        []string
	ColumnAdditions    []string
}

// TypeMapper renders a source column's adapter-reported type into the
// destination dialect's column type text ("integer", "varchar(255)", ...).
type TypeMapper func(model.Column) string

// Planner builds a Plan against one destination dialect.
type Planner struct {
	Dialect    dialect.Dialect
	TypeMapper TypeMapper
}

// NewPlanner builds a Planner for d, defaulting TypeMapper to
// DefaultPostgresTypeMap when d is PostgreSQL.
func NewPlanner(d dialect.Dialect) Planner {
	mapper := DefaultTypeMap
	if d.Name() == "postgres" {
		mapper = DefaultPostgresTypeMap
	}
	return Planner{Dialect: d, TypeMapper: mapper}
}

// Build topologically orders tables by foreign-key dependency (a referenced
// table's CREATE TABLE statement precedes its referrer's) and renders each
// table's CREATE TABLE, its foreign-key ADD CONSTRAINT statements, and any
// enum types its columns require.
func (p Planner) Build(tables []TableDef) (Plan, error) {
	ordered, err := topoSort(tables)
	if err != nil {
		return Plan{}, fmt.Errorf("schema: %w", err)
	}

	var plan Plan
	seenCreate := map[string]struct{}{}
	seenConstraint := map[string]struct{}{}
	seenEnum := map[string]struct{}{}

	for _, t := range ordered {
		stmt := p.renderCreateTable(t)
		if _, ok := seenCreate[stmt]; !ok {
			seenCreate[stmt] = struct{}{}
			plan.CreateTableQueries = append(plan.CreateTableQueries, stmt)
		}
		for _, col := range t.Columns {
			if enumStmt, ok := p.renderEnum(col); ok {
				if _, seen := seenEnum[enumStmt]; !seen {
					seenEnum[enumStmt] = struct{}{}
					plan.EnumQueries = append(plan.EnumQueries, enumStmt)
				}
			}
		}
		for _, fk := range t.ForeignKeys {
			stmt := p.renderConstraint(t.Entity, fk)
			if _, ok := seenConstraint[stmt]; !ok {
				seenConstraint[stmt] = struct{}{}
				plan.ConstraintQueries = append(plan.ConstraintQueries, stmt)
			}
		}
	}
	return plan, nil
}

// ColumnAdditions returns ALTER TABLE ADD COLUMN statements for every column
// in desired that is absent (case-insensitively) from existing, used by the
// CreateMissingColumns settings phase against a table the destination
// already has.
func (p Planner) ColumnAdditions(entity model.Entity, existing, desired []model.Column) []string {
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c.Name)] = struct{}{}
	}
	var stmts []string
	for _, c := range desired {
		if _, ok := have[strings.ToLower(c.Name)]; ok {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
			p.Dialect.QuoteQualified(entity.Schema, entity.Name), p.renderColumn(c)))
	}
	return stmts
}

func (p Planner) renderCreateTable(t TableDef) string {
	var cols []string
	var pk []string
	for _, c := range t.Columns {
		cols = append(cols, p.renderColumn(c))
		if c.PrimaryKey {
			pk = append(pk, p.Dialect.QuoteIdent(c.Name))
		}
	}
	if len(pk) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pk, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		p.Dialect.QuoteQualified(t.Entity.Schema, t.Entity.Name), strings.Join(cols, ", "))
}

func (p Planner) renderColumn(c model.Column) string {
	def := fmt.Sprintf("%s %s", p.Dialect.QuoteIdent(c.Name), p.TypeMapper(c))
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def
}

func (p Planner) renderConstraint(entity model.Entity, fk ForeignKey) string {
	cols := quoteAll(p.Dialect, fk.Columns)
	refCols := quoteAll(p.Dialect, fk.RefColumns)
	name := fmt.Sprintf("fk_%s_%s", entity.Name, strings.Join(fk.Columns, "_"))
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		p.Dialect.QuoteQualified(entity.Schema, entity.Name),
		p.Dialect.QuoteIdent(name),
		strings.Join(cols, ", "),
		p.Dialect.QuoteIdent(fk.RefTable),
		strings.Join(refCols, ", "))
}

// renderEnum recognizes a MySQL-style "enum('a','b','c')" reported column
// type and renders a CREATE TYPE ... AS ENUM statement for it; every other
// column type yields ok=false.
func (p Planner) renderEnum(c model.Column) (string, bool) {
	lower := strings.ToLower(c.Type)
	if !strings.HasPrefix(lower, "enum(") {
		return "", false
	}
	start := strings.IndexByte(c.Type, '(') + 1
	end := strings.LastIndexByte(c.Type, ')')
	if start <= 0 || end <= start {
		return "", false
	}
	var labels []string
	for _, raw := range strings.Split(c.Type[start:end], ",") {
		labels = append(labels, "'"+strings.Trim(strings.TrimSpace(raw), "'")+"'")
	}
	typeName := c.Name + "_enum"
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", p.Dialect.QuoteIdent(typeName), strings.Join(labels, ", ")), true
}

func quoteAll(d dialect.Dialect, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.QuoteIdent(n)
	}
	return out
}

// topoSort orders tables so a table referenced by another's foreign key
// always precedes its referrer (Kahn's algorithm). Tables involved in a
// foreign-key cycle are appended in their input order once every acyclic
// table has been placed, since ConstraintQueries are applied after every
// CreateTableQueries statement runs, a cycle between CREATE TABLE
// statements is harmless as long as it's resolved before constraints land.
func topoSort(tables []TableDef) ([]TableDef, error) {
	byName := make(map[string]TableDef, len(tables))
	indegree := make(map[string]int, len(tables))
	dependents := make(map[string][]string)
	for _, t := range tables {
		byName[t.Entity.Name] = t
		if _, ok := indegree[t.Entity.Name]; !ok {
			indegree[t.Entity.Name] = 0
		}
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == t.Entity.Name {
				continue // self-reference: never blocks creation order
			}
			if _, ok := byName[fk.RefTable]; !ok {
				continue // references a table outside this plan
			}
			indegree[t.Entity.Name]++
			dependents[fk.RefTable] = append(dependents[fk.RefTable], t.Entity.Name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	placed := make(map[string]struct{})
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		placed[name] = struct{}{}
		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	// Anything left over sits on a cycle; append in original input order.
	if len(order) < len(tables) {
		for _, t := range tables {
			if _, ok := placed[t.Entity.Name]; !ok {
				order = append(order, t.Entity.Name)
				placed[t.Entity.Name] = struct{}{}
			}
		}
	}

	out := make([]TableDef, len(order))
	for i, name := range order {
		out[i] = byName[name]
	}
	return out, nil
}

// DefaultTypeMap renders a column's adapter-reported type as-is, used for
// MySQL-sourced column definitions reflected back verbatim (MySQL is never
// a destination in this engine, so this only matters for logging/dry-run
// DDL previews, not real execution).
func DefaultTypeMap(c model.Column) string { return c.Type }

// DefaultPostgresTypeMap maps common source-reported type names to their
// PostgreSQL destination equivalents. Unrecognized types pass through
// lowercased, which lets an operator override via a more specific mapping
// without the planner rejecting types it doesn't know about.
func DefaultPostgresTypeMap(c model.Column) string {
	lower := strings.ToLower(c.Type)
	switch {
	case strings.HasPrefix(lower, "enum("):
		return c.Name + "_enum"
	case strings.Contains(lower, "tinyint(1)"):
		return "boolean"
	case strings.Contains(lower, "int"):
		return "bigint"
	case strings.Contains(lower, "decimal"), strings.Contains(lower, "numeric"):
		return "numeric"
	case strings.Contains(lower, "float"), strings.Contains(lower, "double"):
		return "double precision"
	case strings.Contains(lower, "datetime"), strings.Contains(lower, "timestamp"):
		return "timestamptz"
	case strings.Contains(lower, "date"):
		return "date"
	case strings.Contains(lower, "text"), strings.Contains(lower, "blob"):
		return "text"
	case strings.Contains(lower, "char"), strings.Contains(lower, "varchar"):
		return "text"
	case strings.Contains(lower, "bool"):
		return "boolean"
	default:
		return lower
	}
}
