// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/dialect"
	"github.com/dataforge/migrator/internal/errs"
	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
)

// SQLSource reads a single table's rows through database/sql, paginating
// with a pagination.Strategy and wrapping each page's query in a
// REPEATABLE READ transaction so concurrent writes to the source table
// during a long-running migration cannot shift rows across a page
// boundary, the same snapshot-isolation discipline the teacher's exporter
// used around its hash-range queries.
type SQLSource struct {
	db       *sql.DB
	dialect  dialect.Dialect
	strategy pagination.Strategy
	entity   model.Entity
	log      *zap.Logger
}

// NewMySQLSource opens a MySQL/MariaDB source over dsn.
func NewMySQLSource(ctx context.Context, dsn string, entity model.Entity, strategy pagination.Strategy, log *zap.Logger) (*SQLSource, error) {
	return newSQLSource(ctx, "mysql", dsn, dialect.NewMySQL(), entity, strategy, log)
}

// NewPostgresSource opens a PostgreSQL source over dsn using pgx's
// database/sql-compatible stdlib driver.
func NewPostgresSource(ctx context.Context, dsn string, entity model.Entity, strategy pagination.Strategy, log *zap.Logger) (*SQLSource, error) {
	return newSQLSource(ctx, "pgx", dsn, dialect.NewPostgres(), entity, strategy, log)
}

func newSQLSource(ctx context.Context, driver, dsn string, d dialect.Dialect, entity model.Entity, strategy pagination.Strategy, log *zap.Logger) (*SQLSource, error) {
	if dsn == "" {
		return nil, errs.New(errs.KindConnector, errs.ErrBadConnection)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errs.New(errs.KindConnector, fmt.Errorf("source: open %s: %w", driver, err))
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errs.Transient(errs.KindConnector, fmt.Errorf("source: ping %s: %w", driver, err))
	}
	return &SQLSource{db: db, dialect: d, strategy: strategy, entity: entity, log: log}, nil
}

func (s *SQLSource) Close() error { return s.db.Close() }

func (s *SQLSource) tableRef() string {
	return s.dialect.QuoteQualified(s.entity.Schema, s.entity.Name)
}

// Describe introspects the table's columns via information_schema, which
// both MySQL and PostgreSQL expose with the same column names.
func (s *SQLSource) Describe(ctx context.Context) (model.FieldMetadata, error) {
	query := `
		SELECT c.column_name, c.data_type, c.is_nullable, c.ordinal_position,
		       CASE WHEN k.column_name IS NOT NULL THEN 1 ELSE 0 END AS is_pk
		FROM information_schema.columns c
		LEFT JOIN information_schema.key_column_usage k
		  ON k.table_schema = c.table_schema
		 AND k.table_name = c.table_name
		 AND k.column_name = c.column_name
		 AND k.constraint_name IN (
		     SELECT constraint_name FROM information_schema.table_constraints
		     WHERE constraint_type = 'PRIMARY KEY'
		       AND table_schema = c.table_schema AND table_name = c.table_name)
		WHERE c.table_name = ?
		ORDER BY c.ordinal_position`
	query = s.rebindPlaceholders(query)

	args := []any{s.entity.Name}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.FieldMetadata{}, errs.New(errs.KindDatabase, fmt.Errorf("source: describe %s: %w", s.entity, err))
	}
	defer rows.Close()

	var cols []model.Column
	for rows.Next() {
		var name, dataType, isNullable string
		var ordinal int
		var isPK int
		if err := rows.Scan(&name, &dataType, &isNullable, &ordinal, &isPK); err != nil {
			return model.FieldMetadata{}, errs.New(errs.KindDatabase, fmt.Errorf("source: scan column metadata: %w", err))
		}
		cols = append(cols, model.Column{
			Name:       name,
			Type:       dataType,
			Nullable:   strings.EqualFold(isNullable, "YES"),
			PrimaryKey: isPK != 0,
			Ordinal:    ordinal,
		})
	}
	if err := rows.Err(); err != nil {
		return model.FieldMetadata{}, errs.New(errs.KindDatabase, err)
	}
	return model.FieldMetadata{Entity: s.entity, Columns: cols}, nil
}

// rebindPlaceholders rewrites a query written with "?" placeholders into
// the dialect's actual bind style (MySQL already uses "?"; PostgreSQL needs
// "$1", "$2", ...).
func (s *SQLSource) rebindPlaceholders(query string) string {
	if s.dialect.Name() != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Fetch queries at most pageSize rows strictly after cursor, inside a
// REPEATABLE READ transaction, and derives the next page's cursor from the
// last row read.
func (s *SQLSource) Fetch(ctx context.Context, cursor pagination.Cursor, pageSize uint64) (FetchResult, error) {
	meta, err := s.Describe(ctx)
	if err != nil {
		return FetchResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return FetchResult{}, errs.Transient(errs.KindDatabase, fmt.Errorf("source: begin tx: %w", err))
	}
	defer tx.Rollback()

	colNames := make([]string, len(meta.Columns))
	for i, c := range meta.Columns {
		colNames[i] = s.dialect.QuoteIdent(c.Name)
	}

	var offset uint64
	var predicate string
	var args []any
	if def, ok := s.strategy.(pagination.DefaultStrategy); ok {
		offset = def.Offset(cursor)
	} else {
		predicate, args, err = s.strategy.Predicate(s.dialect, cursor, 0)
		if err != nil {
			return FetchResult{}, errs.New(errs.KindDatabase, err)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(colNames, ", "), s.tableRef())
	if predicate != "" {
		query += " WHERE " + predicate
	}
	if orderBy := s.strategy.OrderBy(s.dialect); orderBy != "" {
		query += " ORDER BY " + orderBy
	}
	query += fmt.Sprintf(" LIMIT %d", pageSize)
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}
	query = s.rebindPlaceholders(query)

	s.log.Debug("source: fetching page",
		zap.String("entity", s.entity.String()),
		zap.String("query", query),
		zap.Uint64("page_size", pageSize))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return FetchResult{}, errs.Transient(errs.KindDatabase, fmt.Errorf("source: fetch %s: %w", s.entity, err))
	}
	result, err := scanRows(rows, s.entity, meta.Columns)
	rows.Close()
	if err != nil {
		return FetchResult{}, errs.New(errs.KindDatabase, err)
	}

	if err := tx.Commit(); err != nil {
		return FetchResult{}, errs.Transient(errs.KindDatabase, fmt.Errorf("source: commit read tx: %w", err))
	}

	if len(result) == 0 {
		return FetchResult{Done: true}, nil
	}

	var next pagination.Cursor
	if _, ok := s.strategy.(pagination.DefaultStrategy); ok {
		next = pagination.Cursor{Kind: pagination.KindDefault, Offset: offset}
	} else {
		next, err = s.strategy.NextCursor(result[len(result)-1])
		if err != nil {
			return FetchResult{}, errs.New(errs.KindDatabase, fmt.Errorf("source: derive next cursor: %w", err))
		}
	}

	done := uint64(len(result)) < pageSize
	return FetchResult{Rows: result, Next: next, Done: done}, nil
}

// scanRows materializes sql.Rows into model.Row values. database/sql hands
// back concrete Go types (int64, float64, bool, time.Time, []byte, string,
// or nil) through a generic `any` destination for most drivers, so no
// per-column scan-target struct is needed.
func scanRows(rows *sql.Rows, entity model.Entity, cols []model.Column) ([]model.Row, error) {
	var out []model.Row
	dest := make([]any, len(cols))
	raw := make([]any, len(cols))
	for i := range dest {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("source: scan row: %w", err)
		}
		fields := make([]model.FieldValue, len(cols))
		for i, c := range cols {
			fields[i] = model.FieldValue{Name: c.Name, Value: toValue(raw[i])}
		}
		out = append(out, model.Row{Entity: entity, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: row iteration: %w", err)
	}
	return out, nil
}

func toValue(raw any) model.Value {
	switch v := raw.(type) {
	case nil:
		return model.Null()
	case int64:
		return model.Int(v)
	case float64:
		return model.Float(v)
	case bool:
		return model.Bool(v)
	case time.Time:
		return model.Time(v)
	case []byte:
		return model.String(string(v))
	case string:
		return model.String(v)
	default:
		return model.String(fmt.Sprintf("%v", v))
	}
}
