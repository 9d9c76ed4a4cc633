// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package sink writes migrated batches into the PostgreSQL destination: a
// staging-table COPY+MERGE fast path when the table has primary keys, and a
// batched parameterized INSERT fallback otherwise.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/dialect"
	"github.com/dataforge/migrator/internal/errs"
	"github.com/dataforge/migrator/internal/model"
)

// Sink writes rows to a destination table.
type Sink interface {
	// SupportsFastPath reports whether table can use the staging-table
	// COPY+MERGE path — it needs at least one primary key column.
	SupportsFastPath(table model.FieldMetadata) bool
	// WriteBatch writes rows to table, upserting on the table's primary key.
	WriteBatch(ctx context.Context, table model.FieldMetadata, rows []model.Row) error
	// WithTriggersDisabled disables table's triggers, runs fn, and
	// re-enables them on every exit path — including when fn panics or the
	// outer context has already been canceled.
	WithTriggersDisabled(ctx context.Context, table string, fn func(ctx context.Context) error) error
	// Exec runs a DDL statement (CREATE TABLE, ALTER TABLE, CREATE TYPE ...)
	// against the destination, used by internal/runtime's schema-preparation
	// settings to apply a schema.Plan before any batch is written.
	Exec(ctx context.Context, query string) error
	Close()
}

// PostgresSink is the only destination sink the engine writes to; MySQL and
// CSV are source-only (see internal/dialect.MySQL's Capabilities doc).
type PostgresSink struct {
	pool    *pgxpool.Pool
	dialect dialect.Postgres
	log     *zap.Logger
}

// NewPostgresSink opens a connection pool against dsn.
func NewPostgresSink(ctx context.Context, dsn string, log *zap.Logger) (*PostgresSink, error) {
	if dsn == "" {
		return nil, errs.New(errs.KindConnector, errs.ErrBadConnection)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.New(errs.KindConnector, fmt.Errorf("sink: open pool: %w", err))
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errs.Transient(errs.KindConnector, fmt.Errorf("sink: ping: %w", err))
	}
	return &PostgresSink{pool: pool, dialect: dialect.NewPostgres(), log: log}, nil
}

func (s *PostgresSink) Close() { s.pool.Close() }

// Exec runs query (expected to be schema DDL) against the destination pool.
func (s *PostgresSink) Exec(ctx context.Context, query string) error {
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return errs.New(errs.KindDatabase, fmt.Errorf("sink: exec: %w", err))
	}
	return nil
}

func (s *PostgresSink) SupportsFastPath(table model.FieldMetadata) bool {
	return s.dialect.Capabilities().FastPathEligible() && len(table.PrimaryKeyColumns()) > 0
}

// DescribeTable introspects entity's current columns via
// information_schema, mirroring internal/source.SQLSource.Describe. The
// returned exists flag is false (with an empty FieldMetadata) when the
// table has not been created yet, which is exactly the signal
// internal/runtime's InferSchemaSetting and CreateMissingTablesSetting need
// to decide whether they apply.
func (s *PostgresSink) DescribeTable(ctx context.Context, entity model.Entity) (meta model.FieldMetadata, exists bool, err error) {
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
		WHERE c.table_name = $1
		ORDER BY c.ordinal_position`

	rows, queryErr := s.pool.Query(ctx, query, entity.Name)
	if queryErr != nil {
		return model.FieldMetadata{}, false, errs.New(errs.KindDatabase, fmt.Errorf("sink: describe %s: %w", entity, queryErr))
	}
	defer rows.Close()

	var cols []model.Column
	for rows.Next() {
		var name, dataType, isNullable string
		var ordinal, isPK int
		if scanErr := rows.Scan(&name, &dataType, &isNullable, &ordinal, &isPK); scanErr != nil {
			return model.FieldMetadata{}, false, errs.New(errs.KindDatabase, fmt.Errorf("sink: scan column metadata: %w", scanErr))
		}
		cols = append(cols, model.Column{
			Name:       name,
			Type:       dataType,
			Nullable:   strings.EqualFold(isNullable, "YES"),
			PrimaryKey: isPK != 0,
			Ordinal:    ordinal,
		})
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return model.FieldMetadata{}, false, errs.New(errs.KindDatabase, rowsErr)
	}
	if len(cols) == 0 {
		return model.FieldMetadata{}, false, nil
	}
	return model.FieldMetadata{Entity: entity, Columns: cols}, true, nil
}

// WriteBatch chooses the fast path when table has primary keys, falling
// back to a batched parameterized INSERT otherwise.
func (s *PostgresSink) WriteBatch(ctx context.Context, table model.FieldMetadata, rows []model.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if s.SupportsFastPath(table) {
		return s.writeFastPath(ctx, table, rows)
	}
	return s.writeFallback(ctx, table, rows)
}

// writeFastPath loads rows into a transaction-scoped staging table via the
// COPY protocol, then upserts from staging into table with a single INSERT
// ... ON CONFLICT statement, all in one transaction (the staging table is
// dropped at commit), matching the original's staged-COPY-then-MERGE
// design (its PostgresSink left this as a todo!() — the concrete INSERT ...
// ON CONFLICT rendering below is this port's own completion of that shape).
func (s *PostgresSink) writeFastPath(ctx context.Context, table model.FieldMetadata, rows []model.Row) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return errs.Transient(errs.KindDatabase, fmt.Errorf("sink: acquire connection: %w", err))
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return errs.Transient(errs.KindDatabase, fmt.Errorf("sink: begin transaction: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := "__migrator_stage_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	qualified := s.dialect.QuoteQualified(table.Entity.Schema, table.Entity.Name)
	stagingIdent := s.dialect.QuoteIdent(staging)

	createStaging := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", stagingIdent, qualified)
	if _, err := tx.Exec(ctx, createStaging); err != nil {
		return errs.New(errs.KindDatabase, fmt.Errorf("sink: create staging table: %w", err))
	}

	colNames := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		colNames[i] = c.Name
	}

	copyRows := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(colNames))
		for j, name := range colNames {
			v, _ := row.Get(name)
			vals[j] = valueToDriver(v)
		}
		copyRows[i] = vals
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, colNames, pgx.CopyFromRows(copyRows))
	if err != nil {
		return errs.Transient(errs.KindDatabase, fmt.Errorf("sink: copy into staging table: %w", err))
	}
	s.log.Debug("sink: copied rows into staging table",
		zap.String("table", table.Entity.Name), zap.Int64("rows", n))

	merge := s.renderMerge(table, qualified, stagingIdent, colNames)
	if _, err := tx.Exec(ctx, merge); err != nil {
		return errs.New(errs.KindDatabase, fmt.Errorf("sink: merge from staging table: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Transient(errs.KindDatabase, fmt.Errorf("sink: commit fast path: %w", err))
	}
	return nil
}

func (s *PostgresSink) renderMerge(table model.FieldMetadata, qualified, stagingIdent string, colNames []string) string {
	pkCols := table.PrimaryKeyColumns()
	pkNames := make([]string, len(pkCols))
	for i, c := range pkCols {
		pkNames[i] = s.dialect.QuoteIdent(c.Name)
	}
	quotedCols := make([]string, len(colNames))
	for i, c := range colNames {
		quotedCols[i] = s.dialect.QuoteIdent(c)
	}

	var setClauses []string
	for _, name := range colNames {
		if isPrimaryKey(table, name) {
			continue
		}
		q := s.dialect.QuoteIdent(name)
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		qualified, strings.Join(quotedCols, ", "), strings.Join(quotedCols, ", "), stagingIdent)
	conflict := fmt.Sprintf("ON CONFLICT (%s)", strings.Join(pkNames, ", "))
	if len(setClauses) == 0 {
		return insert + " " + conflict + " DO NOTHING"
	}
	return insert + " " + conflict + " DO UPDATE SET " + strings.Join(setClauses, ", ")
}

func isPrimaryKey(table model.FieldMetadata, name string) bool {
	col, ok := table.Column(name)
	return ok && col.PrimaryKey
}

// writeFallback batches rows into multi-row parameterized INSERT ...
// ON CONFLICT statements, used for tables without a primary key (no
// conflict target to upsert on, so this degrades to plain append).
func (s *PostgresSink) writeFallback(ctx context.Context, table model.FieldMetadata, rows []model.Row) error {
	colNames := make([]string, len(table.Columns))
	quotedCols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		colNames[i] = c.Name
		quotedCols[i] = s.dialect.QuoteIdent(c.Name)
	}
	qualified := s.dialect.QuoteQualified(table.Entity.Schema, table.Entity.Name)

	var placeholders []string
	var args []any
	n := 0
	for _, row := range rows {
		group := make([]string, len(colNames))
		for j, name := range colNames {
			n++
			group[j] = s.dialect.Placeholder(n)
			v, _ := row.Get(name)
			args = append(args, valueToDriver(v))
		}
		placeholders = append(placeholders, "("+strings.Join(group, ", ")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING",
		qualified, strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return errs.Transient(errs.KindDatabase, fmt.Errorf("sink: insert into %s: %w", table.Entity.Name, err))
	}
	return nil
}

// WithTriggersDisabled is a scoped resource: it disables table's triggers,
// runs fn, and re-enables them in a deferred call that runs regardless of
// whether fn returns an error or ctx has already been canceled, using a
// fresh background context with its own timeout so the re-enable is never
// skipped by the caller's cancellation.
func (s *PostgresSink) WithTriggersDisabled(ctx context.Context, table string, fn func(ctx context.Context) error) error {
	qualified := s.dialect.QuoteQualified("", table)
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("ALTER TABLE %s DISABLE TRIGGER ALL", qualified)); err != nil {
		return errs.New(errs.KindDatabase, fmt.Errorf("sink: disable triggers on %s: %w", table, err))
	}
	defer func() {
		reenableCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.pool.Exec(reenableCtx, fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER ALL", qualified)); err != nil {
			s.log.Error("sink: failed to re-enable triggers", zap.String("table", table), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func valueToDriver(v model.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind {
	case model.ValueInt:
		return v.Int
	case model.ValueFloat:
		return v.Float
	case model.ValueBool:
		return v.Bool
	case model.ValueTime:
		return v.Time
	case model.ValueBytes:
		return v.Bytes
	default:
		return v.Str
	}
}
