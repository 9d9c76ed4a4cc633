// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package source reads rows from a migration item's origin — a SQL table
// (MySQL or PostgreSQL) or a CSV file (local disk or S3) — one page at a
// time, driven by an internal/pagination.Strategy.
package source

import (
	"context"

	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
)

// FetchResult is one page read from a Source.
type FetchResult struct {
	Rows []model.Row
	Next pagination.Cursor // the cursor to resume from after this page; zero value if Done
	Done bool              // true once the source has no more rows to return
}

// Source reads paginated rows from a single entity. A producer calls Fetch
// repeatedly, feeding each result's Next cursor back in, until Done.
type Source interface {
	// Describe returns the entity's column metadata, used by the schema
	// planner and transform pipeline to resolve names and types.
	Describe(ctx context.Context) (model.FieldMetadata, error)
	// Fetch reads the next page of at most pageSize rows after cursor.
	Fetch(ctx context.Context, cursor pagination.Cursor, pageSize uint64) (FetchResult, error)
	// Close releases any connection or file handle the source holds.
	Close() error
}
