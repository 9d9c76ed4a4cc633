// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package batch implements the unit of work the producer hands to the
// consumer: a page of already-transformed rows, the cursor range it
// covers, and a manifest used to detect truncated or corrupted writes.
package batch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
)

// Manifest summarizes a batch's rows for post-write verification: the row
// count and a non-cryptographic rolling checksum over each row's canonical
// byte form. This fills in the placeholder the original left
// (`checksum_xxh3: 0, // placeholder`) using the same xxHash family the
// field name anticipated.
type Manifest struct {
	RowCount int
	Checksum uint64
}

// ManifestFor computes the Manifest for rows.
func ManifestFor(rows []model.Row) Manifest {
	var h uint64
	for _, r := range rows {
		h = xxhash.Sum64String(canonicalBytes(r)) ^ (h*1099511628211 + 1)
	}
	return Manifest{RowCount: len(rows), Checksum: h}
}

// canonicalBytes renders r deterministically for checksumming: field name
// and AsString() value, in the row's existing field order. Field order is
// already stable (it comes from the source's column order and the
// transform pipeline, which never reorders fields), so no sort is needed
// here.
func canonicalBytes(r model.Row) string {
	var b []byte
	for _, f := range r.Fields {
		b = append(b, f.Name...)
		b = append(b, '=')
		b = append(b, f.Value.AsString()...)
		b = append(b, '\x1f')
	}
	return string(b)
}

// Batch is a page of transformed rows ready for the sink, plus enough
// bookkeeping for the consumer to checkpoint its progress and for a crash
// recovery to replay it idempotently.
type Batch struct {
	ID       string
	Rows     []model.Row
	Cursor   pagination.Cursor // cursor this batch started from
	Next     pagination.Cursor // cursor to resume from after this batch
	Manifest Manifest
	Ts       time.Time
}

// New builds a Batch from rows fetched starting at cursor and ending at
// next, deriving a deterministic ID from (runID, itemID, partID, cursor) so
// replaying the same page after a crash produces the same ID, which the
// WAL entries and checkpoints record (see internal/state). Neither the
// consumer nor the sink looks the ID up to skip a batch: a replayed batch
// is written again.
func New(runID, itemID string, partID int, cursor, next pagination.Cursor, rows []model.Row, now time.Time) Batch {
	return Batch{
		ID:       ID(runID, itemID, partID, cursor),
		Rows:     rows,
		Cursor:   cursor,
		Next:     next,
		Manifest: ManifestFor(rows),
		Ts:       now,
	}
}

// ID computes the deterministic batch_id = H(run_id, item_id, part_id, cursor).
func ID(runID, itemID string, partID int, cursor pagination.Cursor) string {
	h := xxhash.New()
	_, _ = h.WriteString(runID)
	_, _ = h.WriteString("\x1f")
	_, _ = h.WriteString(itemID)
	_, _ = h.WriteString("\x1f")
	_, _ = h.WriteString(strconv.Itoa(partID))
	_, _ = h.WriteString("\x1f")
	_, _ = h.WriteString(cursor.String())
	return fmt.Sprintf("%016x", h.Sum64())
}

func (b Batch) IsEmpty() bool { return len(b.Rows) == 0 }

// SizeBytes estimates b's in-memory footprint, summing each row's
// AsString() rendering across all fields. Nothing in the pipeline calls
// it; the producer sizes pages by row count (BatchSize) only.
func (b Batch) SizeBytes() int {
	total := 0
	for _, r := range b.Rows {
		for _, f := range r.Fields {
			total += len(f.Name) + len(f.Value.AsString())
		}
	}
	return total
}
