// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package batch

import (
	"testing"
	"time"

	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
)

func TestIDIsDeterministic(t *testing.T) {
	cursor := pagination.Pk(pagination.QualCol{Column: "id"}, 10)
	a := ID("run-1", "item-1", 0, cursor)
	b := ID("run-1", "item-1", 0, cursor)
	if a != b {
		t.Errorf("expected deterministic batch id, got %s vs %s", a, b)
	}

	other := ID("run-1", "item-1", 1, cursor)
	if a == other {
		t.Errorf("expected different part id to produce a different batch id")
	}
}

func TestManifestForCountsRows(t *testing.T) {
	rows := []model.Row{
		{Fields: []model.FieldValue{{Name: "id", Value: model.Int(1)}}},
		{Fields: []model.FieldValue{{Name: "id", Value: model.Int(2)}}},
	}
	m := ManifestFor(rows)
	if m.RowCount != 2 {
		t.Errorf("expected row count 2, got %d", m.RowCount)
	}

	other := ManifestFor([]model.Row{rows[0]})
	if m.Checksum == other.Checksum {
		t.Errorf("expected different row sets to produce different checksums")
	}
}

func TestBatchIsEmptyAndSizeBytes(t *testing.T) {
	empty := Batch{}
	if !empty.IsEmpty() {
		t.Errorf("expected zero-value batch to be empty")
	}

	b := New("run-1", "item-1", 0, pagination.None(), pagination.None(),
		[]model.Row{{Fields: []model.FieldValue{{Name: "id", Value: model.Int(1)}}}}, time.Now())
	if b.IsEmpty() {
		t.Errorf("expected non-empty batch")
	}
	if b.SizeBytes() == 0 {
		t.Errorf("expected non-zero size")
	}
}
