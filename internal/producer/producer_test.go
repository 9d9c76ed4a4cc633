// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package producer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/batch"
	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
	"github.com/dataforge/migrator/internal/source"
	"github.com/dataforge/migrator/internal/state"
	"github.com/dataforge/migrator/internal/transform"
)

type fakeSource struct {
	pages []source.FetchResult
	calls int
}

func (f *fakeSource) Describe(context.Context) (model.FieldMetadata, error) { return model.FieldMetadata{}, nil }

func (f *fakeSource) Fetch(context.Context, pagination.Cursor, uint64) (source.FetchResult, error) {
	if f.calls >= len(f.pages) {
		return source.FetchResult{Done: true}, nil
	}
	p := f.pages[f.calls]
	f.calls++
	return p, nil
}

func (f *fakeSource) Close() error { return nil }

func openTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func row(id int64) model.Row {
	return model.Row{
		Entity: model.Entity{Name: "customers"},
		Fields: []model.FieldValue{{Name: "id", Value: model.Int(id)}},
	}
}

func TestProducerRunStreamsBatchesAndCompletes(t *testing.T) {
	pk := pagination.QualCol{Column: "id"}
	strategy := pagination.PkStrategy{Col: pk}
	src := &fakeSource{pages: []source.FetchResult{
		{Rows: []model.Row{row(1), row(2)}, Next: pagination.Pk(pk, 2), Done: false},
		{Rows: []model.Row{row(3)}, Next: pagination.Pk(pk, 3), Done: true},
	}}
	p := &Producer{
		Source:   src,
		Strategy: strategy,
		Pipeline: transform.NewPipeline(),
		Store:    openTestStore(t),
		RunID:    "run1",
		ItemID:   "item1",
		PartID:   0,
		PageSize: 2,
		Log:      zap.NewNop(),
	}

	out, errCh := p.Run(context.Background())
	var batches []batch.Batch
	for b := range out {
		batches = append(batches, b)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("Run() produced %d batches, want 2", len(batches))
	}
	if len(batches[0].Rows) != 2 || len(batches[1].Rows) != 1 {
		t.Errorf("batch sizes = %d, %d", len(batches[0].Rows), len(batches[1].Rows))
	}

	cp, found, err := p.Store.GetCheckpoint("run1", "item1", 0)
	if err != nil || !found {
		t.Fatalf("GetCheckpoint() found=%v err=%v", found, err)
	}
	if cp.RowsDone != 3 {
		t.Errorf("checkpoint RowsDone = %d, want 3", cp.RowsDone)
	}
}

func TestProducerRunResumesFromCheckpoint(t *testing.T) {
	pk := pagination.QualCol{Column: "id"}
	strategy := pagination.PkStrategy{Col: pk}
	store := openTestStore(t)

	if err := store.PutCheckpoint(state.Checkpoint{
		RunID: "run1", ItemID: "item1", PartID: 0,
		Stage: state.StageCommitted, SrcOffset: pagination.Pk(pk, 5), RowsDone: 5,
	}); err != nil {
		t.Fatalf("PutCheckpoint() error: %v", err)
	}

	src := &fakeSource{pages: []source.FetchResult{
		{Rows: []model.Row{row(6)}, Next: pagination.Pk(pk, 6), Done: true},
	}}
	p := &Producer{
		Source: src, Strategy: strategy, Pipeline: transform.NewPipeline(),
		Store: store, RunID: "run1", ItemID: "item1", PartID: 0, PageSize: 10, Log: zap.NewNop(),
	}
	out, errCh := p.Run(context.Background())
	var batches []batch.Batch
	for b := range out {
		batches = append(batches, b)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("Run() produced %d batches, want 1", len(batches))
	}
	if batches[0].Cursor.ID != 5 {
		t.Errorf("resumed fetch cursor = %+v, want id=5", batches[0].Cursor)
	}
}

func TestProducerRunPropagatesTransformError(t *testing.T) {
	pk := pagination.QualCol{Column: "id"}
	src := &fakeSource{pages: []source.FetchResult{
		{Rows: []model.Row{row(1)}, Next: pagination.Pk(pk, 1), Done: true},
	}}
	failing := transform.NewPipeline().Add(failingStage{})
	p := &Producer{
		Source: src, Strategy: pagination.PkStrategy{Col: pk}, Pipeline: failing,
		Store: openTestStore(t), RunID: "run1", ItemID: "item1", PageSize: 10, Log: zap.NewNop(),
	}
	out, errCh := p.Run(context.Background())
	for range out {
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected Run() to surface the transform error")
	}
}

type failingStage struct{}

func (failingStage) Apply(model.Row) (model.Row, error) {
	return model.Row{}, errBoom
}

var errBoom = errors.New("boom")
