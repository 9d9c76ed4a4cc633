// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package runtime

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/dialect"
	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
	"github.com/dataforge/migrator/internal/schema"
	"github.com/dataforge/migrator/internal/source"
	"github.com/dataforge/migrator/internal/state"
	"github.com/dataforge/migrator/internal/transform"
)

func TestCollectSettingsOrdersByPhase(t *testing.T) {
	settings := CollectSettings(ItemSettingsConfig{
		BatchSize:            500,
		IgnoreConstraints:    true,
		CreateMissingTables:  true,
		CreateMissingColumns: true,
		InferSchema:          true,
		CascadeSchema:        true,
	})

	var phases []Phase
	for _, s := range settings {
		phases = append(phases, s.Phase())
	}
	for i := 1; i < len(phases); i++ {
		if phases[i] < phases[i-1] {
			t.Fatalf("settings not sorted by phase: %v", phases)
		}
	}
	if phases[0] != PhaseBatchSize {
		t.Errorf("first phase = %v, want PhaseBatchSize", phases[0])
	}
	if phases[len(phases)-1] != PhaseCascadeSchema {
		t.Errorf("last phase = %v, want PhaseCascadeSchema", phases[len(phases)-1])
	}
}

func TestCollectSettingsOmitsDisabledSettings(t *testing.T) {
	settings := CollectSettings(ItemSettingsConfig{})
	for _, s := range settings {
		if s.Phase() == PhaseCreateMissingTables || s.Phase() == PhaseCascadeSchema {
			t.Errorf("expected disabled setting %v to be omitted", s.Phase())
		}
	}
}

type fakeExecSink struct {
	execs []string
}

func (f *fakeExecSink) SupportsFastPath(model.FieldMetadata) bool { return true }
func (f *fakeExecSink) WriteBatch(context.Context, model.FieldMetadata, []model.Row) error {
	return nil
}
func (f *fakeExecSink) WithTriggersDisabled(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}
func (f *fakeExecSink) Exec(_ context.Context, query string) error {
	f.execs = append(f.execs, query)
	return nil
}
func (f *fakeExecSink) Close() {}

func TestCreateMissingTablesSettingExecutesPlan(t *testing.T) {
	execSink := &fakeExecSink{}
	ic := &ItemContext{
		Sink:          execSink,
		SchemaPlanner: schema.NewPlanner(dialect.NewPostgres()),
		DestEntity:    model.Entity{Name: "customers"},
		SourceMeta: model.FieldMetadata{
			Entity:  model.Entity{Name: "customers"},
			Columns: []model.Column{{Name: "id", PrimaryKey: true, Type: "int"}, {Name: "email", Type: "varchar(255)"}},
		},
	}
	s := CreateMissingTablesSetting{}
	if !s.CanApply(ic) {
		t.Fatalf("CanApply() = false, want true for a missing destination table")
	}
	if err := s.Apply(context.Background(), ic); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(execSink.execs) == 0 {
		t.Fatalf("expected Apply() to execute at least one DDL statement")
	}
	if !ic.DestTableExists {
		t.Errorf("expected Apply() to mark the destination table as existing")
	}
	if s.CanApply(ic) {
		t.Errorf("CanApply() should return false once the table exists")
	}
}

func TestCreateMissingColumnsSettingAddsOnlyMissingColumns(t *testing.T) {
	execSink := &fakeExecSink{}
	ic := &ItemContext{
		Sink:            execSink,
		SchemaPlanner:   schema.NewPlanner(dialect.NewPostgres()),
		DestEntity:      model.Entity{Name: "customers"},
		DestTableExists: true,
		DestMeta: model.FieldMetadata{
			Columns: []model.Column{{Name: "id", PrimaryKey: true}},
		},
		SourceMeta: model.FieldMetadata{
			Columns: []model.Column{{Name: "id", PrimaryKey: true}, {Name: "email", Type: "text"}},
		},
	}
	s := CreateMissingColumnsSetting{}
	if err := s.Apply(context.Background(), ic); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(execSink.execs) != 1 {
		t.Fatalf("Apply() executed %d statements, want 1", len(execSink.execs))
	}
}

type fakeRuntimeSource struct {
	rows []model.Row
}

func (f *fakeRuntimeSource) Describe(context.Context) (model.FieldMetadata, error) {
	return model.FieldMetadata{}, nil
}

func (f *fakeRuntimeSource) Fetch(context.Context, pagination.Cursor, uint64) (source.FetchResult, error) {
	if len(f.rows) == 0 {
		return source.FetchResult{Done: true}, nil
	}
	rows := f.rows
	f.rows = nil
	return source.FetchResult{Rows: rows, Done: true}, nil
}

func (f *fakeRuntimeSource) Close() error { return nil }

func TestItemRuntimeRunAppliesSettingsAndWritesBatches(t *testing.T) {
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state.Open() error: %v", err)
	}
	defer store.Close()

	pk := pagination.QualCol{Column: "id"}
	src := &fakeRuntimeSource{rows: []model.Row{
		{Entity: model.Entity{Name: "customers"}, Fields: []model.FieldValue{{Name: "id", Value: model.Int(1)}}},
	}}
	execSink := &fakeExecSink{}

	ic := &ItemContext{Source: src, Sink: execSink, Log: zap.NewNop()}
	r := &ItemRuntime{
		Context:  ic,
		Settings: CollectSettings(ItemSettingsConfig{BatchSize: 10}),
		Strategy: pagination.PkStrategy{Col: pk},
		Pipeline: transform.NewPipeline(),
		Store:    store,
		RunID:    "run1",
		ItemID:   "item1",
		Log:      zap.NewNop(),
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ic.BatchSize != 10 {
		t.Errorf("expected BatchSizeSetting to have applied, got %d", ic.BatchSize)
	}
}
