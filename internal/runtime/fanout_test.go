// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package runtime

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/dialect"
	"github.com/dataforge/migrator/internal/pagination"
	"github.com/dataforge/migrator/internal/segment"
	"github.com/dataforge/migrator/internal/state"
	"github.com/dataforge/migrator/internal/transform"
)

func TestFanOutRunsOnePartPerItemRuntime(t *testing.T) {
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("state.Open() error: %v", err)
	}
	defer store.Close()

	var mu sync.Mutex
	var seenParts []segment.Part

	pk := pagination.QualCol{Column: "id"}
	err = FanOut(context.Background(), 4, "tenant_hash", func(part segment.Part) *ItemRuntime {
		mu.Lock()
		seenParts = append(seenParts, part)
		mu.Unlock()

		src := &fakeRuntimeSource{}
		return &ItemRuntime{
			Context:  &ItemContext{Source: src, Sink: &fakeExecSink{}, Log: zap.NewNop()},
			Settings: nil,
			Strategy: pagination.PkStrategy{Col: pk},
			Pipeline: transform.NewPipeline(),
			Store:    store,
			RunID:    "run1",
			ItemID:   "item1",
			Log:      zap.NewNop(),
		}
	})
	if err != nil {
		t.Fatalf("FanOut() error: %v", err)
	}

	if len(seenParts) != 4 {
		t.Fatalf("FanOut() built %d runtimes, want 4", len(seenParts))
	}
	if seenParts[0].StartHex != "00" {
		t.Errorf("first part should start at 00, got %s", seenParts[0].StartHex)
	}
	if seenParts[3].EndHex != "100" {
		t.Errorf("last part should end at 100, got %s", seenParts[3].EndHex)
	}
}

func TestHashPartitionedStrategyAndsHashBoundIntoPredicate(t *testing.T) {
	pk := pagination.QualCol{Column: "id"}
	part := segment.Part{Index: 2, StartHex: "80", EndHex: "c0"}
	s := hashPartitionedStrategy{Strategy: pagination.PkStrategy{Col: pk}, HashColumn: "tenant_hash", Part: part}

	pred, args, err := s.Predicate(dialect.NewPostgres(), pagination.Pk(pk, 5), 0)
	if err != nil {
		t.Fatalf("Predicate() error: %v", err)
	}
	if pred == "" {
		t.Fatalf("Predicate() returned an empty fragment")
	}
	if len(args) != 3 {
		t.Fatalf("Predicate() returned %d args, want 3 (cursor id + two hash bounds)", len(args))
	}
	if args[1] != "80" || args[2] != "c0" {
		t.Errorf("Predicate() hash bound args = %v, want [80 c0]", args[1:])
	}
}
