// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package source

import (
	"context"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/pagination"
)

func memCSVSource(t *testing.T, csvText string, pageSize uint64) *CSVSource {
	t.Helper()
	open := func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(csvText)), nil
	}
	return &CSVSource{
		open:     open,
		entity:   model.Entity{Kind: model.EntityCSVFile, Name: "test.csv"},
		strategy: pagination.DefaultStrategy{PageSize: pageSize},
		log:      zap.NewNop(),
	}
}

func TestCSVSourceDescribeReadsHeader(t *testing.T) {
	s := memCSVSource(t, "id,name\n1,Ada\n2,Grace\n", 10)
	meta, err := s.Describe(context.Background())
	if err != nil {
		t.Fatalf("Describe() error: %v", err)
	}
	if len(meta.Columns) != 2 || meta.Columns[0].Name != "id" || meta.Columns[1].Name != "name" {
		t.Errorf("Describe() columns = %+v", meta.Columns)
	}
}

func TestCSVSourceFetchFirstPage(t *testing.T) {
	s := memCSVSource(t, "id,name\n1,Ada\n2,Grace\n3,Alan\n", 2)
	result, err := s.Fetch(context.Background(), pagination.None(), 2)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(result.Rows) != 2 || result.Done {
		t.Fatalf("Fetch() = %+v", result)
	}
	v, ok := result.Rows[0].Get("name")
	if !ok || v.Str != "Ada" {
		t.Errorf("first row name = %+v", v)
	}
}

func TestCSVSourceFetchResumesFromCursor(t *testing.T) {
	s := memCSVSource(t, "id,name\n1,Ada\n2,Grace\n3,Alan\n", 2)
	first, err := s.Fetch(context.Background(), pagination.None(), 2)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	second, err := s.Fetch(context.Background(), first.Next, 2)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(second.Rows) != 1 || !second.Done {
		t.Fatalf("second Fetch() = %+v", second)
	}
	v, _ := second.Rows[0].Get("name")
	if v.Str != "Alan" {
		t.Errorf("second page row = %+v, want Alan", v)
	}
}

func TestCSVSourceFetchTreatsEmptyFieldAsNull(t *testing.T) {
	s := memCSVSource(t, "id,name\n1,\n", 10)
	result, err := s.Fetch(context.Background(), pagination.None(), 10)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	v, ok := result.Rows[0].Get("name")
	if !ok || !v.IsNull() {
		t.Errorf("expected empty CSV field to become null, got %+v", v)
	}
}

func TestCSVSourceFetchOnEmptyDataReturnsDone(t *testing.T) {
	s := memCSVSource(t, "id,name\n", 10)
	result, err := s.Fetch(context.Background(), pagination.None(), 10)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if !result.Done || len(result.Rows) != 0 {
		t.Errorf("Fetch() on a header-only file = %+v, want Done", result)
	}
}
