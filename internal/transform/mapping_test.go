// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package transform

import (
	"testing"

	"github.com/dataforge/migrator/internal/model"
)

func TestNameMapResolveIsCaseInsensitive(t *testing.T) {
	nm := NewNameMap(map[string]string{"UserID": "user_id"})
	if got := nm.Resolve("userid"); got != "user_id" {
		t.Errorf("Resolve(userid) = %q, want user_id (lookup ignores case)", got)
	}
	if got := nm.Resolve("USERID"); got != "user_id" {
		t.Errorf("Resolve(USERID) = %q, want user_id (lookup ignores case)", got)
	}
	if got := nm.Resolve("UserID"); got != "user_id" {
		t.Errorf("Resolve(UserID) = %q, want user_id", got)
	}
	if got := nm.Resolve("userid2"); got != "userid2" {
		t.Errorf("Resolve() of a truly unmapped name should pass through, got %q", got)
	}
}

func TestNameMapReverseResolve(t *testing.T) {
	nm := NewNameMap(map[string]string{"legacy_customers": "customers"})
	if got := nm.ReverseResolve("Customers"); got != "legacy_customers" {
		t.Errorf("ReverseResolve(Customers) = %q, want legacy_customers", got)
	}
	if got := nm.ReverseResolve("unknown"); got != "unknown" {
		t.Errorf("ReverseResolve() of an unmapped name should pass through, got %q", got)
	}
}

func TestTableMapperApplyRenamesEntity(t *testing.T) {
	tm := TableMapper{NameMap: NewNameMap(map[string]string{"legacy_customers": "customers"})}
	row := model.Row{Entity: model.Entity{Name: "legacy_customers"}}
	out, err := tm.Apply(row)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if out.Entity.Name != "customers" {
		t.Errorf("Apply() renamed Entity.Name = %q, want customers", out.Entity.Name)
	}
}

func TestTableMapperApplyLeavesUnmappedEntityUnchanged(t *testing.T) {
	tm := TableMapper{NameMap: NewNameMap(map[string]string{"legacy_customers": "customers"})}
	row := model.Row{Entity: model.Entity{Name: "orders"}}
	out, err := tm.Apply(row)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if out.Entity.Name != "orders" {
		t.Errorf("Apply() = %q, want orders unchanged", out.Entity.Name)
	}
}

func TestFieldMapperAppliesKeyedByDestinationTable(t *testing.T) {
	fm := FieldMapper{Tables: map[string]NameMap{
		"customers": NewNameMap(map[string]string{"cust_id": "id", "cust_name": "name"}),
	}}
	row := model.Row{
		Entity: model.Entity{Name: "customers"},
		Fields: []model.FieldValue{
			{Name: "cust_id", Value: model.Int(1)},
			{Name: "cust_name", Value: model.String("Ada")},
			{Name: "unmapped", Value: model.Bool(true)},
		},
	}
	out, err := fm.Apply(row)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if out.Fields[0].Name != "id" || out.Fields[1].Name != "name" || out.Fields[2].Name != "unmapped" {
		t.Errorf("Apply() fields = %+v", out.Fields)
	}
	// Original row fields untouched: Apply must not mutate in place.
	if row.Fields[0].Name != "cust_id" {
		t.Errorf("Apply() mutated the original row in place")
	}
}

func TestFieldMapperSkipsUnconfiguredTable(t *testing.T) {
	fm := FieldMapper{Tables: map[string]NameMap{
		"customers": NewNameMap(map[string]string{"cust_id": "id"}),
	}}
	row := model.Row{
		Entity: model.Entity{Name: "orders"},
		Fields: []model.FieldValue{{Name: "cust_id", Value: model.Int(1)}},
	}
	out, err := fm.Apply(row)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if out.Fields[0].Name != "cust_id" {
		t.Errorf("Apply() should leave an unconfigured table's fields unchanged, got %+v", out.Fields)
	}
}
