// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package model

import (
	"testing"
	"time"
)

func TestValueLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null below int", Null(), Int(1), true},
		{"int above null", Int(1), Null(), false},
		{"both null not less", Null(), Null(), false},
		{"int ordering", Int(1), Int(2), true},
		{"string ordering", String("a"), String("b"), true},
		{"time ordering", Time(time.Unix(0, 0)), Time(time.Unix(1, 0)), true},
		{"bool ordering", Bool(false), Bool(true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueEqual(t *testing.T) {
	if !Int(5).Equal(Int(5)) {
		t.Errorf("expected Int(5) to equal Int(5)")
	}
	if Int(5).Equal(Int(6)) {
		t.Errorf("expected Int(5) to not equal Int(6)")
	}
	if !Null().Equal(Null()) {
		t.Errorf("expected Null() to equal Null()")
	}
	if Int(5).Equal(String("5")) {
		t.Errorf("expected values of differing Kind to never be equal")
	}
}

func TestRowWithAndWithout(t *testing.T) {
	row := Row{
		Entity: Entity{Kind: EntityTable, Name: "users"},
		Fields: []FieldValue{
			{Name: "id", Value: Int(1)},
			{Name: "email", Value: String("a@example.com")},
		},
	}

	updated := row.With("email", String("b@example.com"))
	if v, ok := updated.Get("email"); !ok || v.Str != "b@example.com" {
		t.Errorf("With() did not update existing field, got %+v", v)
	}
	if v, _ := row.Get("email"); v.Str != "a@example.com" {
		t.Errorf("With() mutated the original row")
	}

	appended := row.With("created_at", Null())
	if len(appended.Fields) != 3 {
		t.Errorf("With() on a new field name should append, got %d fields", len(appended.Fields))
	}

	pruned := row.Without("email")
	if _, ok := pruned.Get("email"); ok {
		t.Errorf("Without() should have removed the email field")
	}
	if len(row.Fields) != 2 {
		t.Errorf("Without() mutated the original row")
	}
}

func TestFieldMetadataColumn(t *testing.T) {
	meta := FieldMetadata{
		Entity: Entity{Kind: EntityTable, Name: "users"},
		Columns: []Column{
			{Name: "id", Type: "integer", PrimaryKey: true, Ordinal: 0},
			{Name: "email", Type: "varchar(255)", Nullable: true, Ordinal: 1},
		},
	}

	if _, ok := meta.Column("missing"); ok {
		t.Errorf("expected missing column to not be found")
	}
	col, ok := meta.Column("email")
	if !ok || col.Type != "varchar(255)" {
		t.Errorf("expected to find email column, got %+v", col)
	}

	pk := meta.PrimaryKeyColumns()
	if len(pk) != 1 || pk[0].Name != "id" {
		t.Errorf("expected id to be the sole primary key column, got %+v", pk)
	}
}
