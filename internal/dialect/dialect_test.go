// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package dialect

import (
	"testing"

	"github.com/dataforge/migrator/internal/model"
)

func TestPostgresQuoteIdent(t *testing.T) {
	pg := NewPostgres()
	if got := pg.QuoteIdent("users"); got != `"users"` {
		t.Errorf("QuoteIdent() = %s", got)
	}
	if got := pg.QuoteIdent(`weird"name`); got != `"weird""name"` {
		t.Errorf("QuoteIdent() did not escape embedded quote, got %s", got)
	}
	if got := pg.QuoteQualified("public", "users"); got != `"public"."users"` {
		t.Errorf("QuoteQualified() = %s", got)
	}
}

func TestPostgresEncodeCopyValue(t *testing.T) {
	pg := NewPostgres()
	tests := []struct {
		name string
		v    model.Value
		want string
	}{
		{"null", model.Null(), `\N`},
		{"bool true", model.Bool(true), "t"},
		{"bool false", model.Bool(false), "f"},
		{"tab escaped", model.String("a\tb"), `a\tb`},
		{"newline escaped", model.String("a\nb"), `a\nb`},
		{"backslash escaped", model.String(`a\b`), `a\\b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pg.EncodeCopyValue(tt.v); got != tt.want {
				t.Errorf("EncodeCopyValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCapabilitiesFastPathEligible(t *testing.T) {
	if !NewPostgres().Capabilities().FastPathEligible() {
		t.Errorf("expected postgres to be fast-path eligible")
	}
	if NewMySQL().Capabilities().FastPathEligible() {
		t.Errorf("expected mysql (source-only) to not be fast-path eligible")
	}
}

func TestFor(t *testing.T) {
	if _, err := For("postgres"); err != nil {
		t.Errorf("For(postgres) returned error: %v", err)
	}
	if _, err := For("mysql"); err != nil {
		t.Errorf("For(mysql) returned error: %v", err)
	}
	if _, err := For("oracle"); err == nil {
		t.Errorf("expected For(oracle) to return an error")
	}
}
