// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package report

import (
	"testing"

	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/transform"
)

func TestBuilderBuildStatusEscalatesWithSeverity(t *testing.T) {
	cases := []struct {
		name   string
		seed   func(b *Builder)
		status ValidationStatus
	}{
		{name: "no findings", seed: func(b *Builder) {}, status: StatusSuccess},
		{
			name:   "warning only",
			seed:   func(b *Builder) { b.AddFinding(NewWarningFinding("X", "minor")) },
			status: StatusSuccessWithWarnings,
		},
		{
			name: "error wins over warning",
			seed: func(b *Builder) {
				b.AddFinding(NewWarningFinding("X", "minor"))
				b.AddFinding(NewErrorFinding("Y", "fatal"))
			},
			status: StatusFailure,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder("mysql", "postgres")
			tc.seed(b)
			got := b.Build()
			if got.Summary.Status != tc.status {
				t.Errorf("Build().Summary.Status = %v, want %v", got.Summary.Status, tc.status)
			}
		})
	}
}

func TestBuilderRecordValidationCountsAndSamples(t *testing.T) {
	b := NewBuilder("mysql", "postgres")
	row := model.Row{Entity: model.Entity{Name: "customers"}, Fields: []model.FieldValue{{Name: "id", Value: model.Int(1)}}}

	b.RecordValidation(row, transform.ValidationResult{Pass: true})
	b.RecordValidation(row, transform.ValidationResult{
		Pass: false, Rule: "non_null_email", Message: "email is required", Action: transform.ValidationFail,
	})

	rpt := b.Build()
	if rpt.TransformationSummary.SuccessfulTransformations != 1 {
		t.Errorf("SuccessfulTransformations = %d, want 1", rpt.TransformationSummary.SuccessfulTransformations)
	}
	if rpt.TransformationSummary.FailedTransformations != 1 {
		t.Errorf("FailedTransformations = %d, want 1", rpt.TransformationSummary.FailedTransformations)
	}
	if len(rpt.TransformationSummary.TransformedSampleData) != 2 {
		t.Fatalf("sample count = %d, want 2", len(rpt.TransformationSummary.TransformedSampleData))
	}
	if rpt.Summary.RecordsSampled != 2 {
		t.Errorf("RecordsSampled = %d, want 2", rpt.Summary.RecordsSampled)
	}
	if len(rpt.Findings) != 1 || rpt.Findings[0].Severity != SeverityError {
		t.Fatalf("Findings = %+v, want one Error-severity finding", rpt.Findings)
	}
}

func TestBuilderRecordValidationCapsSamples(t *testing.T) {
	b := NewBuilder("mysql", "postgres")
	row := model.Row{Entity: model.Entity{Name: "customers"}}
	for i := 0; i < maxSampleRows+10; i++ {
		b.RecordValidation(row, transform.ValidationResult{Pass: true})
	}
	rpt := b.Build()
	if len(rpt.TransformationSummary.TransformedSampleData) != maxSampleRows {
		t.Errorf("sample count = %d, want capped at %d", len(rpt.TransformationSummary.TransformedSampleData), maxSampleRows)
	}
	if rpt.TransformationSummary.SuccessfulTransformations != maxSampleRows+10 {
		t.Errorf("SuccessfulTransformations = %d, want %d (count uncapped even though samples are)",
			rpt.TransformationSummary.SuccessfulTransformations, maxSampleRows+10)
	}
}

func TestMappingMissingFindingIsErrorSeverity(t *testing.T) {
	f := MappingMissingFinding("customers")
	if f.Severity != SeverityError || f.Kind != KindSourceSchema {
		t.Errorf("MappingMissingFinding() = %+v, want Error/SourceSchema", f)
	}
	if f.Suggestion == "" {
		t.Error("MappingMissingFinding() should include a suggestion")
	}
}
