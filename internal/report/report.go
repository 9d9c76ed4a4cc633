// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package report

import (
	"sync"
	"time"

	"github.com/dataforge/migrator/internal/model"
	"github.com/dataforge/migrator/internal/transform"
)

// maxSampleRows caps how many transformed rows a ValidationReport carries,
// so a dry run over a large table doesn't build an unbounded report in
// memory. Rows beyond the cap are still counted, just not sampled.
const maxSampleRows = 20

// ValidationStatus is the overall verdict of a dry run.
type ValidationStatus string

const (
	StatusSuccess             ValidationStatus = "Success"
	StatusSuccessWithWarnings ValidationStatus = "SuccessWithWarnings"
	StatusFailure             ValidationStatus = "Failure"
)

// SchemaAction describes one schema difference a dry run noticed, or one
// DDL action a live run would have taken, without taking it.
type SchemaAction struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Entity  string `json:"entity,omitempty"`
}

// ValidationSummary is the headline of a ValidationReport.
type ValidationSummary struct {
	Status          ValidationStatus `json:"status"`
	Timestamp       time.Time        `json:"timestamp"`
	SourceType      string           `json:"source_type"`
	DestinationType string           `json:"destination_type"`
	RecordsSampled  int              `json:"records_sampled"`
	Errors          []string         `json:"errors,omitempty"`
}

// SchemaAnalysis collects what a dry run found wrong with either side's
// schema, plus what it would have done about the destination's.
type SchemaAnalysis struct {
	SourceWarnings      []SchemaAction `json:"source_warnings,omitempty"`
	DestinationWarnings []SchemaAction `json:"destination_warnings,omitempty"`
	Actions             []SchemaAction `json:"actions,omitempty"`
}

// Query is one statement a live run would execute, kept for inspection
// without being run.
type Query struct {
	SQL  string        `json:"sql"`
	Args []model.Value `json:"args,omitempty"`
}

// GeneratedQueries holds the schema DDL and data DML a live run would issue
// for this item, generated but never executed.
type GeneratedQueries struct {
	SchemaQueries []Query `json:"schema_queries,omitempty"`
	DataQueries   []Query `json:"data_queries,omitempty"`
}

// TransformationRecord pairs one row's pre- and post-pipeline form, or the
// error the pipeline or a validation rule raised against it.
type TransformationRecord struct {
	InputRow  model.Row  `json:"input_row"`
	OutputRow *model.Row `json:"output_row,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TransformationSummary tallies how many sampled rows passed their item's
// transform/validation pipeline and keeps a bounded sample of both.
type TransformationSummary struct {
	SuccessfulTransformations int                     `json:"successful_transformations"`
	FailedTransformations     int                     `json:"failed_transformations"`
	TransformedSampleData     []TransformationRecord  `json:"transformed_sample_data,omitempty"`
}

// ValidationReport is the concrete shape of a dry run's result: no row was
// written, but every check a live run would perform against this source and
// destination already ran.
type ValidationReport struct {
	Summary                ValidationSummary      `json:"summary"`
	SchemaAnalysis         SchemaAnalysis         `json:"schema_analysis"`
	GeneratedQueries       GeneratedQueries       `json:"generated_queries"`
	TransformationSummary  TransformationSummary  `json:"transformation_summary"`
	Findings               []Finding              `json:"findings,omitempty"`
}

// Builder accumulates a ValidationReport's pieces as a dry run's items and
// parts validate concurrently, then renders the final ValidationReport.
// Every method is safe for concurrent use: a run may fan an item out across
// several internal/segment parts, each driving its own ValidationConsumer
// against the same Builder.
type Builder struct {
	sourceType string
	destType   string

	mu       sync.Mutex
	findings []Finding
	schema   SchemaAnalysis
	queries  GeneratedQueries
	ok       int
	failed   int
	samples  []TransformationRecord
}

// NewBuilder starts a report for a run reading from sourceType and writing
// to destType (e.g. "mysql", "postgres", "csv").
func NewBuilder(sourceType, destType string) *Builder {
	return &Builder{sourceType: sourceType, destType: destType}
}

// AddFinding appends f to the report, independent of any particular row.
func (b *Builder) AddFinding(f Finding) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findings = append(b.findings, f)
}

// AddSchemaWarning records a schema concern noticed on one side of the run.
func (b *Builder) AddSchemaWarning(onSource bool, action SchemaAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if onSource {
		b.schema.SourceWarnings = append(b.schema.SourceWarnings, action)
	} else {
		b.schema.DestinationWarnings = append(b.schema.DestinationWarnings, action)
	}
}

// AddSchemaAction records a DDL action the dry run determined a live run
// would take against the destination (create/alter table), without
// executing it.
func (b *Builder) AddSchemaAction(action SchemaAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schema.Actions = append(b.schema.Actions, action)
}

// AddGeneratedQuery records one statement a live run would execute.
func (b *Builder) AddGeneratedQuery(isSchema bool, sql string, args ...model.Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := Query{SQL: sql, Args: args}
	if isSchema {
		b.queries.SchemaQueries = append(b.queries.SchemaQueries, q)
	} else {
		b.queries.DataQueries = append(b.queries.DataQueries, q)
	}
}

// RecordValidation folds one row's transform.ValidationResult into the
// report: a pass counts toward SuccessfulTransformations, a failure counts
// toward FailedTransformations and adds a Transformation-kind Finding keyed
// by the rule that rejected it. Both kinds are sampled up to maxSampleRows.
func (b *Builder) RecordValidation(row model.Row, result transform.ValidationResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := TransformationRecord{InputRow: row}
	if result.Pass {
		b.ok++
	} else {
		b.failed++
		rec.Error = result.Message
		severity := SeverityWarning
		if result.Action == transform.ValidationFail {
			severity = SeverityError
		}
		b.findings = append(b.findings, Finding{
			Code:     "VALIDATION_" + result.Rule,
			Message:  result.Message,
			Severity: severity,
			Kind:     KindTransformation,
		})
	}
	if len(b.samples) < maxSampleRows {
		b.samples = append(b.samples, rec)
	}
}

// Build renders the accumulated state into a ValidationReport. Status is
// Failure if any Finding is Error-severity, SuccessWithWarnings if only
// Warning-severity findings exist, Success otherwise.
func (b *Builder) Build() ValidationReport {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := StatusSuccess
	for _, f := range b.findings {
		switch f.Severity {
		case SeverityError:
			status = StatusFailure
		case SeverityWarning:
			if status != StatusFailure {
				status = StatusSuccessWithWarnings
			}
		}
	}

	return ValidationReport{
		Summary: ValidationSummary{
			Status:          status,
			Timestamp:       time.Now().UTC(),
			SourceType:      b.sourceType,
			DestinationType: b.destType,
			RecordsSampled:  b.ok + b.failed,
		},
		SchemaAnalysis:   b.schema,
		GeneratedQueries: b.queries,
		TransformationSummary: TransformationSummary{
			SuccessfulTransformations: b.ok,
			FailedTransformations:     b.failed,
			TransformedSampleData:     append([]TransformationRecord(nil), b.samples...),
		},
		Findings: append([]Finding(nil), b.findings...),
	}
}
