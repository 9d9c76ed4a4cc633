// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package report builds the structured result of a dry run:
// destination-facing Findings and the ValidationReport that collects them
// alongside generated-but-unexecuted queries and a transformation sample,
// for an operator to review before a migration actually writes anything.
package report

// Severity ranks how serious a Finding is.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// FindingKind groups a Finding by the part of the run it concerns.
type FindingKind string

const (
	KindSourceSchema      FindingKind = "SourceSchema" // nullable mismatch, missing PK
	KindDestinationSchema FindingKind = "DestinationSchema"
	KindSourceData        FindingKind = "SourceData" // missing data, type mismatch
	KindMapping           FindingKind = "Mapping"     // field map issues
	KindTransformation    FindingKind = "Transformation"
	KindConnectivity      FindingKind = "Connectivity" // auth/connection
	KindOther             FindingKind = "Other"
)

// Finding is one observation a dry run surfaces to the operator: what went
// wrong (or merely deserves attention), how bad it is, and — where the
// check knows — how to fix it.
type Finding struct {
	Code       string      `json:"code"` // stable programmatic id
	Message    string      `json:"message"`
	Severity   Severity    `json:"severity"`
	Kind       FindingKind `json:"kind"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// NewErrorFinding builds a DestinationSchema-kind error Finding with no
// suggestion, for checks that have nothing more specific to say.
func NewErrorFinding(code, message string) Finding {
	return Finding{Code: code, Message: message, Severity: SeverityError, Kind: KindDestinationSchema}
}

// NewWarningFinding is NewErrorFinding's Warning-severity counterpart.
func NewWarningFinding(code, message string) Finding {
	return Finding{Code: code, Message: message, Severity: SeverityWarning, Kind: KindDestinationSchema}
}

const (
	codeMappingMissing       = "MAPPING_MISSING"
	codeFetchError           = "FETCH_ERROR"
	codeUnsupportedSource    = "UNSUPPORTED_SOURCE"
	codeNonResumableStrategy = "NON_RESUMABLE_STRATEGY"
)

// MappingMissingFinding reports that copy_columns_map_only is set for table
// but no field mapping exists for it, so CopyColumnsMapOnly would drop
// every column.
func MappingMissingFinding(table string) Finding {
	return Finding{
		Code:       codeMappingMissing,
		Message:    "no mapping found for table `" + table + "` while copy_columns_map_only is set",
		Severity:   SeverityError,
		Kind:       KindSourceSchema,
		Suggestion: "add field mappings for this table or disable copy_columns_map_only",
	}
}

// FetchErrorFinding reports that the source producer failed mid-validation.
func FetchErrorFinding(errMessage string) Finding {
	return Finding{
		Code:       codeFetchError,
		Message:    "error fetching data: " + errMessage,
		Severity:   SeverityError,
		Kind:       KindSourceData,
		Suggestion: "check source connectivity and query validity",
	}
}

// NonResumableStrategyFinding reports that a checkpointed run could not
// resume because its pagination strategy cannot safely validate a prior
// cursor: only PkStrategy and the composite tie-break strategies are
// resumable-safe (see internal/pagination.Strategy.ResumableSafe) —
// NumericStrategy and TimestampStrategy alone can skip or repeat rows
// across a crash if the table changed between runs.
func NonResumableStrategyFinding(strategyName string) Finding {
	return Finding{
		Code:       codeNonResumableStrategy,
		Message:    "pagination strategy `" + strategyName + "` is not resumable-safe and cannot resume from a checkpoint",
		Severity:   SeverityError,
		Kind:       KindSourceSchema,
		Suggestion: "switch to a pk or composite strategy, or restart this item from scratch",
	}
}

// UnsupportedSourceFinding reports that a dry run was asked to validate a
// source kind the validation path does not support (only SQL sources
// describe a schema; CSV sources have none to validate against).
func UnsupportedSourceFinding(sourceKind string) Finding {
	return Finding{
		Code:       codeUnsupportedSource,
		Message:    "validation run does not support source kind: " + sourceKind,
		Severity:   SeverityError,
		Kind:       KindSourceSchema,
		Suggestion: "use a database source for validation runs",
	}
}
