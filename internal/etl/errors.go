package etl

// errors.go defines the row-level error taxonomy for the pipeline.
//
// Row-level errors never abort a run: they are collected into the
// RejectionReport and logged, and the offending row is dropped. Run-level
// failures (unreadable input directory, unreachable store) are plain wrapped
// errors surfaced to the CLI as a non-zero exit.

import "fmt"

// RowErrorKind classifies why a row was rejected.
type RowErrorKind string

const (
	// KindSchema means a required source column was absent.
	KindSchema RowErrorKind = "schema"
	// KindParse means a cell value could not be cast to its target type.
	KindParse RowErrorKind = "parse"
	// KindValidation means a business-rule invariant was violated.
	KindValidation RowErrorKind = "validation"
)

// RowError describes a single row rejection with the offending field and
// value, so every dropped row stays attributable.
type RowError struct {
	Kind    RowErrorKind
	Field   string
	Value   string
	Message string
}

func (e *RowError) Error() string {
	switch {
	case e.Field != "" && e.Value != "":
		return fmt.Sprintf("%s error: %s=%q: %s", e.Kind, e.Field, e.Value, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s error: %s: %s", e.Kind, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func schemaErr(field string) *RowError {
	return &RowError{Kind: KindSchema, Field: field, Message: "missing required column"}
}

func parseErr(field, value, msg string) *RowError {
	return &RowError{Kind: KindParse, Field: field, Value: value, Message: msg}
}

func validationErr(field, value, msg string) *RowError {
	return &RowError{Kind: KindValidation, Field: field, Value: value, Message: msg}
}
