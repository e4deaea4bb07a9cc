package errors

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// RowLocation pins a problem to a place in a statement file
type RowLocation struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// RowError is a per-row failure raised while normalizing statement rows.
// In lenient mode the same condition is recorded as a warning instead.
type RowError struct {
	*ReconcilerError
	Location RowLocation `json:"location"`
}

// Error includes the row location after the base message
func (e *RowError) Error() string {
	location := fmt.Sprintf("at %s", filepath.Base(e.Location.File))
	if e.Location.Line > 0 {
		location += fmt.Sprintf(":%d", e.Location.Line)
	}
	if e.Location.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Location.Column)
	}
	return e.ReconcilerError.Message + " " + location
}

// Unwrap exposes the underlying ReconcilerError
func (e *RowError) Unwrap() error {
	return e.ReconcilerError
}

// NewRowError creates a row-level validation error
func NewRowError(code ErrorCode, loc RowLocation, message string) *RowError {
	base := New(CategoryValidation, code, message).
		WithContext("file", loc.File).
		WithContext("line", loc.Line)
	if loc.Column != "" {
		base.WithContext("column", loc.Column)
	}
	if loc.Value != "" {
		base.WithContext("value", loc.Value)
	}
	return &RowError{ReconcilerError: base, Location: loc}
}

// InvalidAmountRow reports an amount that did not normalize to a number
func InvalidAmountRow(file string, line int, column, value string) *RowError {
	return NewRowError(CodeInvalidAmount, RowLocation{
		File: file, Line: line, Column: column, Value: value, Expected: "decimal number",
	}, fmt.Sprintf("invalid amount '%s'", value))
}

// InvalidDateRow reports a date that matched none of the known layouts
func InvalidDateRow(file string, line int, column, value string) *RowError {
	return NewRowError(CodeInvalidDate, RowLocation{
		File: file, Line: line, Column: column, Value: value, Expected: "calendar date",
	}, fmt.Sprintf("invalid date '%s'", value))
}

// RowErrors accumulates row failures for a batch.
type RowErrors struct {
	err   error
	count int
}

// Add appends a row error; nil is ignored
func (r *RowErrors) Add(err *RowError) {
	if err == nil {
		return
	}
	r.err = multierr.Append(r.err, err)
	r.count++
}

// Len returns the number of collected row errors
func (r *RowErrors) Len() int {
	return r.count
}

// Errors returns the collected errors in insertion order
func (r *RowErrors) Errors() []error {
	return multierr.Errors(r.err)
}

// Err folds the collected rows into a single batch ValidationError, or nil.
func (r *RowErrors) Err(file string) error {
	if r.count == 0 {
		return nil
	}
	return Wrap(r.err, CategoryValidation, CodeInvalidData,
		fmt.Sprintf("%d invalid rows in %s", r.count, filepath.Base(file))).
		WithSuggestion("fix the listed rows or import with --policy lenient").
		WithContext("file", file).
		WithContext("rows", r.count)
}

// FormatRowErrors renders row errors for terminal output, capped at limit lines.
func FormatRowErrors(errs []error, limit int) string {
	if len(errs) == 0 {
		return ""
	}
	var lines []string
	for i, err := range errs {
		if limit > 0 && i >= limit {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(errs)-limit))
			break
		}
		lines = append(lines, fmt.Sprintf("  %d. %v", i+1, err))
	}
	return strings.Join(lines, "\n")
}
