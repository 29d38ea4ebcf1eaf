package catalog

import (
	"errors"
	"fmt"
)

// Row validation failures. A *RowError wraps exactly one of these.
var (
	ErrEmptyPathSegment     = errors.New("empty path segment")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidNumber        = errors.New("invalid number")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidBoolean       = errors.New("invalid boolean")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrDuplicateProductCode = errors.New("duplicate product code")
	ErrCodeConflict         = errors.New("product code collides with a group of the same name")
	ErrPictureNotFound      = errors.New("picture file not found")
)

// ErrMalformedTree signals a broken tree invariant. Trees produced by Build
// never trigger it.
var ErrMalformedTree = errors.New("malformed tree")

// RowError locates a validation failure in the source file.
type RowError struct {
	Line   int
	Column string
	Value  string
	Detail string
	Err    error
}

func (e *RowError) Error() string {
	msg := fmt.Sprintf("line %d: %s: %v", e.Line, e.Column, e.Err)
	if e.Value != "" {
		msg += fmt.Sprintf(" (%q)", e.Value)
	}
	if e.Detail != "" {
		msg += ", " + e.Detail
	}
	return msg
}

func (e *RowError) Unwrap() error { return e.Err }

func rowErr(line int, column, value string, err error) *RowError {
	return &RowError{Line: line, Column: column, Value: value, Err: err}
}
