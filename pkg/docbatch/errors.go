// Package docbatch implements the token expression engine used to fill
// Office templates from tabular data: the {{...}} grammar, the filter
// registry, value resolution against a data row, structure-aware token
// scanning and substitution, and the batch preflight check.
package docbatch

import (
	"fmt"
)

// ParseError reports malformed token syntax. It always surfaces and blocks
// the template it was found in.
type ParseError struct {
	Token   string
	Message string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("parse error in token '%s': %s", e.Token, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// NewParseError creates a new parse error for a raw token.
func NewParseError(token, message string) error {
	return &ParseError{Token: token, Message: message}
}

// ResolveErrorKind enumerates hard resolution failures.
type ResolveErrorKind int

const (
	// MissingRequiredField is the only hard failure path in resolution:
	// strict mode, field absent, no default.
	MissingRequiredField ResolveErrorKind = iota
)

// ResolveError reports a hard failure while resolving a token against a row.
type ResolveError struct {
	Kind  ResolveErrorKind
	Field string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("required field '%s' has no matching column and no default", e.Field)
}

// DocumentError reports a failure while reading or writing a document.
type DocumentError struct {
	Operation string
	Path      string
	Cause     error
}

func (e *DocumentError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("document error during %s of '%s': %v", e.Operation, e.Path, e.Cause)
	}
	return fmt.Sprintf("document error during %s: %v", e.Operation, e.Cause)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// NewDocumentError creates a new document error.
func NewDocumentError(operation, path string, cause error) error {
	return &DocumentError{Operation: operation, Path: path, Cause: cause}
}

// WarningCode classifies soft issues that never abort processing.
type WarningCode string

const (
	// WarnUnknownFilter marks a filter name the registry does not know.
	WarnUnknownFilter WarningCode = "UNKNOWN_FILTER"
	// WarnUnparsableInput marks a numeric or date filter whose input could
	// not be parsed; the value passed through unchanged.
	WarnUnparsableInput WarningCode = "UNPARSABLE_INPUT"
	// WarnUnterminatedToken marks a '{{' with no '}}' before its container
	// ends; the text is left verbatim.
	WarnUnterminatedToken WarningCode = "UNTERMINATED_TOKEN"
)

// Warning is a soft issue surfaced to the caller alongside a successful
// result so batch reporting can record it per cell.
type Warning struct {
	Code    WarningCode
	Field   string
	Filter  FilterName
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

// IsResolveError checks if an error is a hard resolution error.
func IsResolveError(err error) bool {
	_, ok := err.(*ResolveError)
	return ok
}
