package pipeline

import (
	"errors"
	"fmt"
)

// Error type constants for classification and matching
const (
	// ErrorTypeNotFound indicates an unknown candidate, template, or phase
	// reference.
	ErrorTypeNotFound = "not_found"

	// ErrorTypeValidation indicates a malformed request, such as a target
	// phase that does not belong to the candidate's template.
	ErrorTypeValidation = "validation"

	// ErrorTypeStateConflict indicates the caller's view of the candidate is
	// stale: the supplied from-phase no longer matches the current phase.
	ErrorTypeStateConflict = "state_conflict"

	// ErrorTypeExternalSync classifies best-effort side-effect failures
	// (status sync, event publication). These are logged at the call site
	// and never surfaced to the caller of the primary mutation.
	ErrorTypeExternalSync = "external_sync"
)

// Error represents a structured pipeline error with classification.
// It supports Go's error wrapping patterns with Unwrap() method.
type Error struct {
	Type    string      `json:"type"`
	Cause   string      `json:"cause"`
	Details interface{} `json:"details,omitempty"`
	Wrapped error       `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for Go's errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// NewError creates a new Error with the specified type and cause.
func NewError(errorType, format string, args ...any) *Error {
	return &Error{Type: errorType, Cause: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports an unknown candidate, template, or phase.
func NewNotFoundError(format string, args ...any) *Error {
	return NewError(ErrorTypeNotFound, format, args...)
}

// NewValidationError reports a malformed request.
func NewValidationError(format string, args ...any) *Error {
	return NewError(ErrorTypeValidation, format, args...)
}

// NewStateConflictError reports a stale caller view of a candidate's state.
func NewStateConflictError(format string, args ...any) *Error {
	return NewError(ErrorTypeStateConflict, format, args...)
}

// NewExternalSyncError wraps a side-effect failure for logging.
func NewExternalSyncError(cause string, wrapped error) *Error {
	return &Error{Type: ErrorTypeExternalSync, Cause: cause, Wrapped: wrapped}
}

// ErrorTypeOf returns the classification of an error, or an empty string if
// the error is not a pipeline Error.
func ErrorTypeOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type
	}
	return ""
}

// IsNotFound reports whether the error is classified not_found.
func IsNotFound(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeNotFound
}

// IsValidation reports whether the error is classified validation.
func IsValidation(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeValidation
}

// IsStateConflict reports whether the error is classified state_conflict.
func IsStateConflict(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeStateConflict
}
