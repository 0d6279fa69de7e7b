// Package domainerrors defines the coded error type shared by all domain
// modules. Services return these so handlers can translate codes to HTTP
// statuses without inspecting error strings.
//
// For infrastructure facts (entity missing from a store, duplicate key), use
// pkg/platform/sentinel instead; services translate sentinels into coded
// errors at the service boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Codes are stable API: they appear in HTTP
// error envelopes and in audit trails.
type Code string

const (
	// Generic codes.
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	// Temporal hierarchy codes.
	CodeInvalidRange          Code = "invalid_range"
	CodeOverlap               Code = "overlap"
	CodeNoInstitutionCoverage Code = "no_institution_coverage"
	CodeDateOutOfRange        Code = "date_out_of_range"

	// Conversion codes.
	CodeUnsupportedSystem Code = "unsupported_system"
	CodeUnsupportedValue  Code = "unsupported_value"

	// Equivalence codes.
	CodeSelfEquivalence Code = "self_equivalence"
)

// DomainError carries a code, a caller-facing message, and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// New builds a domain error with the given code and message.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message. Use it to include the
// entity ids and offending values callers need to render a useful message.
func Newf(code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// HasCode reports whether err (or anything it wraps) is a DomainError with
// the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		de = nil
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability:
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost domain error code, or CodeInternal when err is
// not a DomainError.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status handlers should respond with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeValidation,
		CodeInvalidRange, CodeUnsupportedValue, CodeSelfEquivalence:
		return http.StatusBadRequest
	case CodeNotFound, CodeUnsupportedSystem:
		return http.StatusNotFound
	case CodeConflict, CodeOverlap:
		return http.StatusConflict
	case CodeNoInstitutionCoverage, CodeDateOutOfRange:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
