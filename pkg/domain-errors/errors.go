// Package domainerrors defines the typed error taxonomy shared by services and
// transports. Services return *Error values; transports map Code to a status.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure so callers can decide between retry and
// user-facing failure without inspecting messages.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeRateLimited        Code = "rate_limit_exceeded"
	CodeInternal           Code = "internal_error"

	// Credential engine taxonomy.
	CodeInvalidClaims         Code = "invalid_claims"
	CodeNoCompatibleKey       Code = "no_compatible_key"
	CodeDisclosureUnsupported Code = "disclosure_unsupported"
	CodeUnknownFrame          Code = "unknown_disclosure_frame"
	CodeUnavailable           Code = "service_unavailable"
)

// Retryable reports whether a caller may retry the operation unchanged.
// Only collaborator outages, timeouts and rate limiting qualify.
func (c Code) Retryable() bool {
	return c == CodeUnavailable || c == CodeTimeout || c == CodeRateLimited
}

// Error is a domain error carrying a Code and, for collaborator failures, the
// collaborator name and the identifier that was being processed.
type Error struct {
	Code         Code
	Message      string
	Collaborator string
	Ref          string
	Err          error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Collaborator != "" {
		msg = fmt.Sprintf("%s [%s", msg, e.Collaborator)
		if e.Ref != "" {
			msg += " " + e.Ref
		}
		msg += "]"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Unavailable reports a collaborator outage. The result is retryable.
func Unavailable(collaborator, ref string, err error) *Error {
	return &Error{
		Code:         CodeUnavailable,
		Message:      collaborator + " unavailable",
		Collaborator: collaborator,
		Ref:          ref,
		Err:          err,
	}
}

// FromCollaborator returns err unchanged when a collaborator already raised
// a domain error, and wraps any other failure as an outage of that
// collaborator.
func FromCollaborator(collaborator, ref string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return Unavailable(collaborator, ref, err)
}

// NotFound reports a missing referenced resource.
func NotFound(collaborator, ref string) *Error {
	return &Error{
		Code:         CodeNotFound,
		Message:      "referenced resource not found",
		Collaborator: collaborator,
		Ref:          ref,
	}
}

// HasCode reports whether err (or any error it wraps) is an *Error with code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability in tests.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
