// Package apperr defines herald's typed domain errors and their HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeForbidden         Code = "FORBIDDEN"
	CodeStaleVersion      Code = "STALE_VERSION"
	CodeModeBlocked       Code = "MODE_BLOCKED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeValidation        Code = "VALIDATION"
	// CodeCancelIncomplete reports a crisis switch whose mass-cancel left
	// some scheduled items untouched. The mode change itself committed.
	CodeCancelIncomplete Code = "CANCEL_INCOMPLETE"
)

// HTTPStatus maps a code to the status returned by the API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeStaleVersion:
		return http.StatusPreconditionFailed
	case CodeForbidden:
		return http.StatusForbidden
	case CodeModeBlocked:
		return http.StatusLocked
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeCancelIncomplete:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a code and structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]any
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// With adds a metadata entry and returns e for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
func GetMetadata(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}

// HTTPStatus returns the status code for any error.
func HTTPStatus(err error) int {
	return GetCode(err).HTTPStatus()
}

// InvalidTransition reports a status change that the state machine forbids.
func InvalidTransition(from, to, action string) *Error {
	return Newf(CodeInvalidTransition, "cannot %s: transition %s -> %s is not allowed", action, from, to).
		With("current_status", from).
		With("requested_status", to).
		With("action", action)
}

// Forbidden reports that role may not perform action.
func Forbidden(role, action string) *Error {
	return Newf(CodeForbidden, "role %q may not %s", role, action).
		With("role", role).
		With("action", action)
}

// StaleVersion reports an optimistic concurrency conflict.
func StaleVersion(expected, actual int64) *Error {
	return Newf(CodeStaleVersion, "expected version %d but item is at version %d", expected, actual).
		With("expected_version", expected).
		With("current_version", actual)
}

// ModeBlocked reports that the current system mode disallows action.
func ModeBlocked(action, mode string, paused bool) *Error {
	return Newf(CodeModeBlocked, "%s is not permitted while system mode is %s (paused=%t)", action, mode, paused).
		With("action", action).
		With("mode", mode).
		With("paused", paused)
}

// NotFound reports a missing resource.
func NotFound(kind, id string) *Error {
	return Newf(CodeNotFound, "%s %s not found", kind, id).
		With("id", id)
}

// Validation reports invalid caller input.
func Validation(field, message string) *Error {
	return Newf(CodeValidation, "%s: %s", field, message).
		With("field", field)
}
