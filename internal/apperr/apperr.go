// Package apperr defines the typed error kinds used across the backend and
// their mapping to HTTP statuses and the response envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport-level handling.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindValidation
	KindConflict
	KindToolNotFound
	KindCompileError
	KindRuntimeError
)

// Error carries a kind, a user-visible message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Convenience constructors.
func NotFound(what string) *Error     { return New(KindNotFound, what+" not found") }
func Unauthorized(msg string) *Error  { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error     { return New(KindForbidden, msg) }
func Validation(msg string) *Error    { return New(KindValidation, msg) }
func Conflict(msg string) *Error      { return New(KindConflict, msg) }
func ToolNotFound(tool string) *Error { return New(KindToolNotFound, tool+" not found on this system") }
func Internal(err error) *Error       { return Wrap(KindInternal, "internal error", err) }

// KindOf extracts the kind of an error, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation, KindCompileError, KindRuntimeError:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindToolNotFound:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-visible message for an error. Internal causes are
// not leaked to clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return "internal error"
		}
		return e.Message
	}
	return "internal error"
}
