// Package apperr defines the application error taxonomy. Every layer returns
// one of these kinds; the HTTP boundary translates kind to status code once,
// so handlers never pick status codes themselves.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-level translation.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindTenant
	KindNotFound
	KindRateLimited
	KindDatabase
)

// Error is a classified application error. Fields is populated only for
// validation errors and maps field name to a human-readable problem.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

// New creates an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches an underlying cause to a classified error.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, err: err}
}

// Validation creates a 422-class error with a field map.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: message, Fields: fields}
}

// Auth creates a 401-class error. Message must stay generic for
// credential-shaped failures so callers cannot enumerate which factor failed.
func Auth(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

// Forbidden creates a 403-class error.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// Tenant creates a 403-class error for inactive or unknown tenants.
func Tenant(code, message string) *Error {
	return &Error{Kind: KindTenant, Code: code, Message: message}
}

// NotFound creates a 404-class error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: message}
}

// RateLimited creates a 429-class error.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Code: "rate_limited", Message: "too many requests"}
}

// Database wraps a persistence failure. The message is replaced with a
// generic one at the HTTP boundary when running in production.
func Database(err error) *Error {
	return &Error{Kind: KindDatabase, Code: "database_error", Message: "database operation failed", err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: "internal server error", err: err}
}

// KindOf extracts the kind from any error. Unclassified errors are internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// AsError extracts the classified error, wrapping unclassified ones as internal.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
