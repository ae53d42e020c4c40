package service

import (
	"errors"
	"fmt"

	"examhall/internal/validation"
)

// Kind classifies a service failure
type Kind string

const (
	KindAuthRequired Kind = "AuthRequired"
	KindForbidden    Kind = "Forbidden"
	KindNotFound     Kind = "NotFound"
	KindInvalidState Kind = "InvalidState"
	KindSessionFull  Kind = "SessionFull"
	KindConflict     Kind = "Conflict"
	KindValidation   Kind = "ValidationError"
	KindRateLimited  Kind = "RateLimited"
	KindInternal     Kind = "InternalError"
)

// Error is the failure returned by every coordinator operation
type Error struct {
	Kind    Kind
	Message string
	Fields  []validation.FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry without changing intent
func (e *Error) Retryable() bool {
	return e.Kind == KindInternal
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrAuthRequired is returned when no caller identity is present
var ErrAuthRequired = &Error{Kind: KindAuthRequired, Message: "authentication required"}

func errNotFound(what string) *Error {
	return newError(KindNotFound, "%s not found", what)
}

func errInvalidState(format string, args ...interface{}) *Error {
	return newError(KindInvalidState, format, args...)
}

func errForbidden(format string, args ...interface{}) *Error {
	return newError(KindForbidden, format, args...)
}

// errInternal wraps a storage or transport failure
func errInternal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// errValidation converts collected field errors
func errValidation(errs validation.Errors) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: errs}
}

// KindOf returns the Kind of err, InternalError for unclassified errors and
// "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	var ve validation.Errors
	if errors.As(err, &ve) {
		return KindValidation
	}
	return KindInternal
}

// AsError converts any error into a *Error
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var ve validation.Errors
	if errors.As(err, &ve) {
		return errValidation(ve)
	}
	return errInternal("internal error", err)
}
