// Package apperr defines the caller-facing error taxonomy shared by the
// application services and the HTTP adapter.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindConflict        Kind = "CONFLICT"
	KindAuthorization   Kind = "AUTHORIZATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindExternalService Kind = "EXTERNAL_SERVICE"
	KindInternal        Kind = "INTERNAL"
)

// Error is a classified application error
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	default:
		return e.Msg
	}
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Validation reports malformed input
func Validation(op, msg string) error {
	return newError(KindValidation, op, msg, nil)
}

// ValidationWrap reports malformed input caused by err
func ValidationWrap(op, msg string, err error) error {
	return newError(KindValidation, op, msg, err)
}

// Conflict reports an operation that is invalid for the current state
func Conflict(op, msg string) error {
	return newError(KindConflict, op, msg, nil)
}

// ConflictWrap reports a state conflict caused by err
func ConflictWrap(op, msg string, err error) error {
	return newError(KindConflict, op, msg, err)
}

// Forbidden reports an authorization failure
func Forbidden(op, msg string) error {
	return newError(KindAuthorization, op, msg, nil)
}

// NotFound reports a missing entity
func NotFound(op, msg string) error {
	return newError(KindNotFound, op, msg, nil)
}

// External reports a failure in an external collaborator
func External(op, msg string, err error) error {
	return newError(KindExternalService, op, msg, err)
}

// Internal reports an unexpected failure, usually from persistence
func Internal(op, msg string, err error) error {
	return newError(KindInternal, op, msg, err)
}
