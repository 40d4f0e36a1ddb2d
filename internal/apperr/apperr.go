// Package apperr carries the error kinds the service operations report to
// their callers. Each kind maps onto one response class at the transport edge.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindNotFound
	KindInvalidArgument
	KindInvalidState
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindForbidden:
		return "forbidden"
	default:
		return "unexpected"
	}
}

// Error is a classified failure. Message is safe to show to the caller; Err
// is the underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func NotFound(cause error, format string, args ...any) *Error {
	return newf(KindNotFound, cause, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return newf(KindInvalidArgument, nil, format, args...)
}

func InvalidState(cause error, format string, args ...any) *Error {
	return newf(KindInvalidState, cause, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, nil, format, args...)
}

func Unexpected(cause error, format string, args ...any) *Error {
	return newf(KindUnexpected, cause, format, args...)
}

// Ensure returns err unchanged when it already carries a kind and wraps it as
// Unexpected otherwise.
func Ensure(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return Unexpected(err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnexpected when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// PublicMessage returns the text a caller may see. Unexpected failures never
// leak their cause.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindUnexpected {
		return appErr.Message
	}
	return "internal server error"
}
