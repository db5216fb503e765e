package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound             ErrorKind = "not_found"
	KindForbidden            ErrorKind = "forbidden"
	KindInvalidArgument      ErrorKind = "invalid_argument"
	KindInsufficientStock    ErrorKind = "insufficient_stock"
	KindUnavailable          ErrorKind = "unavailable"
	KindAlreadyPaid          ErrorKind = "already_paid"
	KindInvalidState         ErrorKind = "invalid_state"
	KindConflict             ErrorKind = "conflict"
	KindPaymentProviderError ErrorKind = "payment_provider_error"
	KindInternal             ErrorKind = "internal"
)

// Error is a business failure with a stable kind and a human readable message.
// errors.Is matches any two errors of the same kind, so callers compare against
// the Err* values below.
type Error struct {
	Kind    ErrorKind
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

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden            = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrInsufficientStock    = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrUnavailable          = &Error{Kind: KindUnavailable, Message: "product unavailable"}
	ErrAlreadyPaid          = &Error{Kind: KindAlreadyPaid, Message: "order already paid"}
	ErrInvalidState         = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrConflict             = &Error{Kind: KindConflict, Message: "conflict"}
	ErrPaymentProviderError = &Error{Kind: KindPaymentProviderError, Message: "payment provider error"}
)

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause to a new error of the given kind.
func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
