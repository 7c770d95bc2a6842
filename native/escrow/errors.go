package escrow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed operation.
type ErrorKind uint8

const (
	KindGeneric ErrorKind = iota
	KindUnauthorized
	KindNotFound
	KindInvalidState
	KindValidation
	KindOverflow
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindInvalidState:
		return "invalid state"
	case KindValidation:
		return "validation error"
	case KindOverflow:
		return "arithmetic overflow"
	default:
		return "generic error"
	}
}

// Error is the structured failure returned by every escrow operation. Any
// error aborts the whole invocation.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return "escrow: " + e.Kind.String()
	}
	return fmt.Sprintf("escrow: %s: %s", e.Kind, e.Reason)
}

// Is matches sentinel errors of the same kind, e.g. errors.Is(err,
// ErrUnauthorized).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrOverflow     = &Error{Kind: KindOverflow}
	ErrGeneric      = &Error{Kind: KindGeneric}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

func notFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func invalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

func invalid(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// wrapGeneric converts storage and codec failures into Generic errors while
// passing escrow errors through untouched.
func wrapGeneric(err error, context string) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: KindGeneric, Reason: fmt.Sprintf("%s: %v", context, err)}
}

// KindOf reports the kind of err. Errors that did not originate in this
// package are Generic.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindGeneric
}
