// Package errs defines the error taxonomy shared by the allocator, repairer,
// and API layers. Errors carry a Kind that maps 1:1 to an HTTP status at the
// API boundary; everything else wraps with fmt.Errorf and %w as usual.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it.
type Kind string

const (
	PermissionDenied   Kind = "permission_denied"
	InvalidArgument    Kind = "invalid_argument"
	NotFound           Kind = "not_found"
	PreconditionFailed Kind = "precondition_failed"
	Internal           Kind = "internal"
)

// Error is a kinded error. It satisfies errors.Is against another *Error of
// the same kind, so sentinel-style checks work through %w chains.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a kinded error with a formatted message.
func New(kind Kind, format string, a ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, a ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...), Err: err}
}

// KindOf returns the kind of err, or Internal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err is (or wraps) an error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
