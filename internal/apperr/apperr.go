// Package apperr defines the error taxonomy shared by the service layer and
// the HTTP handlers. Expected lifecycle rejections (expired request, closed
// chat window, full room) are ordinary errors of a known kind, never panics.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind int

const (
	// NotFound: the referenced record does not exist.
	NotFound Kind = iota + 1
	// Forbidden: the actor is not allowed to perform the operation.
	Forbidden
	// Conflict: the record already exists or the operation collides with one.
	Conflict
	// InvalidState: the operation is not valid in the record's current
	// lifecycle state (expired request, closed chat window, ended room).
	InvalidState
	// Capacity: a room is full.
	Capacity
	// InvalidInput: malformed or out-of-range payload.
	InvalidInput
	// Unavailable: the store failed before any mutation could be applied;
	// safe for the caller to retry.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	case InvalidState:
		return "invalid_state"
	case Capacity:
		return "capacity"
	case InvalidInput:
		return "invalid_input"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Error is a kinded error with optional metadata surfaced to the caller.
type Error struct {
	Kind Kind
	Msg  string
	Meta map[string]any
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a new Error of the given kind.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf builds a new Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithMeta attaches a metadata entry and returns the error for chaining.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[key] = value
	return e
}

// KindOf extracts the Kind from err, or 0 when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MetaOf returns the metadata map from err, if any.
func MetaOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Meta
	}
	return nil
}
