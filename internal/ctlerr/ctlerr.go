// Package ctlerr classifies control-pipeline errors into the four kinds the
// rest of the core branches on: Transient and Permanent cover ordinary I/O
// failures (see internal/resilience for the retry side of that), while
// Safety and Partial name outcomes internal/resilience has no vocabulary
// for — a control decision that must not proceed because a safety interlock
// fired, and a multi-step operation that succeeded in part.
package ctlerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a control-pipeline operation did not fully succeed.
type Kind string

const (
	// Transient means the caller should retry: a network blip, a 5xx from
	// a backing store, a timeout.
	Transient Kind = "transient"

	// Permanent means retrying will not help: a 4xx validation error, a
	// malformed command, an equipment type with no registered control
	// function.
	Permanent Kind = "permanent"

	// Safety means a safety interlock blocked the operation outright
	// (e.g. a freezestat trip) — distinct from Permanent because the
	// condition can clear on its own and a later retry may succeed.
	Safety Kind = "safety"

	// Partial means a multi-step operation completed some steps and
	// failed others (e.g. one of two command sinks rejected a write).
	Partial Kind = "partial"
)

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given Kind. A nil err is allowed, producing an
// Error whose message is just the Kind (used for Safety/Partial outcomes
// that aren't themselves backed by a Go error, e.g. a blocked decision).
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is a *Error, and ok=false otherwise.
func KindOf(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
