// Package clinicalerrors defines the closed error taxonomy shared by every
// component of the query-processing pipeline (spec §7).
package clinicalerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories the public API and the
// component contracts distinguish. Never add a string-typed error outside
// this set — callers switch on Kind, not on message text.
type Kind string

const (
	Invalid         Kind = "Invalid"
	NotFound        Kind = "NotFound"
	Unauthorized    Kind = "Unauthorized"
	PolicyViolation Kind = "PolicyViolation"
	Conflict        Kind = "Conflict"
	RateLimited     Kind = "RateLimited"
	QueueFull       Kind = "QueueFull"
	Upstream        Kind = "Upstream"
	Timeout         Kind = "Timeout"
	Fatal           Kind = "Fatal"
	Unavailable     Kind = "Unavailable"
)

// Error is the concrete error type carrying a Kind plus an optional
// wrapped cause. It satisfies the standard errors.Is/As protocol.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given Kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
