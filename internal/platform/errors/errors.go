// Package errors defines the platform-wide error taxonomy every
// component raises and the task queue consults to decide whether to
// retry, dead-letter, or reject a task outright.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind categorizes the failure so callers can make a retry decision
// without inspecting error strings.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindTransient
	KindCapacity
	KindDataGovernance
	KindPermanent
)

// String returns a human-readable description of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation error"
	case KindAuthentication:
		return "authentication error"
	case KindTransient:
		return "transient error"
	case KindCapacity:
		return "capacity exceeded"
	case KindDataGovernance:
		return "data governance violation"
	case KindPermanent:
		return "permanent error"
	default:
		return "unknown error"
	}
}

// Retryable reports whether an error of this kind should be retried by
// the task queue. Validation, authentication, data-governance, and
// permanent errors are never retried; transient and capacity errors are.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransient, KindCapacity:
		return true
	default:
		return false
	}
}

// Error is the concrete error type every component returns, carrying
// enough context for logging, metrics, and the queue's retry decision.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is comparisons keyed on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the task queue should retry the operation
// that produced this error.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// New constructs a typed error for the given kind.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap constructs a typed error carrying an underlying cause.
func Wrap(kind Kind, component, message string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Cause: cause}
}

// ShouldRetry mirrors the task queue's retry predicate: typed platform
// errors defer to their Kind; everything else is treated as permanent,
// since only recognized transient/capacity conditions warrant a retry.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
