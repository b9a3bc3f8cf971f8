package game

import (
	"errors"
	"fmt"
)

// Kind classifies every error the engine returns.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindNotRegistered      Kind = "not_registered"
	KindRuleViolation      Kind = "rule_violation"
	KindBusy               Kind = "busy"
	KindComputeUnavailable Kind = "compute_unavailable"
	KindTimedOut           Kind = "timed_out"
	KindInternal           Kind = "internal"
)

// Error is a classified engine error. Reason is short and human readable.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrNotRegistered      = &Error{Kind: KindNotRegistered}
	ErrRuleViolation      = &Error{Kind: KindRuleViolation}
	ErrBusy               = &Error{Kind: KindBusy}
	ErrComputeUnavailable = &Error{Kind: KindComputeUnavailable}
	ErrTimedOut           = &Error{Kind: KindTimedOut}
	ErrInternal           = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	switch {
	case e.Reason == "" && e.Cause == nil:
		return string(e.Kind)
	case e.Cause == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the caller may resubmit the same action. Only
// compute failures qualify; the action's effects, if any, are unknown.
func (e *Error) Retryable() bool {
	return e.Kind == KindComputeUnavailable || e.Kind == KindTimedOut
}

func newError(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a retryable engine error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
