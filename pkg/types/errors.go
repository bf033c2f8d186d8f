package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors surfaced by the core so callers can decide
// whether to retry, back off, or fail the owning saga.
type ErrorKind string

const (
	KindSchemaError       ErrorKind = "schema_error"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindQueueFull         ErrorKind = "queue_full"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindCancelled         ErrorKind = "cancelled"
	KindPolicyViolation   ErrorKind = "policy_violation"
	KindInternal          ErrorKind = "internal"
)

// Error is the error type surfaced at component boundaries. It carries the
// kind, a one-line reason, and the correlation id when the failure is
// saga-scoped.
type Error struct {
	Kind          ErrorKind
	Op            string
	Reason        string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Reason)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes two core errors match when their kinds match, so callers can use
// errors.Is(err, &Error{Kind: KindConflict}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// E builds a core error.
func E(kind ErrorKind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap builds a core error around an underlying cause.
func Wrap(kind ErrorKind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// KindOf extracts the kind from err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retriable reports whether the caller may retry the failed operation under
// a fresh read or after backing off.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindTimeout, KindRateLimited, KindQueueFull, KindResourceExhausted:
		return true
	}
	return false
}
