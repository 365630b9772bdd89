package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. Business-rule kinds are
// routine outcomes and are not retryable without a changed request;
// KindInfrastructure marks a collaborator failure the caller may
// retry.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindSessionClosed    Kind = "session_closed"
	KindExpiredTicket    Kind = "expired_ticket"
	KindInvalidTicket    Kind = "invalid_ticket"
	KindInfrastructure   Kind = "infrastructure"
)

// Error is the single error type returned across component
// boundaries: a stable kind plus a human message, optionally wrapping
// a lower-level cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool {
	return e.Kind == KindInfrastructure
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func CapacityExceeded(format string, args ...interface{}) *Error {
	return New(KindCapacityExceeded, format, args...)
}

func SessionClosed(format string, args ...interface{}) *Error {
	return New(KindSessionClosed, format, args...)
}

func ExpiredTicket(format string, args ...interface{}) *Error {
	return New(KindExpiredTicket, format, args...)
}

func InvalidTicket(format string, args ...interface{}) *Error {
	return New(KindInvalidTicket, format, args...)
}

// Infrastructure wraps a collaborator failure (database, redis,
// clock) so callers can tell it apart from business-rule rejections.
func Infrastructure(err error, format string, args ...interface{}) *Error {
	return Wrap(KindInfrastructure, err, format, args...)
}

// KindOf extracts the kind of err, or KindInfrastructure when err is
// not an *Error (unclassified failures are treated as retryable
// collaborator faults).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
