// Package apperr declares the error taxonomy tool handlers and transport
// code classify failures into (spec §7). The set is fixed and closed, so
// these are plain typed errors rather than an accumulation/aggregation
// mechanism — see internal/orchestrator for where concurrent errors from
// independent goroutines are actually aggregated (multierr).
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream_failure"
	KindTimeout    Kind = "timeout"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// Error is a classified failure carrying its kind and an operator message.
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

// Retryable reports whether the transport/scheduler may retry the call that
// produced this error. Per spec §7 only UpstreamFailure and Timeout are
// advertised as retryable.
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstream || e.Kind == KindTimeout
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Upstream(cause error, format string, args ...any) *Error {
	return Wrap(KindUpstream, fmt.Sprintf(format, args...), cause)
}

func Timeout(format string, args ...any) *Error {
	return New(KindTimeout, fmt.Sprintf(format, args...))
}

func Cancelled(format string, args ...any) *Error {
	return New(KindCancelled, fmt.Sprintf(format, args...))
}

func Internal(cause error, format string, args ...any) *Error {
	return Wrap(KindInternal, fmt.Sprintf(format, args...), cause)
}

// Classify extracts a *Error from err, wrapping unknown errors as KindInternal.
// context.DeadlineExceeded and context.Canceled surface from actor/LLM
// calls as bare context errors rather than through apperr, so they get a
// dedicated mapping instead of falling through to KindInternal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout("timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled("request cancelled")
	}
	return Internal(err, "unclassified error")
}

// As re-exports errors.As for callers that only import apperr.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
