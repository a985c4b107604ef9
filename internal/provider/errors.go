package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies provider failures for the retry policy.
type ErrorKind string

const (
	ErrAuth           ErrorKind = "authentication_failed"
	ErrRateLimited    ErrorKind = "rate_limited"
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrUnavailable    ErrorKind = "provider_unavailable"
	ErrUnparseable    ErrorKind = "response_unparseable"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Message string

	// RetryAfter is a server-suggested delay, zero when unknown.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the orchestrator may retry with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrUnavailable
}

// NewError builds a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Classify wraps a vendor failure in a classified Error. Vendors do not
// share an error shape, so classification keys on status codes and
// well-known phrases in the error chain; anything unrecognized is
// treated as transient, matching the bounded-retry behavior the loop
// applies to raw API errors.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, "401", "403", "unauthorized", "authentication", "invalid api key", "api key not"):
		return &Error{Kind: ErrAuth, Message: msg, cause: err}
	case containsAny(lower, "429", "rate limit", "too many requests", "quota exceeded"):
		return &Error{Kind: ErrRateLimited, Message: msg, cause: err}
	case containsAny(lower, "400", "invalid request", "invalid_request", "context length", "maximum context"):
		return &Error{Kind: ErrInvalidRequest, Message: msg, cause: err}
	case containsAny(lower, "unmarshal", "unexpected eof", "parse", "malformed"):
		return &Error{Kind: ErrUnparseable, Message: msg, cause: err}
	default:
		return &Error{Kind: ErrUnavailable, Message: msg, cause: err}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
