// Package retry classifies delivery failures and runs best-effort side
// effects under a bounded backoff policy.
package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// RecoverableError lets an error declare whether another attempt may succeed.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// transientPatterns are message fragments from downstream systems (ATS
// record endpoints, NATS connections) that indicate a retry may succeed.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"no responders",
	"timeout",
	"temporary failure",
	"rate limit",
	"too many requests",
	"service unavailable",
	"internal server error",
	"bad gateway",
	"gateway timeout",
}

// IsRecoverable reports whether err is worth retrying. Errors implementing
// RecoverableError decide for themselves; everything else is classified by
// type and message.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var recoverable RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.IsRecoverable()
	}
	return classify(err)
}

func classify(err error) bool {
	// Deadlines suggest a slow downstream; cancellation is deliberate.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) && (netErr.Temporary() || netErr.Timeout()) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return classify(urlErr.Err)
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

type taggedError struct {
	err         error
	recoverable bool
}

func (e *taggedError) Error() string { return e.err.Error() }

func (e *taggedError) IsRecoverable() bool { return e.recoverable }

func (e *taggedError) Unwrap() error { return e.err }

// NewRecoverableError marks err as retryable regardless of its content.
func NewRecoverableError(err error) RecoverableError {
	return &taggedError{err: err, recoverable: true}
}

// NewNonRecoverableError marks err as permanent so Do fails fast.
func NewNonRecoverableError(err error) RecoverableError {
	return &taggedError{err: err, recoverable: false}
}
