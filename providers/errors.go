// ABOUTME: Error taxonomy for provider adapters and the token refresher
// ABOUTME: Classifies HTTP and network failures into retryable and terminal kinds
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a provider failure. Adapters never leak provider HTTP
// details past this taxonomy.
type Kind string

const (
	// KindAuthExpired means the access token was rejected. The caller
	// should refresh once and retry once, not indefinitely.
	KindAuthExpired Kind = "auth_expired"

	// KindNeedsReconnect means the refresh token itself is invalid or
	// absent. Only re-running the authorization flow recovers.
	KindNeedsReconnect Kind = "needs_reconnect"

	// KindRateLimited is a provider 429; retry with backoff.
	KindRateLimited Kind = "rate_limited"

	// KindSchemaMismatch is an unexpected or missing field in a provider
	// response. The offending record is skipped; the run continues.
	KindSchemaMismatch Kind = "schema_mismatch"

	// KindPartialFailure is a failed secondary enrichment call. Degrade,
	// do not fail the run.
	KindPartialFailure Kind = "partial_failure"

	// KindTransientNetwork is a timeout or connection failure; retry with
	// backoff.
	KindTransientNetwork Kind = "transient_network"

	// KindFatal is a programming or configuration error. Aborts the run.
	KindFatal Kind = "fatal"
)

// Error wraps a provider failure with its classification.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified provider error.
func NewError(kind Kind, provider, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors report KindFatal: an unknown failure must not be retried blindly.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindFatal
}

// IsAuthExpired reports whether err means the access token was rejected.
func IsAuthExpired(err error) bool {
	return KindOf(err) == KindAuthExpired
}

// IsNeedsReconnect reports whether err requires a new authorization flow.
func IsNeedsReconnect(err error) bool {
	return KindOf(err) == KindNeedsReconnect
}

// Retryable reports whether an error kind is eligible for bounded retry.
func Retryable(kind Kind) bool {
	return kind == KindTransientNetwork || kind == KindRateLimited
}

// ClassifyStatus maps an HTTP status from a provider data endpoint to an
// error kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthExpired
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindTransientNetwork
	default:
		return KindFatal
	}
}

// ClassifyTransport maps a transport-level failure to an error kind.
// Timeouts, resets, and cancellation are all transient, never auth.
func ClassifyTransport(err error) Kind {
	var netErr net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return KindTransientNetwork
	}
	// Anything else the transport surfaces (DNS, TLS, broken pipe) is
	// also worth one more attempt.
	return KindTransientNetwork
}
