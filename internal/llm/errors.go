package llm

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind categorizes a dispatch failure for the caller's final panel.
type Kind string

const (
	KindAuthMissing   Kind = "authentication_missing"
	KindAuthExpired   Kind = "authentication_expired"
	KindRateLimited   Kind = "rate_limited"
	KindUnreachable   Kind = "provider_unreachable"
	KindProtocol      Kind = "protocol_error"
	KindRequestFailed Kind = "request_failed"
	KindAborted       Kind = "aborted"
)

// RequestError is the terminal error a dispatch surfaces after retry,
// rotation, and fallback are exhausted.
type RequestError struct {
	Kind    Kind
	Message string
	Details string
}

func (e *RequestError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// statusError is a transport-level failure tagged with its HTTP status
// so the retry loop can dispatch on it.
type statusError struct {
	Code       int
	RetryAfter string
	Body       string
}

func (e *statusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// retryAfter parses the Retry-After header, defaulting to 60s.
func (e *statusError) retryAfter() time.Duration {
	if e.RetryAfter != "" {
		if secs, err := strconv.ParseFloat(e.RetryAfter, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 60 * time.Second
}

// connectError marks a network-level failure before any HTTP status
// arrived. Endpoint loops skip past these without recording them.
type connectError struct {
	err error
}

func (e *connectError) Error() string { return e.err.Error() }
func (e *connectError) Unwrap() error { return e.err }

// statusOf extracts the HTTP status from an error chain, or 0.
func statusOf(err error) int {
	if se, ok := err.(*statusError); ok {
		return se.Code
	}
	return 0
}

// shouldRetry reports whether an error is worth another attempt:
// anything without a status, plus timeouts, conflicts, rate limits,
// and server errors. Errors already classified as terminal are not
// retried.
func shouldRetry(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return false
	}
	code := statusOf(err)
	if code == 0 {
		return true
	}
	switch code {
	case 408, 409, 429:
		return true
	}
	return code >= 500
}
