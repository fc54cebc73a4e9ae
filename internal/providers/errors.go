package providers

import "fmt"

// ConfigurationError signals missing or malformed credentials or
// bucket/container names. Never retried.
type ConfigurationError struct {
	Provider string
	Cause    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %v", e.Provider, e.Cause)
}
func (e *ConfigurationError) Unwrap() error { return e.Cause }

// AuthError signals credentials that were accepted at configuration
// time but rejected by the provider (401/403).
type AuthError struct {
	Provider string
	Cause    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Cause)
}
func (e *AuthError) Unwrap() error { return e.Cause }

// NotFoundError signals a 404 on a specific object. It is not a sync
// error on list (an empty listing is a normal, valid result).
type NotFoundError struct {
	Provider string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found: %s", e.Provider, e.Name)
}

// RateLimitedError signals 429/503; always retried.
type RateLimitedError struct {
	Provider string
	Cause    error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited: %v", e.Provider, e.Cause)
}
func (e *RateLimitedError) Unwrap() error { return e.Cause }

// ConnectivityError signals DNS/TCP/TLS failure. Retried per §4.5,
// surfaced after the retry budget is exhausted.
type ConnectivityError struct {
	Provider string
	Cause    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: connectivity error: %v", e.Provider, e.Cause)
}
func (e *ConnectivityError) Unwrap() error { return e.Cause }

// WireError signals an unexpected HTTP status or body shape; the
// provider's XML <Code>/<Message> is carried in Detail when present.
type WireError struct {
	Provider   string
	StatusCode int
	Code       string
	Detail     string
}

func (e *WireError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: wire error %d: %s: %s", e.Provider, e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: wire error %d: %s", e.Provider, e.StatusCode, e.Detail)
}

// CancelledError signals user-initiated cancellation. Terminal; never
// wrapped further, and the Cache is never committed when it surfaces.
type CancelledError struct {
	Provider string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s: sync cancelled", e.Provider)
}

// MergeError signals non-text content on either diverging side of a
// DIFF_MERGE scenario; merger.Merge has already fallen back to
// last-writer-wins when it returns one, and the Executor logs it.
type MergeError struct {
	Name  string
	Cause error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed for %s: %v", e.Name, e.Cause)
}
func (e *MergeError) Unwrap() error { return e.Cause }

// Retryable reports whether err belongs to a class of failure the
// RetryPolicy should retry: connectivity failures, rate limiting, and
// 5xx-shaped wire errors. 4xx wire errors (other than a 301/307
// region redirect, handled one level up) are not retried.
func Retryable(err error) bool {
	switch e := err.(type) {
	case *ConnectivityError, *RateLimitedError:
		return true
	case *WireError:
		return e.StatusCode >= 500 || e.StatusCode == 301 || e.StatusCode == 307
	default:
		return false
	}
}
