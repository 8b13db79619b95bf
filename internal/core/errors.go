package core

import "errors"

// Request outcome kinds. The client joins one of these onto the concrete
// error it returns; callers branch with errors.Is and decide retry policy
// themselves (the client never retries).
var (
	// ErrTransport covers network-level failures: timeout, DNS, refused
	// connection. Always retryable with backoff.
	ErrTransport = errors.New("transport failure")
	// ErrEmptyResponse marks a 2xx response with a zero-byte body. Some
	// endpoints return these through regional WAF intermediaries; it is a
	// recoverable anomaly, distinct from an auth failure.
	ErrEmptyResponse = errors.New("empty response body")
	// ErrDecode marks a 2xx response whose body is not valid JSON.
	ErrDecode = errors.New("response decode failed")
	// ErrUnauthorized maps HTTP 401. Never retried automatically.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden maps HTTP 403, commonly a key missing the trading
	// permission. Never retried automatically.
	ErrForbidden = errors.New("forbidden")
)

// Exchange-level order errors, matched from the error envelope inside
// response bodies.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateOrder      = errors.New("duplicate order")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderRejected       = errors.New("order rejected")
	ErrOrderExpired        = errors.New("order expired")
)

// Retryable reports whether err is a transient condition the caller may
// retry with backoff. Auth failures are excluded deliberately: retrying a
// bad key only spins.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) {
		return false
	}
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrEmptyResponse) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrOrderNotFound)
}
