package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts for a network or
	// application error are used up. The page is lost; the caller decides
	// what that means for the cell.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrRateLimitExhausted is returned when the provider kept reporting
	// over-quota after every rate-limit retry. It is recoverable at cell
	// level: the cell is treated as saturated rather than failed.
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a
	// request or a back-off sleep.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidQuery is returned for queries that can never succeed.
	ErrInvalidQuery = errors.New("invalid query")
)

// ProviderError is a failed response from the search provider.
type ProviderError struct {
	Class      ErrorClass
	HTTPStatus int
	InfoCode   string
	Info       string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s error (http %d", e.Class, e.HTTPStatus)
	if e.InfoCode != "" {
		msg += ", infocode " + e.InfoCode
	}
	msg += ")"
	if e.Info != "" {
		msg += ": " + e.Info
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimitExhausted reports whether err means the cell hit the quota
// ceiling rather than failing.
func IsRateLimitExhausted(err error) bool {
	return errors.Is(err, ErrRateLimitExhausted)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassNetwork, ErrorClassRateLimit, ErrorClassApplication:
		return true
	default:
		// client errors will fail the same way again, and
		// no-more-pages is not an error at all
		return false
	}
}
