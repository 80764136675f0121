package resilience

import (
	"errors"
	"time"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// ThrottledError carries the marketplace-supplied Retry-After delay alongside
// the rate-limited sentinel, so the worker can honor the server's pacing when
// it schedules the retry.
type ThrottledError struct {
	RetryAfter time.Duration
}

// NewThrottledError creates a throttle error with the given retry delay
func NewThrottledError(retryAfter time.Duration) *ThrottledError {
	return &ThrottledError{RetryAfter: retryAfter}
}

// Error implements the error interface
func (e *ThrottledError) Error() string {
	return source.ErrSourceRateLimited.Error()
}

// Unwrap lets errors.Is match source.ErrSourceRateLimited
func (e *ThrottledError) Unwrap() error {
	return source.ErrSourceRateLimited
}

// RetryAfterOf extracts the Retry-After delay from a throttle error chain,
// falling back when the error carries none.
func RetryAfterOf(err error, fallback time.Duration) time.Duration {
	var throttled *ThrottledError
	if errors.As(err, &throttled) && throttled.RetryAfter > 0 {
		return throttled.RetryAfter
	}
	return fallback
}
