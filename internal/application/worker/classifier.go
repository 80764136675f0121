package worker

import (
	"context"
	"errors"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/resilience"
)

// ErrorClass groups fetch failures by how the worker must react
type ErrorClass int

const (
	// ClassRetryable failures get an exponential backoff retry
	ClassRetryable ErrorClass = iota
	// ClassThrottled failures get a Retry-After driven retry
	ClassThrottled
	// ClassTerminal failures exhaust the unit immediately
	ClassTerminal
)

// Classify maps a fetch or persistence error to its class and a stable error
// code recorded on the unit state.
func Classify(err error) (ErrorClass, string) {
	switch {
	case errors.Is(err, source.ErrSourceRateLimited):
		return ClassThrottled, "RATE_LIMITED"
	case errors.Is(err, resilience.ErrRateLimitWait):
		return ClassThrottled, "RATE_LIMIT_WAIT"
	case errors.Is(err, resilience.ErrBulkheadFull):
		return ClassRetryable, "BULKHEAD_FULL"
	case errors.Is(err, source.ErrSourceUnavailable):
		return ClassRetryable, "SOURCE_UNAVAILABLE"
	case errors.Is(err, source.ErrSourceInvalidResponse):
		return ClassTerminal, "INVALID_RESPONSE"
	case errors.Is(err, source.ErrNoSourcesForEvent):
		return ClassTerminal, "NO_SOURCE"
	case errors.Is(err, ingestion.ErrDependencyNotSatisfied):
		// the dependency policy already exhausted its bounded in-process
		// waits, re-queueing would only stretch the same miss
		return ClassTerminal, "DEPENDENCY_NOT_SATISFIED"
	case errors.Is(err, context.DeadlineExceeded):
		return ClassRetryable, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return ClassRetryable, "CANCELLED"
	default:
		return ClassRetryable, "INGEST_FAILED"
	}
}
