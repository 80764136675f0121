package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrDependencyNotSatisfied indicates a prerequisite event type has no
	// successful execution for the account/marketplace after bounded waits
	ErrDependencyNotSatisfied = errors.New("ingestion: dependency not satisfied")
	// ErrNoActiveMarketplace indicates the account has no active marketplace
	// to plan executions for
	ErrNoActiveMarketplace = errors.New("ingestion: account has no active marketplace")
	// ErrExecutionSkipped indicates a redelivered unit was already in flight
	// or rescheduled and the delivery was a no-op
	ErrExecutionSkipped = errors.New("ingestion: execution already acquired, delivery skipped")
	// ErrBackoffRequired signals a throttled fetch that must be rescheduled
	// rather than failed
	ErrBackoffRequired = errors.New("ingestion: backoff required")
)

// IllegalStateTransitionError is returned by transition methods when the
// current status has no edge to the requested target, or when a required
// field is missing.
type IllegalStateTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

// Error implements the error interface
func (e *IllegalStateTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("illegal %s transition %s -> %s: %s", e.Entity, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("illegal %s transition %s -> %s", e.Entity, e.From, e.To)
}

func newIllegalTransition(entity, from, to string) *IllegalStateTransitionError {
	return &IllegalStateTransitionError{Entity: entity, From: from, To: to}
}

func newIllegalTransitionReason(entity, from, to, reason string) *IllegalStateTransitionError {
	return &IllegalStateTransitionError{Entity: entity, From: from, To: to, Reason: reason}
}
