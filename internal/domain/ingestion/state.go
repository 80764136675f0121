package ingestion

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// UnitStatus is the durable status of one (request, event type, source) unit
type UnitStatus string

const (
	UnitStatusNew            UnitStatus = "NEW"
	UnitStatusInProgress     UnitStatus = "IN_PROGRESS"
	UnitStatusRetryScheduled UnitStatus = "RETRY_SCHEDULED"
	UnitStatusCompleted      UnitStatus = "COMPLETED"
	UnitStatusFailedTerminal UnitStatus = "FAILED_TERMINAL"
)

// IsValid checks if the status is a valid UnitStatus
func (s UnitStatus) IsValid() bool {
	switch s {
	case UnitStatusNew, UnitStatusInProgress, UnitStatusRetryScheduled,
		UnitStatusCompleted, UnitStatusFailedTerminal:
		return true
	}
	return false
}

// String returns the string representation of UnitStatus
func (s UnitStatus) String() string {
	return string(s)
}

// SourceExecutionState is the durable, queryable record of one unit of work
// keyed by (request id, event type, source id). It exists to guard
// at-most-one-active-attempt semantics under at-least-once delivery:
// acquisition and retry scheduling are compare-and-swap updates on
// (status, attempt) at the storage layer.
type SourceExecutionState struct {
	ID               uuid.UUID
	RequestID        uuid.UUID
	AccountID        uuid.UUID
	EventType        source.EventType
	Marketplace      source.Marketplace
	SourceID         string
	Status           UnitStatus
	Attempt          int
	MaxAttempts      int
	NextAttemptAt    *time.Time
	LastErrorCode    string
	LastErrorMessage string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSourceExecutionState creates a NEW unit record for first-time processing
func NewSourceExecutionState(requestID, accountID uuid.UUID, eventType source.EventType, marketplace source.Marketplace, sourceID string, maxAttempts int, now time.Time) *SourceExecutionState {
	return &SourceExecutionState{
		ID:          uuid.New(),
		RequestID:   requestID,
		AccountID:   accountID,
		EventType:   eventType,
		Marketplace: marketplace,
		SourceID:    sourceID,
		Status:      UnitStatusNew,
		Attempt:     1,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AttemptsExhausted reports whether scheduling another attempt would exceed
// the configured maximum
func (s *SourceExecutionState) AttemptsExhausted() bool {
	return s.Attempt+1 > s.MaxAttempts
}
