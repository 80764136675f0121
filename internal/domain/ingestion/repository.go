package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// EventRepository persists ingestion events
type EventRepository interface {
	Save(ctx context.Context, event Event) error
	Update(ctx context.Context, event Event) error
	// UpdateWithEvents persists the event state change and writes the domain
	// events to the outbox in the same transaction
	UpdateWithEvents(ctx context.Context, event Event, events ...shared.DomainEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (Event, error)
}

// ExecutionRepository persists executions
type ExecutionRepository interface {
	Save(ctx context.Context, execution Execution) error
	Update(ctx context.Context, execution Execution) error
	FindByID(ctx context.Context, id uuid.UUID) (Execution, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) ([]Execution, error)
}

// AcquireResult is the outcome of a CAS acquisition attempt
type AcquireResult int

const (
	// AcquireOK means this worker owns the unit for the attempt
	AcquireOK AcquireResult = iota
	// AcquireSkip means another delivery already owns or finished the unit
	AcquireSkip
	// AcquireNotDue means the unit is RETRY_SCHEDULED with a future nextAttemptAt
	AcquireNotDue
)

// SourceExecutionStateRepository is the durable CAS-guarded unit store.
// All mutating operations are compare-and-swap updates on (status, attempt);
// zero rows affected means the caller lost the race and must treat the
// delivery as a duplicate.
type SourceExecutionStateRepository interface {
	// Save inserts a NEW unit record; duplicate (request, event, source) keys
	// return shared.ErrAlreadyExists
	Save(ctx context.Context, state *SourceExecutionState) error

	// Find loads the unit by its natural key
	Find(ctx context.Context, requestID uuid.UUID, eventType source.EventType, sourceID string) (*SourceExecutionState, error)

	// Acquire CAS-moves NEW->IN_PROGRESS at attempt 1, or
	// RETRY_SCHEDULED->IN_PROGRESS at the recorded attempt once nextAttemptAt
	// has passed. Exactly one of two concurrent duplicate deliveries wins.
	Acquire(ctx context.Context, requestID uuid.UUID, eventType source.EventType, sourceID string, now time.Time) (AcquireResult, *SourceExecutionState, error)

	// ScheduleRetry CAS-moves IN_PROGRESS->RETRY_SCHEDULED guarded by the
	// previous attempt number, storing the bumped attempt and nextAttemptAt.
	// Returns false when the guard did not match (duplicate failure report).
	ScheduleRetry(ctx context.Context, state *SourceExecutionState, nextAttemptAt time.Time, errorCode, errorMessage string) (bool, error)

	// MarkCompleted CAS-moves IN_PROGRESS->COMPLETED guarded by the current attempt
	MarkCompleted(ctx context.Context, state *SourceExecutionState) (bool, error)

	// MarkFailedTerminal CAS-moves IN_PROGRESS->FAILED_TERMINAL guarded by the
	// current attempt
	MarkFailedTerminal(ctx context.Context, state *SourceExecutionState, errorCode, errorMessage string) (bool, error)
}

// AuditRepository is the append-only audit sink
type AuditRepository interface {
	Append(ctx context.Context, record *AuditRecord) error
	FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]AuditRecord, error)
	// HasSuccessfulExecution reports whether at least one successful execution
	// of the event type exists for the account/marketplace. The dependency
	// policy is its only caller.
	HasSuccessfulExecution(ctx context.Context, accountID uuid.UUID, eventType source.EventType, marketplace source.Marketplace) (bool, error)
}
