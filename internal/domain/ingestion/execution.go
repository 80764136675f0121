package ingestion

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// ExecutionStatus represents the status of one source attempt within an event
type ExecutionStatus string

const (
	ExecutionStatusPending       ExecutionStatus = "PENDING"
	ExecutionStatusRunning       ExecutionStatus = "RUNNING"
	ExecutionStatusWaitingRetry  ExecutionStatus = "WAITING_RETRY"
	ExecutionStatusMaterializing ExecutionStatus = "MATERIALIZING"
	ExecutionStatusCompleted     ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed        ExecutionStatus = "FAILED"
)

// IsValid checks if the status is a valid ExecutionStatus
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusWaitingRetry,
		ExecutionStatusMaterializing, ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of ExecutionStatus
func (s ExecutionStatus) String() string {
	return string(s)
}

// IsTerminal returns true when no further attempt will run.
// FAILED is terminal for aggregation purposes; FAILED -> WAITING_RETRY exists
// only for units that still have attempts left, which the worker decides
// before reporting the terminal outcome.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// CanTransitionTo checks the explicit transition table
func (s ExecutionStatus) CanTransitionTo(target ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return target == ExecutionStatusRunning
	case ExecutionStatusRunning:
		return target == ExecutionStatusMaterializing || target == ExecutionStatusCompleted ||
			target == ExecutionStatusFailed || target == ExecutionStatusWaitingRetry
	case ExecutionStatusWaitingRetry:
		return target == ExecutionStatusRunning
	case ExecutionStatusMaterializing:
		return target == ExecutionStatusCompleted || target == ExecutionStatusFailed
	case ExecutionStatusFailed:
		return target == ExecutionStatusWaitingRetry
	case ExecutionStatusCompleted:
		return false // Terminal state
	}
	return false
}

// ExecutionOutcome is the terminal verdict of a single execution
type ExecutionOutcome string

const (
	ExecutionOutcomeSuccess ExecutionOutcome = "SUCCESS"
	ExecutionOutcomeNoData  ExecutionOutcome = "NO_DATA"
	ExecutionOutcomeFailed  ExecutionOutcome = "FAILED"
	// ExecutionOutcomeSkipped marks a redelivered duplicate that performed no work
	ExecutionOutcomeSkipped ExecutionOutcome = "SKIPPED"
)

// String returns the string representation of ExecutionOutcome
func (o ExecutionOutcome) String() string {
	return string(o)
}

// Execution is one attempt of one (event, marketplace, source) unit of work.
// Like Event, executions are immutable values; the worker that owns one
// persists each transition result. Attempt starts at 1 and increments only on
// ScheduleRetry.
type Execution struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	Marketplace  source.Marketplace
	SourceID     string
	OrderIndex   int
	Status       ExecutionStatus
	Attempt      int
	ScheduledFor time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewExecution creates a PENDING execution for one unit of work
func NewExecution(eventID uuid.UUID, marketplace source.Marketplace, sourceID string, orderIndex int, now time.Time) (Execution, error) {
	if eventID == uuid.Nil {
		return Execution{}, newIllegalTransitionReason("execution", "", string(ExecutionStatusPending), "event id is required")
	}
	if sourceID == "" {
		return Execution{}, newIllegalTransitionReason("execution", "", string(ExecutionStatusPending), "source id is required")
	}
	return Execution{
		ID:           uuid.New(),
		EventID:      eventID,
		Marketplace:  marketplace,
		SourceID:     sourceID,
		OrderIndex:   orderIndex,
		Status:       ExecutionStatusPending,
		Attempt:      1,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (x Execution) transition(target ExecutionStatus, now time.Time) (Execution, error) {
	if x.ID == uuid.Nil {
		return Execution{}, newIllegalTransitionReason("execution", string(x.Status), string(target), "execution id is required")
	}
	if x.CreatedAt.IsZero() {
		return Execution{}, newIllegalTransitionReason("execution", string(x.Status), string(target), "created timestamp is required")
	}
	if !x.Status.CanTransitionTo(target) {
		return Execution{}, newIllegalTransition("execution", string(x.Status), string(target))
	}
	next := x
	next.Status = target
	next.UpdatedAt = now
	return next, nil
}

// Start moves the execution into RUNNING
func (x Execution) Start(now time.Time) (Execution, error) {
	return x.transition(ExecutionStatusRunning, now)
}

// BeginMaterialization moves the execution into MATERIALIZING
func (x Execution) BeginMaterialization(now time.Time) (Execution, error) {
	return x.transition(ExecutionStatusMaterializing, now)
}

// Complete moves the execution into COMPLETED
func (x Execution) Complete(now time.Time) (Execution, error) {
	return x.transition(ExecutionStatusCompleted, now)
}

// Fail moves the execution into FAILED
func (x Execution) Fail(now time.Time) (Execution, error) {
	return x.transition(ExecutionStatusFailed, now)
}

// ScheduleRetry moves the execution into WAITING_RETRY, increments the attempt
// counter and advances ScheduledFor by delay. Requires delay > 0.
func (x Execution) ScheduleRetry(delay time.Duration, now time.Time) (Execution, error) {
	if delay <= 0 {
		return Execution{}, newIllegalTransitionReason("execution", string(x.Status), string(ExecutionStatusWaitingRetry), "retry delay must be positive")
	}
	next, err := x.transition(ExecutionStatusWaitingRetry, now)
	if err != nil {
		return Execution{}, err
	}
	next.Attempt = x.Attempt + 1
	next.ScheduledFor = now.Add(delay)
	return next, nil
}

// Resume moves a WAITING_RETRY execution back into RUNNING
func (x Execution) Resume(now time.Time) (Execution, error) {
	return x.transition(ExecutionStatusRunning, now)
}
