package ingestion

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// EventStatus represents the lifecycle status of an ingestion event
type EventStatus string

const (
	EventStatusReceived               EventStatus = "RECEIVED"
	EventStatusInProgress             EventStatus = "IN_PROGRESS"
	EventStatusMaterializationPending EventStatus = "MATERIALIZATION_PENDING"
	EventStatusCompleted              EventStatus = "COMPLETED"
	EventStatusFailed                 EventStatus = "FAILED"
	EventStatusCancelled              EventStatus = "CANCELLED"
)

// IsValid checks if the status is a valid EventStatus
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusReceived, EventStatusInProgress, EventStatusMaterializationPending,
		EventStatusCompleted, EventStatusFailed, EventStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of EventStatus
func (s EventStatus) String() string {
	return string(s)
}

// IsTerminal returns true for statuses with no outgoing edges
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusCompleted || s == EventStatusCancelled
}

// CanTransitionTo checks if the status can transition to the target status
func (s EventStatus) CanTransitionTo(target EventStatus) bool {
	switch s {
	case EventStatusReceived:
		return target == EventStatusInProgress || target == EventStatusFailed || target == EventStatusCancelled
	case EventStatusInProgress:
		return target == EventStatusMaterializationPending || target == EventStatusCompleted ||
			target == EventStatusFailed || target == EventStatusCancelled
	case EventStatusMaterializationPending:
		return target == EventStatusCompleted || target == EventStatusFailed || target == EventStatusCancelled
	case EventStatusFailed:
		return target == EventStatusCancelled
	case EventStatusCompleted, EventStatusCancelled:
		return false // Terminal states
	}
	return false
}

// EventOutcome is the aggregate verdict over all executions of an event.
// It is stamped when the event reaches an all-terminal state; the lifecycle
// status enum has no PARTIAL_SUCCESS/NO_DATA members, so the verdict lives
// alongside the terminal status.
type EventOutcome string

const (
	EventOutcomeSuccess        EventOutcome = "SUCCESS"
	EventOutcomePartialSuccess EventOutcome = "PARTIAL_SUCCESS"
	EventOutcomeNoData         EventOutcome = "NO_DATA"
	EventOutcomeFailed         EventOutcome = "FAILED"
)

// String returns the string representation of EventOutcome
func (o EventOutcome) String() string {
	return string(o)
}

// Event is one logical ingestion request for one account, one event type and
// one date window. Event values are immutable: every transition method
// validates the edge and returns a new value, leaving the receiver untouched.
// Events are never deleted, only superseded by new events.
type Event struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	EventType   source.EventType
	SourceLabel string
	PayloadRef  string
	Replication int
	DateFrom    time.Time
	DateTo      time.Time
	Status      EventStatus
	Outcome     EventOutcome
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewEvent creates a new ingestion event in RECEIVED status
func NewEvent(accountID uuid.UUID, eventType source.EventType, sourceLabel string, dateFrom, dateTo time.Time, now time.Time) (Event, error) {
	if accountID == uuid.Nil {
		return Event{}, newIllegalTransitionReason("event", "", string(EventStatusReceived), "account id is required")
	}
	if !eventType.IsValid() {
		return Event{}, newIllegalTransitionReason("event", "", string(EventStatusReceived), "unknown event type")
	}
	return Event{
		ID:          uuid.New(),
		AccountID:   accountID,
		EventType:   eventType,
		SourceLabel: sourceLabel,
		Replication: 1,
		DateFrom:    dateFrom,
		DateTo:      dateTo,
		Status:      EventStatusReceived,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// WithReplication stamps the requested replication factor on the event
// payload. Values below 1 collapse to 1; the factor is recorded for the run,
// the plan still fans out exactly one execution per source.
func (e Event) WithReplication(factor int) Event {
	if factor < 1 {
		factor = 1
	}
	next := e
	next.Replication = factor
	return next
}

// transition validates the edge and produces the successor value
func (e Event) transition(target EventStatus, now time.Time) (Event, error) {
	if e.ID == uuid.Nil {
		return Event{}, newIllegalTransitionReason("event", string(e.Status), string(target), "event id is required")
	}
	if e.CreatedAt.IsZero() {
		return Event{}, newIllegalTransitionReason("event", string(e.Status), string(target), "created timestamp is required")
	}
	if !e.Status.CanTransitionTo(target) {
		return Event{}, newIllegalTransition("event", string(e.Status), string(target))
	}
	next := e
	next.Status = target
	next.UpdatedAt = now
	return next, nil
}

// Start moves the event into IN_PROGRESS once the plan has been dispatched
func (e Event) Start(now time.Time) (Event, error) {
	return e.transition(EventStatusInProgress, now)
}

// AwaitMaterialization moves the event into MATERIALIZATION_PENDING after all
// executions reached a terminal status with at least one success
func (e Event) AwaitMaterialization(now time.Time) (Event, error) {
	return e.transition(EventStatusMaterializationPending, now)
}

// Complete closes the event with the aggregate outcome
func (e Event) Complete(outcome EventOutcome, now time.Time) (Event, error) {
	next, err := e.transition(EventStatusCompleted, now)
	if err != nil {
		return Event{}, err
	}
	next.Outcome = outcome
	return next, nil
}

// Fail closes the event as failed
func (e Event) Fail(now time.Time) (Event, error) {
	next, err := e.transition(EventStatusFailed, now)
	if err != nil {
		return Event{}, err
	}
	next.Outcome = EventOutcomeFailed
	return next, nil
}

// Cancel closes the event as cancelled
func (e Event) Cancel(now time.Time) (Event, error) {
	return e.transition(EventStatusCancelled, now)
}
