package ingestion

import (
	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// Domain event types published through the outbox
const (
	EventTypeMaterializationRequested = "ingestion.materialization.requested"
	EventTypeEventClosed              = "ingestion.event.closed"
)

// MaterializationRequestedEvent is written to the outbox in the same
// transaction that moves an event to MATERIALIZATION_PENDING. The dispatcher
// delivers it to the materialization service.
type MaterializationRequestedEvent struct {
	shared.BaseDomainEvent
	RequestID   uuid.UUID        `json:"request_id"`
	IngestType  source.EventType `json:"ingest_type"`
	Outcome     EventOutcome     `json:"outcome"`
	Marketplace []string         `json:"marketplaces"`
}

// NewMaterializationRequestedEvent creates the outbox event for a pending materialization
func NewMaterializationRequestedEvent(ev Event, marketplaces []string) *MaterializationRequestedEvent {
	return &MaterializationRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMaterializationRequested, "ingestion_event", ev.ID, ev.AccountID),
		RequestID:       ev.ID,
		IngestType:      ev.EventType,
		Outcome:         ev.Outcome,
		Marketplace:     marketplaces,
	}
}

// EventClosedEvent announces that an ingestion event reached a terminal status
type EventClosedEvent struct {
	shared.BaseDomainEvent
	RequestID  uuid.UUID        `json:"request_id"`
	IngestType source.EventType `json:"ingest_type"`
	Status     EventStatus      `json:"status"`
	Outcome    EventOutcome     `json:"outcome"`
}

// NewEventClosedEvent creates the outbox event for a closed ingestion event
func NewEventClosedEvent(ev Event) *EventClosedEvent {
	return &EventClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEventClosed, "ingestion_event", ev.ID, ev.AccountID),
		RequestID:       ev.ID,
		IngestType:      ev.EventType,
		Status:          ev.Status,
		Outcome:         ev.Outcome,
	}
}
