package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
)

// EventSerializer maps event type names to concrete payload types so outbox
// rows can be turned back into typed domain events
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

// NewEventSerializer creates a serializer with all ingestion event types
// registered
func NewEventSerializer() *EventSerializer {
	s := &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
	s.Register(ingestion.EventTypeMaterializationRequested, func() shared.DomainEvent {
		return &ingestion.MaterializationRequestedEvent{}
	})
	s.Register(ingestion.EventTypeEventClosed, func() shared.DomainEvent {
		return &ingestion.EventClosedEvent{}
	})
	return s
}

// Register adds a factory for an event type
func (s *EventSerializer) Register(eventType string, factory func() shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[eventType] = factory
}

// Serialize encodes a domain event as JSON
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event %s: %w", event.EventType(), err)
	}
	return payload, nil
}

// Deserialize decodes an outbox payload into its typed domain event
func (s *EventSerializer) Deserialize(eventType string, payload []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no factory registered for event type %s", eventType)
	}

	event := factory()
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to deserialize event %s: %w", eventType, err)
	}
	return event, nil
}
