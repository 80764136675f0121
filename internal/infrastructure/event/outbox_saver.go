package event

import (
	"context"

	"github.com/sellerpulse/backend/internal/domain/shared"
)

// OutboxSaver implements shared.OutboxEventSaver: it serializes domain
// events and writes them as outbox entries within the caller's transaction
type OutboxSaver struct {
	repo       shared.OutboxRepository
	serializer *EventSerializer
}

// NewOutboxSaver creates a new OutboxSaver
func NewOutboxSaver(repo shared.OutboxRepository, serializer *EventSerializer) *OutboxSaver {
	return &OutboxSaver{repo: repo, serializer: serializer}
}

// SaveEvents serializes and persists events in the given transaction
func (s *OutboxSaver) SaveEvents(ctx context.Context, txProvider interface{}, events ...shared.DomainEvent) error {
	for _, event := range events {
		payload, err := s.serializer.Serialize(event)
		if err != nil {
			return err
		}
		entry := shared.NewOutboxEntry(event.AccountID(), event, payload)
		if err := s.repo.Save(ctx, txProvider, entry); err != nil {
			return err
		}
	}
	return nil
}

// Ensure OutboxSaver implements OutboxEventSaver
var _ shared.OutboxEventSaver = (*OutboxSaver)(nil)
