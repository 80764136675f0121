package event

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/shared"
)

// IdempotentHandler wraps an EventHandler so redelivered events are handled
// at most once. The wrapped handler only runs when the event id was not seen
// within the TTL; a handler failure releases nothing, so the outbox retry
// redelivers to a fresh key after expiry.
type IdempotentHandler struct {
	inner  shared.EventHandler
	store  shared.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotentHandler wraps a handler with idempotency tracking
func NewIdempotentHandler(inner shared.EventHandler, store shared.IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotentHandler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotentHandler{inner: inner, store: store, ttl: ttl, logger: logger}
}

// Handle processes the event unless it was already handled
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fresh, err := h.store.MarkProcessed(ctx, event.EventID().String(), h.ttl)
	if err != nil {
		return err
	}
	if !fresh {
		h.logger.Debug("skipping duplicate event delivery",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	return h.inner.Handle(ctx, event)
}

// EventTypes returns the wrapped handler's event types
func (h *IdempotentHandler) EventTypes() []string {
	return h.inner.EventTypes()
}

// Ensure IdempotentHandler implements EventHandler
var _ shared.EventHandler = (*IdempotentHandler)(nil)
