// Package materialization merges raw landed records into the dimensional
// warehouse tables once an ingestion event finishes with data.
package materialization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/telemetry"
)

// Merger folds raw rows of one request into the warehouse tables. The merge
// is keyed by request id and natural keys, so replaying it inserts or updates
// the same rows again instead of duplicating them.
type Merger interface {
	MergeFromRaw(ctx context.Context, eventType source.EventType, requestID uuid.UUID) (int64, error)
}

// Service handles materialization requests delivered through the outbox.
// Idempotency comes from the event status gate, not from delivery dedup: a
// redelivered request for an already closed event is a no-op, and a failed
// merge leaves the event MATERIALIZATION_PENDING for the redelivery to retry.
type Service struct {
	events ingestion.EventRepository
	merger Merger
	logger *zap.Logger
}

// NewService creates the materialization service
func NewService(events ingestion.EventRepository, merger Merger, logger *zap.Logger) *Service {
	return &Service{events: events, merger: merger, logger: logger}
}

// Handle processes one MaterializationRequestedEvent
func (s *Service) Handle(ctx context.Context, event shared.DomainEvent) error {
	request, ok := event.(*ingestion.MaterializationRequestedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	ctx, span := telemetry.StartSpan(ctx, "ingestion.materialize",
		telemetry.WithAttribute(telemetry.AttrRequestID, request.RequestID),
		telemetry.WithAttribute(telemetry.AttrEventType, request.IngestType.String()),
	)
	defer span.End()

	ev, err := s.events.FindByID(ctx, request.RequestID)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if ev.Status != ingestion.EventStatusMaterializationPending {
		s.logger.Debug("materialization request for settled event, skipping",
			zap.String("request_id", request.RequestID.String()),
			zap.String("status", ev.Status.String()),
		)
		return nil
	}

	rows, err := s.merger.MergeFromRaw(ctx, ev.EventType, ev.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("materialization merge failed",
			zap.String("request_id", ev.ID.String()),
			zap.String("event_type", ev.EventType.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to materialize %s: %w", ev.EventType, err)
	}

	now := time.Now()
	completed, err := ev.Complete(ev.Outcome, now)
	if err != nil {
		// a concurrent delivery already closed the event
		s.logger.Debug("materialization completion skipped", zap.Error(err))
		return nil
	}
	if err := s.events.UpdateWithEvents(ctx, completed, ingestion.NewEventClosedEvent(completed)); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.logger.Info("materialization completed",
		zap.String("request_id", ev.ID.String()),
		zap.String("event_type", ev.EventType.String()),
		zap.String("outcome", completed.Outcome.String()),
		zap.Int64("rows_merged", rows),
	)
	return nil
}

// EventTypes returns the handled event types
func (s *Service) EventTypes() []string {
	return []string{ingestion.EventTypeMaterializationRequested}
}

// Ensure Service implements EventHandler
var _ shared.EventHandler = (*Service)(nil)
