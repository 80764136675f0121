package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed indicates the queue was shut down while a consumer waited
var ErrQueueClosed = errors.New("queue: closed")

// ExecutionTask is the unit-of-work message the orchestrator publishes and
// the ingestion workers consume. Delivery is at-least-once; consumers guard
// against duplicates through the execution state store, never through the
// queue itself.
type ExecutionTask struct {
	RequestID   uuid.UUID `json:"request_id"`
	EventID     uuid.UUID `json:"event_id"`
	ExecutionID uuid.UUID `json:"execution_id"`
	AccountID   uuid.UUID `json:"account_id"`
	EventType   string    `json:"event_type"`
	Marketplace string    `json:"marketplace"`
	SourceID    string    `json:"source_id"`
	Attempt     int       `json:"attempt"`
	DateFrom    time.Time `json:"date_from"`
	DateTo      time.Time `json:"date_to"`
}

// WorkQueue is the transport between the orchestrator and the workers
type WorkQueue interface {
	// Publish enqueues a task for immediate consumption
	Publish(ctx context.Context, task *ExecutionTask) error
	// PublishDelayed enqueues a task that becomes consumable after delay
	PublishDelayed(ctx context.Context, task *ExecutionTask, delay time.Duration) error
	// Consume blocks until a task is available or the context is cancelled
	Consume(ctx context.Context) (*ExecutionTask, error)
}
