package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryWorkQueue is an in-process WorkQueue used in tests and single-node
// development setups where Redis is unavailable
type MemoryWorkQueue struct {
	mu     sync.Mutex
	tasks  chan *ExecutionTask
	timers []*time.Timer
	closed bool
}

// NewMemoryWorkQueue creates an in-memory work queue with the given capacity
func NewMemoryWorkQueue(capacity int) *MemoryWorkQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryWorkQueue{tasks: make(chan *ExecutionTask, capacity)}
}

// Publish enqueues a task for immediate consumption
func (q *MemoryWorkQueue) Publish(ctx context.Context, task *ExecutionTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishDelayed enqueues a task that becomes consumable after delay
func (q *MemoryWorkQueue) PublishDelayed(ctx context.Context, task *ExecutionTask, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(ctx, task)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	timer := time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		select {
		case q.tasks <- task:
		default:
			// queue full, drop; tests size the queue to avoid this
		}
	})
	q.timers = append(q.timers, timer)
	return nil
}

// Consume blocks until a task is available or the context is cancelled
func (q *MemoryWorkQueue) Consume(ctx context.Context) (*ExecutionTask, error) {
	select {
	case task, ok := <-q.tasks:
		if !ok {
			return nil, ErrQueueClosed
		}
		return task, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of immediately consumable tasks
func (q *MemoryWorkQueue) Len() int {
	return len(q.tasks)
}

// Close stops delayed deliveries and releases waiting consumers
func (q *MemoryWorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, timer := range q.timers {
		timer.Stop()
	}
	close(q.tasks)
}

// Ensure MemoryWorkQueue implements WorkQueue
var _ WorkQueue = (*MemoryWorkQueue)(nil)
