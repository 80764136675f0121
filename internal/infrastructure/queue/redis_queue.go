package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	consumeBlockTimeout = 5 * time.Second
	delayMoverBatch     = 100
)

// RedisWorkQueue implements WorkQueue on a Redis list plus a sorted set for
// delayed tasks. The mover goroutine shifts due members from the sorted set
// onto the list. Moving is not atomic across the two structures, so a crash
// between ZREM and LPUSH can drop or duplicate a task; duplicates are
// absorbed by the CAS-guarded execution state and drops by run-level
// reconciliation, which keeps the queue itself simple.
type RedisWorkQueue struct {
	client        *redis.Client
	queueKey      string
	delayKey      string
	moverInterval time.Duration
	logger        *zap.Logger
}

// NewRedisWorkQueue creates a Redis-backed work queue
func NewRedisWorkQueue(client *redis.Client, queueKey, delayKey string, moverInterval time.Duration, logger *zap.Logger) *RedisWorkQueue {
	if moverInterval <= 0 {
		moverInterval = time.Second
	}
	return &RedisWorkQueue{
		client:        client,
		queueKey:      queueKey,
		delayKey:      delayKey,
		moverInterval: moverInterval,
		logger:        logger,
	}
}

// Publish enqueues a task for immediate consumption
func (q *RedisWorkQueue) Publish(ctx context.Context, task *ExecutionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// PublishDelayed parks a task in the delay set until its due time
func (q *RedisWorkQueue) PublishDelayed(ctx context.Context, task *ExecutionTask, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(ctx, task)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	dueAt := time.Now().Add(delay)
	err = q.client.ZAdd(ctx, q.delayKey, redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue delayed task: %w", err)
	}
	return nil
}

// Consume blocks until a task is available or the context is cancelled
func (q *RedisWorkQueue) Consume(ctx context.Context) (*ExecutionTask, error) {
	for {
		result, err := q.client.BRPop(ctx, consumeBlockTimeout, q.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// timed out waiting, poll again unless shutting down
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
					continue
				}
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to consume task: %w", err)
		}

		// BRPop returns [key, value]
		var task ExecutionTask
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			q.logger.Error("discarding malformed task payload", zap.Error(err))
			continue
		}
		return &task, nil
	}
}

// RunDelayMover moves due delayed tasks onto the work queue until the
// context is cancelled. Run it once per process.
func (q *RedisWorkQueue) RunDelayMover(ctx context.Context) {
	ticker := time.NewTicker(q.moverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.moveDue(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("failed to move delayed tasks", zap.Error(err))
			}
		}
	}
}

func (q *RedisWorkQueue) moveDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, q.delayKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: delayMoverBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.delayKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			// another instance moved it first
			continue
		}
		if err := q.client.LPush(ctx, q.queueKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Ensure RedisWorkQueue implements WorkQueue
var _ WorkQueue = (*RedisWorkQueue)(nil)
