package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/queue"
	"github.com/sellerpulse/backend/internal/infrastructure/resilience"
	"github.com/sellerpulse/backend/internal/infrastructure/snapshot"
	"github.com/sellerpulse/backend/internal/infrastructure/telemetry"
)

// ProgressNotifier receives terminal unit outcomes; the orchestrator uses
// them to release successors and close events.
type ProgressNotifier interface {
	OnUnitFinished(ctx context.Context, task *queue.ExecutionTask, outcome ingestion.ExecutionOutcome) error
}

// Config tunes the worker pool
type Config struct {
	// Count is the number of concurrent consumers
	Count int
	// BackoffMin and BackoffMax clamp every retry delay
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Pool consumes execution tasks from the work queue. Every delivery first
// passes the CAS acquisition gate, so duplicate deliveries and crashed-worker
// redeliveries degrade to no-ops instead of double fetches.
type Pool struct {
	queue      queue.WorkQueue
	states     ingestion.SourceExecutionStateRepository
	executions ingestion.ExecutionRepository
	audits     ingestion.AuditRepository
	registry   *source.Registry
	limiter    *resilience.RateLimiterRegistry
	bulkhead   *resilience.Bulkhead
	pipeline   *snapshot.Pipeline
	deps       *DependencyPolicy
	progress   ProgressNotifier
	metrics    *telemetry.IngestionMetrics
	config     Config
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool
func NewPool(
	workQueue queue.WorkQueue,
	states ingestion.SourceExecutionStateRepository,
	executions ingestion.ExecutionRepository,
	audits ingestion.AuditRepository,
	registry *source.Registry,
	limiter *resilience.RateLimiterRegistry,
	bulkhead *resilience.Bulkhead,
	pipeline *snapshot.Pipeline,
	deps *DependencyPolicy,
	progress ProgressNotifier,
	metrics *telemetry.IngestionMetrics,
	config Config,
	logger *zap.Logger,
) *Pool {
	if config.Count <= 0 {
		config.Count = 4
	}
	if config.BackoffMin <= 0 {
		config.BackoffMin = 5 * time.Second
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = 10 * time.Minute
	}
	return &Pool{
		queue:      workQueue,
		states:     states,
		executions: executions,
		audits:     audits,
		registry:   registry,
		limiter:    limiter,
		bulkhead:   bulkhead,
		pipeline:   pipeline,
		deps:       deps,
		progress:   progress,
		metrics:    metrics,
		config:     config,
		logger:     logger,
	}
}

// Start launches the consumer goroutines
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Count; i++ {
		p.wg.Add(1)
		go p.consumeLoop(ctx)
	}
	p.logger.Info("ingestion worker pool started", zap.Int("workers", p.config.Count))
}

// Stop cancels the consumers and waits for in-flight units to finish
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("ingestion worker pool stopped")
}

func (p *Pool) consumeLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		task, err := p.queue.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			p.logger.Error("failed to consume execution task", zap.Error(err))
			continue
		}
		p.process(ctx, task)
	}
}

func (p *Pool) process(ctx context.Context, task *queue.ExecutionTask) {
	eventType := source.EventType(task.EventType)
	marketplace := source.Marketplace(task.Marketplace)
	started := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "ingestion.execute_unit",
		telemetry.WithAttribute(telemetry.AttrRequestID, task.RequestID),
		telemetry.WithAttribute(telemetry.AttrEventType, task.EventType),
		telemetry.WithAttribute(telemetry.AttrMarketplace, task.Marketplace),
		telemetry.WithAttribute(telemetry.AttrSourceID, task.SourceID),
		telemetry.WithAttribute(telemetry.AttrAttempt, task.Attempt),
	)
	defer span.End()

	result, state, err := p.states.Acquire(ctx, task.RequestID, eventType, task.SourceID, started)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			p.logger.Error("execution task references unknown unit, dropping",
				zap.String("request_id", task.RequestID.String()),
				zap.String("source_id", task.SourceID),
			)
			return
		}
		telemetry.RecordError(span, err)
		p.logger.Error("failed to acquire unit", zap.Error(err))
		return
	}

	switch result {
	case ingestion.AcquireNotDue:
		delay := time.Until(*state.NextAttemptAt)
		if err := p.queue.PublishDelayed(ctx, task, delay); err != nil {
			p.logger.Error("failed to requeue undue task", zap.Error(err))
		}
		return
	case ingestion.AcquireSkip:
		p.recordAudit(ctx, task, ingestion.ExecutionOutcomeSkipped, 0, "")
		return
	}

	p.markExecutionRunning(ctx, task)

	rows, err := p.fetchAndIngest(ctx, task, eventType, marketplace)
	if err != nil {
		telemetry.RecordError(span, err)
		p.handleFailure(ctx, task, state, err, time.Since(started))
		return
	}

	outcome := ingestion.ExecutionOutcomeSuccess
	if rows == 0 {
		outcome = ingestion.ExecutionOutcomeNoData
	}

	ok, err := p.states.MarkCompleted(ctx, state)
	if err != nil {
		telemetry.RecordError(span, err)
		p.logger.Error("failed to mark unit completed", zap.Error(err))
		return
	}
	if !ok {
		p.logger.Warn("lost completion race, unit already transitioned",
			zap.String("request_id", task.RequestID.String()),
			zap.String("source_id", task.SourceID),
		)
		return
	}

	p.markExecutionCompleted(ctx, task)
	p.recordAudit(ctx, task, outcome, rows, "")
	if p.metrics != nil {
		p.metrics.RecordExecution(ctx, task.EventType, task.Marketplace, outcome.String(), time.Since(started))
		p.metrics.RecordRowsIngested(ctx, task.EventType, task.Marketplace, rows)
	}

	if err := p.progress.OnUnitFinished(ctx, task, outcome); err != nil {
		p.logger.Error("failed to report unit completion",
			zap.String("request_id", task.RequestID.String()),
			zap.Error(err),
		)
	}
}

// fetchAndIngest runs the resilience-guarded fetch and streams every snapshot
// through the commit-barrier pipeline, returning the total rows persisted.
func (p *Pool) fetchAndIngest(ctx context.Context, task *queue.ExecutionTask, eventType source.EventType, marketplace source.Marketplace) (int64, error) {
	if err := p.deps.Ensure(ctx, task.AccountID, eventType, marketplace); err != nil {
		return 0, err
	}

	waitStart := time.Now()
	if err := p.limiter.Acquire(ctx, marketplace); err != nil {
		return 0, err
	}
	if p.metrics != nil {
		p.metrics.RecordRateLimitWait(ctx, task.Marketplace, time.Since(waitStart))
	}

	release, err := p.bulkhead.Acquire(ctx, marketplace)
	if err != nil {
		return 0, err
	}
	defer release()

	src, err := p.findSource(eventType, marketplace, task.SourceID)
	if err != nil {
		return 0, err
	}

	snaps, err := src.FetchSnapshots(ctx, source.FetchWindow{
		AccountID: task.AccountID,
		DateFrom:  task.DateFrom,
		DateTo:    task.DateTo,
	})
	if err != nil {
		return 0, err
	}

	var total int64
	for _, snap := range snaps {
		result, err := p.pipeline.Ingest(ctx, snap, src.RawTable(), snapshot.BatchKey{
			RequestID:   task.RequestID,
			AccountID:   task.AccountID,
			Marketplace: marketplace,
		})
		if err != nil {
			return 0, err
		}
		total += result.Rows
	}
	return total, nil
}

func (p *Pool) findSource(eventType source.EventType, marketplace source.Marketplace, sourceID string) (source.Source, error) {
	sources, err := p.registry.FindSources(eventType, marketplace)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if src.ID() == sourceID {
			return src, nil
		}
	}
	return nil, fmt.Errorf("%w: source %s not registered for %s/%s", source.ErrNoSourcesForEvent, sourceID, eventType, marketplace)
}

// handleFailure schedules a retry for recoverable failures and exhausts the
// unit otherwise. Throttled failures honor the marketplace's Retry-After.
func (p *Pool) handleFailure(ctx context.Context, task *queue.ExecutionTask, state *ingestion.SourceExecutionState, cause error, elapsed time.Duration) {
	class, code := Classify(cause)
	now := time.Now()

	if class != ClassTerminal && !state.AttemptsExhausted() {
		delay := p.backoffFor(state.Attempt)
		if class == ClassThrottled {
			delay = resilience.RetryAfterOf(cause, delay)
		}
		delay = resilience.ClampBackoff(delay, p.config.BackoffMin, p.config.BackoffMax)

		ok, err := p.states.ScheduleRetry(ctx, state, now.Add(delay), code, cause.Error())
		if err != nil {
			p.logger.Error("failed to schedule retry", zap.Error(err))
			return
		}
		if !ok {
			return
		}

		p.markExecutionWaitingRetry(ctx, task, delay)

		retryTask := *task
		retryTask.Attempt = state.Attempt
		if err := p.queue.PublishDelayed(ctx, &retryTask, delay); err != nil {
			// the unit stays RETRY_SCHEDULED; a recovery sweep re-releases it
			p.logger.Error("failed to enqueue retry task", zap.Error(err))
		}
		if p.metrics != nil {
			p.metrics.RecordRetryScheduled(ctx, task.EventType, task.Marketplace, code)
		}
		p.logger.Warn("unit retry scheduled",
			zap.String("request_id", task.RequestID.String()),
			zap.String("source_id", task.SourceID),
			zap.String("error_code", code),
			zap.Int("next_attempt", state.Attempt),
			zap.Duration("delay", delay),
		)
		return
	}

	ok, err := p.states.MarkFailedTerminal(ctx, state, code, cause.Error())
	if err != nil {
		p.logger.Error("failed to mark unit failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	p.markExecutionFailed(ctx, task)
	p.recordAudit(ctx, task, ingestion.ExecutionOutcomeFailed, 0, cause.Error())
	if p.metrics != nil {
		p.metrics.RecordExecution(ctx, task.EventType, task.Marketplace, ingestion.ExecutionOutcomeFailed.String(), elapsed)
	}
	p.logger.Error("unit failed terminally",
		zap.String("request_id", task.RequestID.String()),
		zap.String("source_id", task.SourceID),
		zap.String("error_code", code),
		zap.Int("attempt", state.Attempt),
		zap.Error(cause),
	)

	if err := p.progress.OnUnitFinished(ctx, task, ingestion.ExecutionOutcomeFailed); err != nil {
		p.logger.Error("failed to report unit failure", zap.Error(err))
	}
}

func (p *Pool) backoffFor(attempt int) time.Duration {
	delay := p.config.BackoffMin
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.config.BackoffMax {
			return p.config.BackoffMax
		}
	}
	return delay
}

func (p *Pool) recordAudit(ctx context.Context, task *queue.ExecutionTask, outcome ingestion.ExecutionOutcome, rows int64, errMsg string) {
	record := ingestion.NewAuditRecord(
		task.RequestID, task.AccountID,
		source.EventType(task.EventType), source.Marketplace(task.Marketplace),
		task.SourceID, outcome, rows, errMsg,
	)
	if err := p.audits.Append(ctx, record); err != nil {
		p.logger.Error("failed to append audit record", zap.Error(err))
	}
}

// Execution row updates mirror the unit state machine for operators reading
// run status; they are best-effort and never gate the CAS-guarded flow.

func (p *Pool) markExecutionRunning(ctx context.Context, task *queue.ExecutionTask) {
	p.updateExecution(ctx, task, func(x ingestion.Execution, now time.Time) (ingestion.Execution, error) {
		if x.Status == ingestion.ExecutionStatusWaitingRetry {
			return x.Resume(now)
		}
		return x.Start(now)
	})
}

func (p *Pool) markExecutionCompleted(ctx context.Context, task *queue.ExecutionTask) {
	p.updateExecution(ctx, task, func(x ingestion.Execution, now time.Time) (ingestion.Execution, error) {
		return x.Complete(now)
	})
}

func (p *Pool) markExecutionFailed(ctx context.Context, task *queue.ExecutionTask) {
	p.updateExecution(ctx, task, func(x ingestion.Execution, now time.Time) (ingestion.Execution, error) {
		return x.Fail(now)
	})
}

func (p *Pool) markExecutionWaitingRetry(ctx context.Context, task *queue.ExecutionTask, delay time.Duration) {
	p.updateExecution(ctx, task, func(x ingestion.Execution, now time.Time) (ingestion.Execution, error) {
		return x.ScheduleRetry(delay, now)
	})
}

func (p *Pool) updateExecution(ctx context.Context, task *queue.ExecutionTask, transition func(ingestion.Execution, time.Time) (ingestion.Execution, error)) {
	x, err := p.executions.FindByID(ctx, task.ExecutionID)
	if err != nil {
		p.logger.Warn("failed to load execution for status update", zap.Error(err))
		return
	}
	next, err := transition(x, time.Now())
	if err != nil {
		p.logger.Debug("execution status update skipped",
			zap.String("execution_id", task.ExecutionID.String()),
			zap.Error(err),
		)
		return
	}
	if err := p.executions.Update(ctx, next); err != nil {
		p.logger.Warn("failed to update execution status", zap.Error(err))
	}
}
