package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/account"
	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/queue"
)

// Service orchestrates the ingestion lifecycle: it accepts trigger commands,
// plans per-marketplace execution chains, releases units to the work queue in
// order and closes events once every unit reached a terminal status.
type Service struct {
	accounts   account.Repository
	events     ingestion.EventRepository
	executions ingestion.ExecutionRepository
	states     ingestion.SourceExecutionStateRepository
	audits     ingestion.AuditRepository
	planner    *Planner
	queue      queue.WorkQueue
	logger     *zap.Logger
}

// NewService creates the orchestration service
func NewService(
	accounts account.Repository,
	events ingestion.EventRepository,
	executions ingestion.ExecutionRepository,
	states ingestion.SourceExecutionStateRepository,
	audits ingestion.AuditRepository,
	planner *Planner,
	workQueue queue.WorkQueue,
	logger *zap.Logger,
) *Service {
	return &Service{
		accounts:   accounts,
		events:     events,
		executions: executions,
		states:     states,
		audits:     audits,
		planner:    planner,
		queue:      workQueue,
		logger:     logger,
	}
}

// TriggerIngestion creates a new ingestion event, plans its executions and
// releases the first unit of every marketplace chain to the work queue.
func (s *Service) TriggerIngestion(ctx context.Context, cmd TriggerCommand) (RunView, error) {
	if !cmd.EventType.IsValid() {
		return RunView{}, fmt.Errorf("unknown event type %q", cmd.EventType)
	}
	if !cmd.EventType.IsDictionary() && cmd.DateTo.Before(cmd.DateFrom) {
		return RunView{}, fmt.Errorf("date window end %s precedes start %s", cmd.DateTo.Format(time.RFC3339), cmd.DateFrom.Format(time.RFC3339))
	}

	acc, err := s.accounts.FindByID(ctx, cmd.AccountID)
	if err != nil {
		return RunView{}, fmt.Errorf("failed to load account: %w", err)
	}
	if !acc.IsActive() {
		return RunView{}, ingestion.ErrNoActiveMarketplace
	}
	marketplaces := acc.ActiveMarketplaces()
	if len(marketplaces) == 0 {
		return RunView{}, ingestion.ErrNoActiveMarketplace
	}

	now := time.Now()
	ev, err := ingestion.NewEvent(cmd.AccountID, cmd.EventType, cmd.SourceLabel, cmd.DateFrom, cmd.DateTo, now)
	if err != nil {
		return RunView{}, err
	}
	ev = ev.WithReplication(cmd.Replication)
	if err := s.events.Save(ctx, ev); err != nil {
		return RunView{}, fmt.Errorf("failed to save ingestion event: %w", err)
	}

	plan, err := s.planner.BuildPlan(ev, marketplaces, now)
	if err != nil {
		s.failEvent(ctx, ev, now)
		return RunView{}, err
	}

	for _, unit := range plan.Units {
		if err := s.executions.Save(ctx, unit.Execution); err != nil {
			s.failEvent(ctx, ev, now)
			return RunView{}, fmt.Errorf("failed to save execution: %w", err)
		}
		if err := s.states.Save(ctx, unit.State); err != nil {
			s.failEvent(ctx, ev, now)
			return RunView{}, fmt.Errorf("failed to save execution state: %w", err)
		}
	}

	started, err := ev.Start(now)
	if err != nil {
		return RunView{}, err
	}
	if err := s.events.Update(ctx, started); err != nil {
		return RunView{}, fmt.Errorf("failed to start ingestion event: %w", err)
	}

	for _, unit := range plan.FirstUnits() {
		if err := s.queue.Publish(ctx, s.taskFor(started, unit.Execution, unit.State.Attempt)); err != nil {
			// the unit record exists, a recovery sweep can re-release it
			s.logger.Error("failed to enqueue execution task",
				zap.String("request_id", started.ID.String()),
				zap.String("marketplace", unit.Execution.Marketplace.String()),
				zap.String("source_id", unit.Execution.SourceID),
				zap.Error(err),
			)
		}
	}

	executions := make([]ingestion.Execution, 0, len(plan.Units))
	for _, unit := range plan.Units {
		executions = append(executions, unit.Execution)
	}

	s.logger.Info("ingestion triggered",
		zap.String("request_id", started.ID.String()),
		zap.String("event_type", started.EventType.String()),
		zap.String("account_id", started.AccountID.String()),
		zap.Int("units", len(plan.Units)),
	)
	return toRunView(started, executions), nil
}

// GetRun returns the event and its executions
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (RunView, error) {
	ev, err := s.events.FindByID(ctx, id)
	if err != nil {
		return RunView{}, err
	}
	executions, err := s.executions.FindByEventID(ctx, id)
	if err != nil {
		return RunView{}, err
	}
	return toRunView(ev, executions), nil
}

// GetAudit returns the audit trail of one request
func (s *Service) GetAudit(ctx context.Context, id uuid.UUID) ([]AuditView, error) {
	records, err := s.audits.FindByRequestID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]AuditView, 0, len(records))
	for _, rec := range records {
		out = append(out, toAuditView(rec))
	}
	return out, nil
}

// CancelRun cancels a non-terminal event. In-flight units finish their
// current attempt; no further units are released.
func (s *Service) CancelRun(ctx context.Context, id uuid.UUID) (RunView, error) {
	ev, err := s.events.FindByID(ctx, id)
	if err != nil {
		return RunView{}, err
	}
	cancelled, err := ev.Cancel(time.Now())
	if err != nil {
		return RunView{}, err
	}
	if err := s.events.UpdateWithEvents(ctx, cancelled, ingestion.NewEventClosedEvent(cancelled)); err != nil {
		return RunView{}, err
	}
	return toRunView(cancelled, nil), nil
}

// OnUnitFinished is called by a worker after a unit reached a terminal
// status. It releases the next unit in the marketplace chain and, once every
// unit is terminal, closes the event with the aggregate outcome.
func (s *Service) OnUnitFinished(ctx context.Context, task *queue.ExecutionTask, outcome ingestion.ExecutionOutcome) error {
	executions, err := s.executions.FindByEventID(ctx, task.EventID)
	if err != nil {
		return fmt.Errorf("failed to load executions: %w", err)
	}

	if err := s.releaseNext(ctx, task, executions); err != nil {
		s.logger.Error("failed to release next unit",
			zap.String("request_id", task.RequestID.String()),
			zap.Error(err),
		)
	}

	return s.closeIfFinished(ctx, task, executions)
}

// releaseNext publishes the successor of the finished unit in its
// marketplace chain, if that successor is still untouched.
func (s *Service) releaseNext(ctx context.Context, task *queue.ExecutionTask, executions []ingestion.Execution) error {
	var finished *ingestion.Execution
	for i := range executions {
		if executions[i].ID == task.ExecutionID {
			finished = &executions[i]
			break
		}
	}
	if finished == nil {
		return nil
	}

	for i := range executions {
		next := executions[i]
		if next.Marketplace != finished.Marketplace || next.OrderIndex != finished.OrderIndex+1 {
			continue
		}
		state, err := s.states.Find(ctx, task.RequestID, source.EventType(task.EventType), next.SourceID)
		if err != nil {
			return err
		}
		if state.Status != ingestion.UnitStatusNew {
			return nil
		}

		ev, err := s.events.FindByID(ctx, task.EventID)
		if err != nil {
			return err
		}
		if ev.Status.IsTerminal() {
			// cancelled mid-flight, stop the chain
			return nil
		}
		return s.queue.Publish(ctx, s.taskFor(ev, next, state.Attempt))
	}
	return nil
}

// closeIfFinished aggregates unit outcomes once every unit is terminal and
// moves the event on. Concurrent duplicate closures lose on the illegal
// transition and are absorbed silently.
func (s *Service) closeIfFinished(ctx context.Context, task *queue.ExecutionTask, executions []ingestion.Execution) error {
	outcomes, allTerminal, err := s.collectOutcomes(ctx, task, executions)
	if err != nil {
		return err
	}
	if !allTerminal {
		return nil
	}

	ev, err := s.events.FindByID(ctx, task.EventID)
	if err != nil {
		return err
	}
	if ev.Status != ingestion.EventStatusInProgress {
		return nil
	}

	now := time.Now()
	aggregate := ingestion.AggregateOutcomes(outcomes)

	if ingestion.HasSuccess(outcomes) {
		pending, err := ev.AwaitMaterialization(now)
		if err != nil {
			return s.absorbIllegalTransition(err)
		}
		pending.Outcome = aggregate

		marketplaces := make([]string, 0)
		seen := make(map[string]bool)
		for _, x := range executions {
			if !seen[x.Marketplace.String()] {
				seen[x.Marketplace.String()] = true
				marketplaces = append(marketplaces, x.Marketplace.String())
			}
		}
		if err := s.events.UpdateWithEvents(ctx, pending, ingestion.NewMaterializationRequestedEvent(pending, marketplaces)); err != nil {
			return err
		}
		s.logger.Info("ingestion awaiting materialization",
			zap.String("request_id", ev.ID.String()),
			zap.String("outcome", aggregate.String()),
		)
		return nil
	}

	var closed ingestion.Event
	if aggregate == ingestion.EventOutcomeFailed {
		closed, err = ev.Fail(now)
	} else {
		// no unit succeeded: nothing to materialize, the aggregate verdict
		// (NO_DATA or PARTIAL_SUCCESS on a mixed run) closes the event
		closed, err = ev.Complete(aggregate, now)
	}
	if err != nil {
		return s.absorbIllegalTransition(err)
	}
	if err := s.events.UpdateWithEvents(ctx, closed, ingestion.NewEventClosedEvent(closed)); err != nil {
		return err
	}
	s.logger.Info("ingestion closed",
		zap.String("request_id", ev.ID.String()),
		zap.String("status", closed.Status.String()),
		zap.String("outcome", closed.Outcome.String()),
	)
	return nil
}

// collectOutcomes maps every unit to its terminal outcome via the audit
// trail, reporting whether all units are terminal yet.
func (s *Service) collectOutcomes(ctx context.Context, task *queue.ExecutionTask, executions []ingestion.Execution) ([]ingestion.ExecutionOutcome, bool, error) {
	records, err := s.audits.FindByRequestID(ctx, task.RequestID)
	if err != nil {
		return nil, false, err
	}

	// last non-skipped audit entry per unit wins
	lastOutcome := make(map[string]ingestion.ExecutionOutcome)
	for _, rec := range records {
		if rec.Status == ingestion.ExecutionOutcomeSkipped {
			continue
		}
		lastOutcome[rec.Marketplace.String()+"/"+rec.SourceID] = rec.Status
	}

	outcomes := make([]ingestion.ExecutionOutcome, 0, len(executions))
	for _, x := range executions {
		state, err := s.states.Find(ctx, task.RequestID, source.EventType(task.EventType), x.SourceID)
		if err != nil {
			return nil, false, err
		}
		switch state.Status {
		case ingestion.UnitStatusCompleted:
			if o, ok := lastOutcome[x.Marketplace.String()+"/"+x.SourceID]; ok {
				outcomes = append(outcomes, o)
			} else {
				outcomes = append(outcomes, ingestion.ExecutionOutcomeSuccess)
			}
		case ingestion.UnitStatusFailedTerminal:
			outcomes = append(outcomes, ingestion.ExecutionOutcomeFailed)
		default:
			return nil, false, nil
		}
	}
	return outcomes, true, nil
}

func (s *Service) taskFor(ev ingestion.Event, x ingestion.Execution, attempt int) *queue.ExecutionTask {
	return &queue.ExecutionTask{
		RequestID:   ev.ID,
		EventID:     ev.ID,
		ExecutionID: x.ID,
		AccountID:   ev.AccountID,
		EventType:   ev.EventType.String(),
		Marketplace: x.Marketplace.String(),
		SourceID:    x.SourceID,
		Attempt:     attempt,
		DateFrom:    ev.DateFrom,
		DateTo:      ev.DateTo,
	}
}

func (s *Service) failEvent(ctx context.Context, ev ingestion.Event, now time.Time) {
	failed, err := ev.Fail(now)
	if err != nil {
		return
	}
	if err := s.events.UpdateWithEvents(ctx, failed, ingestion.NewEventClosedEvent(failed)); err != nil {
		s.logger.Error("failed to mark ingestion event failed",
			zap.String("request_id", ev.ID.String()),
			zap.Error(err),
		)
	}
}

// absorbIllegalTransition treats a lost closure race as a no-op
func (s *Service) absorbIllegalTransition(err error) error {
	var illegal *ingestion.IllegalStateTransitionError
	if errors.As(err, &illegal) {
		return nil
	}
	return err
}
