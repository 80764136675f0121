package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/queue"
	"github.com/sellerpulse/backend/internal/infrastructure/resilience"
)

// MockStateRepository is a mock implementation of ingestion.SourceExecutionStateRepository
type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) Save(ctx context.Context, state *ingestion.SourceExecutionState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockStateRepository) Find(ctx context.Context, requestID uuid.UUID, eventType source.EventType, sourceID string) (*ingestion.SourceExecutionState, error) {
	args := m.Called(ctx, requestID, eventType, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingestion.SourceExecutionState), args.Error(1)
}

func (m *MockStateRepository) Acquire(ctx context.Context, requestID uuid.UUID, eventType source.EventType, sourceID string, now time.Time) (ingestion.AcquireResult, *ingestion.SourceExecutionState, error) {
	args := m.Called(ctx, requestID, eventType, sourceID, now)
	var state *ingestion.SourceExecutionState
	if args.Get(1) != nil {
		state = args.Get(1).(*ingestion.SourceExecutionState)
	}
	return args.Get(0).(ingestion.AcquireResult), state, args.Error(2)
}

func (m *MockStateRepository) ScheduleRetry(ctx context.Context, state *ingestion.SourceExecutionState, nextAttemptAt time.Time, errorCode, errorMessage string) (bool, error) {
	args := m.Called(ctx, state, nextAttemptAt, errorCode, errorMessage)
	return args.Bool(0), args.Error(1)
}

func (m *MockStateRepository) MarkCompleted(ctx context.Context, state *ingestion.SourceExecutionState) (bool, error) {
	args := m.Called(ctx, state)
	return args.Bool(0), args.Error(1)
}

func (m *MockStateRepository) MarkFailedTerminal(ctx context.Context, state *ingestion.SourceExecutionState, errorCode, errorMessage string) (bool, error) {
	args := m.Called(ctx, state, errorCode, errorMessage)
	return args.Bool(0), args.Error(1)
}

// MockExecutionRepository is a mock implementation of ingestion.ExecutionRepository
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution ingestion.Execution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

func (m *MockExecutionRepository) Update(ctx context.Context, execution ingestion.Execution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

func (m *MockExecutionRepository) FindByID(ctx context.Context, id uuid.UUID) (ingestion.Execution, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(ingestion.Execution), args.Error(1)
}

func (m *MockExecutionRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) ([]ingestion.Execution, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ingestion.Execution), args.Error(1)
}

// MockProgressNotifier is a mock implementation of ProgressNotifier
type MockProgressNotifier struct {
	mock.Mock
}

func (m *MockProgressNotifier) OnUnitFinished(ctx context.Context, task *queue.ExecutionTask, outcome ingestion.ExecutionOutcome) error {
	args := m.Called(ctx, task, outcome)
	return args.Error(0)
}

type poolFixture struct {
	queue      *queue.MemoryWorkQueue
	states     *MockStateRepository
	executions *MockExecutionRepository
	audits     *MockAuditRepository
	progress   *MockProgressNotifier
	pool       *Pool

	task  *queue.ExecutionTask
	state *ingestion.SourceExecutionState
	exec  ingestion.Execution
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	f := &poolFixture{
		queue:      queue.NewMemoryWorkQueue(16),
		states:     new(MockStateRepository),
		executions: new(MockExecutionRepository),
		audits:     new(MockAuditRepository),
		progress:   new(MockProgressNotifier),
	}
	t.Cleanup(f.queue.Close)

	f.pool = NewPool(
		f.queue, f.states, f.executions, f.audits,
		source.NewRegistry(), nil, nil, nil,
		NewDependencyPolicy(f.audits, time.Second),
		f.progress, nil,
		Config{Count: 1, BackoffMin: 20 * time.Millisecond, BackoffMax: 100 * time.Millisecond},
		zap.NewNop(),
	)

	now := time.Now()
	requestID := uuid.New()
	accountID := uuid.New()
	exec, err := ingestion.NewExecution(requestID, source.MarketplaceWildberries, "wb-orders-v2", 0, now)
	require.NoError(t, err)
	exec, err = exec.Start(now)
	require.NoError(t, err)
	f.exec = exec

	f.state = ingestion.NewSourceExecutionState(
		requestID, accountID, source.EventTypeOrders,
		source.MarketplaceWildberries, "wb-orders-v2", 3, now)
	f.state.Status = ingestion.UnitStatusInProgress

	f.task = &queue.ExecutionTask{
		RequestID:   requestID,
		EventID:     requestID,
		ExecutionID: exec.ID,
		AccountID:   accountID,
		EventType:   source.EventTypeOrders.String(),
		Marketplace: source.MarketplaceWildberries.String(),
		SourceID:    "wb-orders-v2",
		Attempt:     1,
		DateFrom:    now.Add(-24 * time.Hour),
		DateTo:      now,
	}
	return f
}

func TestHandleFailure_SchedulesRetry(t *testing.T) {
	f := newPoolFixture(t)

	f.states.On("ScheduleRetry", mock.Anything, f.state, mock.AnythingOfType("time.Time"), "SOURCE_UNAVAILABLE", mock.AnythingOfType("string")).
		Run(func(mock.Arguments) { f.state.Attempt = 2 }).
		Return(true, nil)
	f.executions.On("FindByID", mock.Anything, f.exec.ID).Return(f.exec, nil)
	f.executions.On("Update", mock.Anything, mock.MatchedBy(func(x ingestion.Execution) bool {
		return x.Status == ingestion.ExecutionStatusWaitingRetry && x.Attempt == 2
	})).Return(nil)

	f.pool.handleFailure(context.Background(), f.task, f.state, source.ErrSourceUnavailable, time.Second)

	f.states.AssertExpectations(t)
	f.executions.AssertExpectations(t)
	f.progress.AssertNotCalled(t, "OnUnitFinished", mock.Anything, mock.Anything, mock.Anything)

	// the retry lands on the queue after the backoff delay with the bumped attempt
	require.Eventually(t, func() bool { return f.queue.Len() == 1 }, time.Second, 5*time.Millisecond)
	retry, err := f.queue.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, retry.Attempt)
	assert.Equal(t, f.task.SourceID, retry.SourceID)
}

func TestHandleFailure_ThrottledHonorsRetryAfter(t *testing.T) {
	f := newPoolFixture(t)

	f.states.On("ScheduleRetry", mock.Anything, f.state, mock.MatchedBy(func(next time.Time) bool {
		until := time.Until(next)
		return until > 20*time.Millisecond && until <= 60*time.Millisecond
	}), "RATE_LIMITED", mock.AnythingOfType("string")).
		Run(func(mock.Arguments) { f.state.Attempt = 2 }).
		Return(true, nil)
	f.executions.On("FindByID", mock.Anything, f.exec.ID).Return(f.exec, nil)
	f.executions.On("Update", mock.Anything, mock.AnythingOfType("ingestion.Execution")).Return(nil)

	f.pool.handleFailure(context.Background(), f.task, f.state, resilience.NewThrottledError(50*time.Millisecond), time.Second)

	f.states.AssertExpectations(t)
}

func TestHandleFailure_ExhaustedAttemptsFailTerminally(t *testing.T) {
	f := newPoolFixture(t)
	f.state.Attempt = 3

	f.states.On("MarkFailedTerminal", mock.Anything, f.state, "SOURCE_UNAVAILABLE", mock.AnythingOfType("string")).
		Return(true, nil)
	f.executions.On("FindByID", mock.Anything, f.exec.ID).Return(f.exec, nil)
	f.executions.On("Update", mock.Anything, mock.MatchedBy(func(x ingestion.Execution) bool {
		return x.Status == ingestion.ExecutionStatusFailed
	})).Return(nil)
	f.audits.On("Append", mock.Anything, mock.MatchedBy(func(rec *ingestion.AuditRecord) bool {
		return rec.Status == ingestion.ExecutionOutcomeFailed && rec.SourceID == f.task.SourceID
	})).Return(nil)
	f.progress.On("OnUnitFinished", mock.Anything, f.task, ingestion.ExecutionOutcomeFailed).Return(nil)

	f.pool.handleFailure(context.Background(), f.task, f.state, source.ErrSourceUnavailable, time.Second)

	f.states.AssertExpectations(t)
	f.audits.AssertExpectations(t)
	f.progress.AssertExpectations(t)
	assert.Equal(t, 0, f.queue.Len())
}

func TestHandleFailure_TerminalErrorSkipsRetry(t *testing.T) {
	f := newPoolFixture(t)

	f.states.On("MarkFailedTerminal", mock.Anything, f.state, "INVALID_RESPONSE", mock.AnythingOfType("string")).
		Return(true, nil)
	f.executions.On("FindByID", mock.Anything, f.exec.ID).Return(f.exec, nil)
	f.executions.On("Update", mock.Anything, mock.AnythingOfType("ingestion.Execution")).Return(nil)
	f.audits.On("Append", mock.Anything, mock.AnythingOfType("*ingestion.AuditRecord")).Return(nil)
	f.progress.On("OnUnitFinished", mock.Anything, f.task, ingestion.ExecutionOutcomeFailed).Return(nil)

	f.pool.handleFailure(context.Background(), f.task, f.state, source.ErrSourceInvalidResponse, time.Second)

	f.states.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.progress.AssertExpectations(t)
}

func TestHandleFailure_DependencyMissFailsTerminally(t *testing.T) {
	f := newPoolFixture(t)

	f.states.On("MarkFailedTerminal", mock.Anything, f.state, "DEPENDENCY_NOT_SATISFIED", mock.AnythingOfType("string")).
		Return(true, nil)
	f.executions.On("FindByID", mock.Anything, f.exec.ID).Return(f.exec, nil)
	f.executions.On("Update", mock.Anything, mock.AnythingOfType("ingestion.Execution")).Return(nil)
	f.audits.On("Append", mock.Anything, mock.MatchedBy(func(rec *ingestion.AuditRecord) bool {
		return rec.Status == ingestion.ExecutionOutcomeFailed
	})).Return(nil)
	f.progress.On("OnUnitFinished", mock.Anything, f.task, ingestion.ExecutionOutcomeFailed).Return(nil)

	// the policy already spent its bounded waits; attempts remain but no
	// queue redelivery may follow
	f.pool.handleFailure(context.Background(), f.task, f.state, ingestion.ErrDependencyNotSatisfied, time.Second)

	f.states.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.states.AssertExpectations(t)
	f.progress.AssertExpectations(t)
	assert.Equal(t, 0, f.queue.Len())
}

func TestHandleFailure_LostRetryRace(t *testing.T) {
	f := newPoolFixture(t)

	f.states.On("ScheduleRetry", mock.Anything, f.state, mock.AnythingOfType("time.Time"), "SOURCE_UNAVAILABLE", mock.AnythingOfType("string")).
		Return(false, nil)

	f.pool.handleFailure(context.Background(), f.task, f.state, source.ErrSourceUnavailable, time.Second)

	assert.Equal(t, 0, f.queue.Len())
	f.executions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.audits.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestProcess_DuplicateDeliveryIsSkipped(t *testing.T) {
	f := newPoolFixture(t)
	f.state.Status = ingestion.UnitStatusCompleted

	f.states.On("Acquire", mock.Anything, f.task.RequestID, source.EventTypeOrders, f.task.SourceID, mock.AnythingOfType("time.Time")).
		Return(ingestion.AcquireSkip, f.state, nil)
	f.audits.On("Append", mock.Anything, mock.MatchedBy(func(rec *ingestion.AuditRecord) bool {
		return rec.Status == ingestion.ExecutionOutcomeSkipped
	})).Return(nil)

	f.pool.process(context.Background(), f.task)

	f.audits.AssertExpectations(t)
	f.progress.AssertNotCalled(t, "OnUnitFinished", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_NotDueRequeuesDelayed(t *testing.T) {
	f := newPoolFixture(t)
	f.state.Status = ingestion.UnitStatusRetryScheduled
	next := time.Now().Add(30 * time.Millisecond)
	f.state.NextAttemptAt = &next

	f.states.On("Acquire", mock.Anything, f.task.RequestID, source.EventTypeOrders, f.task.SourceID, mock.AnythingOfType("time.Time")).
		Return(ingestion.AcquireNotDue, f.state, nil)

	f.pool.process(context.Background(), f.task)

	require.Eventually(t, func() bool { return f.queue.Len() == 1 }, time.Second, 5*time.Millisecond)
	f.audits.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestBackoffFor_DoublesUpToMax(t *testing.T) {
	f := newPoolFixture(t)

	assert.Equal(t, 20*time.Millisecond, f.pool.backoffFor(1))
	assert.Equal(t, 40*time.Millisecond, f.pool.backoffFor(2))
	assert.Equal(t, 80*time.Millisecond, f.pool.backoffFor(3))
	assert.Equal(t, 100*time.Millisecond, f.pool.backoffFor(4))
	assert.Equal(t, 100*time.Millisecond, f.pool.backoffFor(10))
}
