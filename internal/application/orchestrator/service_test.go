package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/account"
	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/queue"
)

// MockAccountRepository is a mock implementation of account.Repository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepository) FindActive(ctx context.Context) ([]account.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]account.Account), args.Error(1)
}

// MockEventRepository is a mock implementation of ingestion.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Save(ctx context.Context, event ingestion.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) Update(ctx context.Context, event ingestion.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) UpdateWithEvents(ctx context.Context, event ingestion.Event, events ...shared.DomainEvent) error {
	args := m.Called(ctx, event, events)
	return args.Error(0)
}

func (m *MockEventRepository) FindByID(ctx context.Context, id uuid.UUID) (ingestion.Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(ingestion.Event), args.Error(1)
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

// MockAuditRepository is a mock implementation of ingestion.AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, record *ingestion.AuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAuditRepository) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]ingestion.AuditRecord, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ingestion.AuditRecord), args.Error(1)
}

func (m *MockAuditRepository) HasSuccessfulExecution(ctx context.Context, accountID uuid.UUID, eventType source.EventType, marketplace source.Marketplace) (bool, error) {
	args := m.Called(ctx, accountID, eventType, marketplace)
	return args.Bool(0), args.Error(1)
}

type serviceFixture struct {
	accounts   *MockAccountRepository
	events     *MockEventRepository
	executions *MockExecutionRepository
	states     *MockStateRepository
	audits     *MockAuditRepository
	queue      *queue.MemoryWorkQueue
	service    *Service
}

func newServiceFixture(t *testing.T, registry *source.Registry) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		accounts:   new(MockAccountRepository),
		events:     new(MockEventRepository),
		executions: new(MockExecutionRepository),
		states:     new(MockStateRepository),
		audits:     new(MockAuditRepository),
		queue:      queue.NewMemoryWorkQueue(16),
	}
	t.Cleanup(f.queue.Close)
	f.service = NewService(
		f.accounts, f.events, f.executions, f.states, f.audits,
		NewPlanner(registry, 3), f.queue, zap.NewNop(),
	)
	return f
}

func activeAccount(id uuid.UUID, marketplaces ...source.Marketplace) *account.Account {
	acc := &account.Account{ID: id, Name: "Test Seller", Status: account.StatusActive}
	for _, mp := range marketplaces {
		acc.Marketplaces = append(acc.Marketplaces, account.MarketplaceLink{
			ID: uuid.New(), AccountID: id, Marketplace: mp, Active: true,
		})
	}
	return acc
}

func ordersRegistry() *source.Registry {
	registry := source.NewRegistry()
	registry.Register(source.EventTypeOrders, source.MarketplaceWildberries,
		staticSource{id: "wb-orders-v2", table: "raw_orders"},
		staticSource{id: "wb-orders-archive-v1", table: "raw_orders"},
	)
	registry.Register(source.EventTypeOrders, source.MarketplaceOzon,
		staticSource{id: "ozon-postings-v3", table: "raw_orders"},
	)
	return registry
}

func TestTriggerIngestion_ReleasesFirstUnitPerMarketplace(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	accountID := uuid.New()

	f.accounts.On("FindByID", mock.Anything, accountID).
		Return(activeAccount(accountID, source.MarketplaceWildberries, source.MarketplaceOzon), nil)
	f.events.On("Save", mock.Anything, mock.AnythingOfType("ingestion.Event")).Return(nil)
	f.executions.On("Save", mock.Anything, mock.AnythingOfType("ingestion.Execution")).Return(nil).Times(3)
	f.states.On("Save", mock.Anything, mock.AnythingOfType("*ingestion.SourceExecutionState")).Return(nil).Times(3)
	f.events.On("Update", mock.Anything, mock.MatchedBy(func(ev ingestion.Event) bool {
		return ev.Status == ingestion.EventStatusInProgress
	})).Return(nil)

	now := time.Now()
	run, err := f.service.TriggerIngestion(context.Background(), TriggerCommand{
		AccountID:   accountID,
		EventType:   source.EventTypeOrders,
		SourceLabel: "api",
		DateFrom:    now.Add(-24 * time.Hour),
		DateTo:      now,
	})

	require.NoError(t, err)
	assert.Equal(t, ingestion.EventStatusInProgress.String(), run.Status)
	assert.Len(t, run.Executions, 3)

	// only the head of each marketplace chain is enqueued
	require.Equal(t, 2, f.queue.Len())
	released := map[string]bool{}
	for i := 0; i < 2; i++ {
		task, err := f.queue.Consume(context.Background())
		require.NoError(t, err)
		assert.Equal(t, run.ID, task.RequestID)
		assert.Equal(t, 1, task.Attempt)
		released[task.SourceID] = true
	}
	assert.True(t, released["wb-orders-v2"])
	assert.True(t, released["ozon-postings-v3"])

	f.events.AssertExpectations(t)
	f.executions.AssertExpectations(t)
	f.states.AssertExpectations(t)
}

func TestTriggerIngestion_InactiveAccount(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	accountID := uuid.New()
	acc := activeAccount(accountID, source.MarketplaceWildberries)
	acc.Status = account.StatusInactive

	f.accounts.On("FindByID", mock.Anything, accountID).Return(acc, nil)

	now := time.Now()
	_, err := f.service.TriggerIngestion(context.Background(), TriggerCommand{
		AccountID: accountID,
		EventType: source.EventTypeOrders,
		DateFrom:  now.Add(-time.Hour),
		DateTo:    now,
	})

	assert.ErrorIs(t, err, ingestion.ErrNoActiveMarketplace)
	assert.Equal(t, 0, f.queue.Len())
	f.events.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTriggerIngestion_InvertedDateWindow(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())

	now := time.Now()
	_, err := f.service.TriggerIngestion(context.Background(), TriggerCommand{
		AccountID: uuid.New(),
		EventType: source.EventTypeOrders,
		DateFrom:  now,
		DateTo:    now.Add(-time.Hour),
	})

	require.Error(t, err)
	f.accounts.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestTriggerIngestion_NoSourcesFailsEvent(t *testing.T) {
	f := newServiceFixture(t, source.NewRegistry())
	accountID := uuid.New()

	f.accounts.On("FindByID", mock.Anything, accountID).
		Return(activeAccount(accountID, source.MarketplaceWildberries), nil)
	f.events.On("Save", mock.Anything, mock.AnythingOfType("ingestion.Event")).Return(nil)
	f.events.On("UpdateWithEvents", mock.Anything, mock.MatchedBy(func(ev ingestion.Event) bool {
		return ev.Status == ingestion.EventStatusFailed
	}), mock.Anything).Return(nil)

	now := time.Now()
	_, err := f.service.TriggerIngestion(context.Background(), TriggerCommand{
		AccountID: accountID,
		EventType: source.EventTypeOrders,
		DateFrom:  now.Add(-time.Hour),
		DateTo:    now,
	})

	assert.ErrorIs(t, err, source.ErrNoSourcesForEvent)
	f.events.AssertExpectations(t)
}

// chainFixture builds one in-progress event with a two-unit Wildberries chain
type chainFixture struct {
	ev     ingestion.Event
	execs  []ingestion.Execution
	states map[string]*ingestion.SourceExecutionState
}

func newChainFixture(t *testing.T) *chainFixture {
	t.Helper()
	now := time.Now()
	ev, err := ingestion.NewEvent(uuid.New(), source.EventTypeOrders, "api", now.Add(-24*time.Hour), now, now)
	require.NoError(t, err)
	ev, err = ev.Start(now)
	require.NoError(t, err)

	first, err := ingestion.NewExecution(ev.ID, source.MarketplaceWildberries, "wb-orders-v2", 0, now)
	require.NoError(t, err)
	second, err := ingestion.NewExecution(ev.ID, source.MarketplaceWildberries, "wb-orders-archive-v1", 1, now)
	require.NoError(t, err)

	states := map[string]*ingestion.SourceExecutionState{}
	for _, x := range []ingestion.Execution{first, second} {
		states[x.SourceID] = ingestion.NewSourceExecutionState(
			ev.ID, ev.AccountID, ev.EventType, x.Marketplace, x.SourceID, 3, now)
	}
	return &chainFixture{ev: ev, execs: []ingestion.Execution{first, second}, states: states}
}

func (c *chainFixture) taskFor(sourceID string) *queue.ExecutionTask {
	for _, x := range c.execs {
		if x.SourceID == sourceID {
			return &queue.ExecutionTask{
				RequestID:   c.ev.ID,
				EventID:     c.ev.ID,
				ExecutionID: x.ID,
				AccountID:   c.ev.AccountID,
				EventType:   c.ev.EventType.String(),
				Marketplace: x.Marketplace.String(),
				SourceID:    x.SourceID,
				Attempt:     1,
			}
		}
	}
	return nil
}

func TestOnUnitFinished_ReleasesChainSuccessor(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	chain := newChainFixture(t)
	chain.states["wb-orders-v2"].Status = ingestion.UnitStatusCompleted

	f.executions.On("FindByEventID", mock.Anything, chain.ev.ID).Return(chain.execs, nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, "wb-orders-v2").
		Return(chain.states["wb-orders-v2"], nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, "wb-orders-archive-v1").
		Return(chain.states["wb-orders-archive-v1"], nil)
	f.events.On("FindByID", mock.Anything, chain.ev.ID).Return(chain.ev, nil)
	f.audits.On("FindByRequestID", mock.Anything, chain.ev.ID).Return([]ingestion.AuditRecord{}, nil)

	err := f.service.OnUnitFinished(context.Background(), chain.taskFor("wb-orders-v2"), ingestion.ExecutionOutcomeSuccess)

	require.NoError(t, err)
	require.Equal(t, 1, f.queue.Len())
	task, err := f.queue.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wb-orders-archive-v1", task.SourceID)

	// second unit is still NEW, the event stays open
	f.events.AssertNotCalled(t, "UpdateWithEvents", mock.Anything, mock.Anything, mock.Anything)
}

func TestOnUnitFinished_SuccessorAlreadyTouched(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	chain := newChainFixture(t)
	chain.states["wb-orders-v2"].Status = ingestion.UnitStatusCompleted
	chain.states["wb-orders-archive-v1"].Status = ingestion.UnitStatusInProgress

	f.executions.On("FindByEventID", mock.Anything, chain.ev.ID).Return(chain.execs, nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, "wb-orders-v2").
		Return(chain.states["wb-orders-v2"], nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, "wb-orders-archive-v1").
		Return(chain.states["wb-orders-archive-v1"], nil)
	f.audits.On("FindByRequestID", mock.Anything, chain.ev.ID).Return([]ingestion.AuditRecord{}, nil)

	err := f.service.OnUnitFinished(context.Background(), chain.taskFor("wb-orders-v2"), ingestion.ExecutionOutcomeSuccess)

	require.NoError(t, err)
	assert.Equal(t, 0, f.queue.Len())
}

func TestOnUnitFinished_ClosesWithAggregateOutcome(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	chain := newChainFixture(t)
	chain.states["wb-orders-v2"].Status = ingestion.UnitStatusCompleted
	chain.states["wb-orders-archive-v1"].Status = ingestion.UnitStatusCompleted

	records := []ingestion.AuditRecord{
		*ingestion.NewAuditRecord(chain.ev.ID, chain.ev.AccountID, chain.ev.EventType,
			source.MarketplaceWildberries, "wb-orders-v2", ingestion.ExecutionOutcomeSuccess, 120, ""),
		// a redelivered duplicate leaves a SKIPPED entry that must not mask the verdict
		*ingestion.NewAuditRecord(chain.ev.ID, chain.ev.AccountID, chain.ev.EventType,
			source.MarketplaceWildberries, "wb-orders-v2", ingestion.ExecutionOutcomeSkipped, 0, ""),
		*ingestion.NewAuditRecord(chain.ev.ID, chain.ev.AccountID, chain.ev.EventType,
			source.MarketplaceWildberries, "wb-orders-archive-v1", ingestion.ExecutionOutcomeNoData, 0, ""),
	}

	f.executions.On("FindByEventID", mock.Anything, chain.ev.ID).Return(chain.execs, nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, "wb-orders-v2").
		Return(chain.states["wb-orders-v2"], nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, "wb-orders-archive-v1").
		Return(chain.states["wb-orders-archive-v1"], nil)
	f.events.On("FindByID", mock.Anything, chain.ev.ID).Return(chain.ev, nil)
	f.audits.On("FindByRequestID", mock.Anything, chain.ev.ID).Return(records, nil)
	f.events.On("UpdateWithEvents", mock.Anything, mock.MatchedBy(func(ev ingestion.Event) bool {
		return ev.Status == ingestion.EventStatusMaterializationPending &&
			ev.Outcome == ingestion.EventOutcomePartialSuccess
	}), mock.MatchedBy(func(events []shared.DomainEvent) bool {
		if len(events) != 1 {
			return false
		}
		requested, ok := events[0].(*ingestion.MaterializationRequestedEvent)
		return ok && len(requested.Marketplace) == 1 && requested.Marketplace[0] == "WILDBERRIES"
	})).Return(nil)

	err := f.service.OnUnitFinished(context.Background(), chain.taskFor("wb-orders-archive-v1"), ingestion.ExecutionOutcomeNoData)

	require.NoError(t, err)
	f.events.AssertExpectations(t)
}

func TestOnUnitFinished_MixedNoDataAndFailureClosesPartial(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	chain := newChainFixture(t)
	chain.states["wb-orders-v2"].Status = ingestion.UnitStatusCompleted
	chain.states["wb-orders-archive-v1"].Status = ingestion.UnitStatusFailedTerminal

	records := []ingestion.AuditRecord{
		*ingestion.NewAuditRecord(chain.ev.ID, chain.ev.AccountID, chain.ev.EventType,
			source.MarketplaceWildberries, "wb-orders-v2", ingestion.ExecutionOutcomeNoData, 0, ""),
		*ingestion.NewAuditRecord(chain.ev.ID, chain.ev.AccountID, chain.ev.EventType,
			source.MarketplaceWildberries, "wb-orders-archive-v1", ingestion.ExecutionOutcomeFailed, 0, "gateway 500"),
	}

	f.executions.On("FindByEventID", mock.Anything, chain.ev.ID).Return(chain.execs, nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, "wb-orders-v2").
		Return(chain.states["wb-orders-v2"], nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, "wb-orders-archive-v1").
		Return(chain.states["wb-orders-archive-v1"], nil)
	f.events.On("FindByID", mock.Anything, chain.ev.ID).Return(chain.ev, nil)
	f.audits.On("FindByRequestID", mock.Anything, chain.ev.ID).Return(records, nil)

	// not all failed and not all empty: the mixed run must not collapse to NO_DATA
	f.events.On("UpdateWithEvents", mock.Anything, mock.MatchedBy(func(ev ingestion.Event) bool {
		return ev.Status == ingestion.EventStatusCompleted &&
			ev.Outcome == ingestion.EventOutcomePartialSuccess
	}), mock.MatchedBy(func(events []shared.DomainEvent) bool {
		_, ok := events[0].(*ingestion.EventClosedEvent)
		return len(events) == 1 && ok
	})).Return(nil)

	err := f.service.OnUnitFinished(context.Background(), chain.taskFor("wb-orders-archive-v1"), ingestion.ExecutionOutcomeFailed)

	require.NoError(t, err)
	f.events.AssertExpectations(t)
}

func TestOnUnitFinished_AllFailedClosesFailed(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	chain := newChainFixture(t)
	chain.states["wb-orders-v2"].Status = ingestion.UnitStatusFailedTerminal
	chain.states["wb-orders-archive-v1"].Status = ingestion.UnitStatusFailedTerminal

	f.executions.On("FindByEventID", mock.Anything, chain.ev.ID).Return(chain.execs, nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, mock.Anything).
		Return(chain.states["wb-orders-v2"], nil)
	f.events.On("FindByID", mock.Anything, chain.ev.ID).Return(chain.ev, nil)
	f.audits.On("FindByRequestID", mock.Anything, chain.ev.ID).Return([]ingestion.AuditRecord{}, nil)
	f.events.On("UpdateWithEvents", mock.Anything, mock.MatchedBy(func(ev ingestion.Event) bool {
		return ev.Status == ingestion.EventStatusFailed && ev.Outcome == ingestion.EventOutcomeFailed
	}), mock.MatchedBy(func(events []shared.DomainEvent) bool {
		_, ok := events[0].(*ingestion.EventClosedEvent)
		return len(events) == 1 && ok
	})).Return(nil)

	err := f.service.OnUnitFinished(context.Background(), chain.taskFor("wb-orders-archive-v1"), ingestion.ExecutionOutcomeFailed)

	require.NoError(t, err)
	f.events.AssertExpectations(t)
}

func TestOnUnitFinished_DuplicateClosureAbsorbed(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	chain := newChainFixture(t)
	chain.states["wb-orders-v2"].Status = ingestion.UnitStatusCompleted
	chain.states["wb-orders-archive-v1"].Status = ingestion.UnitStatusCompleted

	pending, err := chain.ev.AwaitMaterialization(time.Now())
	require.NoError(t, err)

	f.executions.On("FindByEventID", mock.Anything, chain.ev.ID).Return(chain.execs, nil)
	f.states.On("Find", mock.Anything, chain.ev.ID, chain.ev.EventType, mock.Anything).
		Return(chain.states["wb-orders-v2"], nil)
	f.events.On("FindByID", mock.Anything, chain.ev.ID).Return(pending, nil)
	f.audits.On("FindByRequestID", mock.Anything, chain.ev.ID).Return([]ingestion.AuditRecord{}, nil)

	err = f.service.OnUnitFinished(context.Background(), chain.taskFor("wb-orders-archive-v1"), ingestion.ExecutionOutcomeSuccess)

	require.NoError(t, err)
	f.events.AssertNotCalled(t, "UpdateWithEvents", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelRun(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	chain := newChainFixture(t)

	f.events.On("FindByID", mock.Anything, chain.ev.ID).Return(chain.ev, nil)
	f.events.On("UpdateWithEvents", mock.Anything, mock.MatchedBy(func(ev ingestion.Event) bool {
		return ev.Status == ingestion.EventStatusCancelled
	}), mock.Anything).Return(nil)

	run, err := f.service.CancelRun(context.Background(), chain.ev.ID)

	require.NoError(t, err)
	assert.Equal(t, ingestion.EventStatusCancelled.String(), run.Status)
	f.events.AssertExpectations(t)
}

func TestCancelRun_AlreadyTerminal(t *testing.T) {
	f := newServiceFixture(t, ordersRegistry())
	chain := newChainFixture(t)
	completed, err := chain.ev.AwaitMaterialization(time.Now())
	require.NoError(t, err)
	completed, err = completed.Complete(ingestion.EventOutcomeSuccess, time.Now())
	require.NoError(t, err)

	f.events.On("FindByID", mock.Anything, chain.ev.ID).Return(completed, nil)

	_, err = f.service.CancelRun(context.Background(), chain.ev.ID)

	var illegal *ingestion.IllegalStateTransitionError
	assert.ErrorAs(t, err, &illegal)
	f.events.AssertNotCalled(t, "UpdateWithEvents", mock.Anything, mock.Anything, mock.Anything)
}
