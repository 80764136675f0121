package ingestion

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerpulse/backend/internal/domain/source"
)

func newTestEvent(t *testing.T) Event {
	ev, err := NewEvent(uuid.New(), source.EventTypeOrders, "api", dayStart(), dayStart().AddDate(0, 0, 1), time.Now())
	require.NoError(t, err)
	return ev
}

func dayStart() time.Time {
	return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
}

func TestEventStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  EventStatus
		isValid bool
	}{
		{EventStatusReceived, true},
		{EventStatusInProgress, true},
		{EventStatusMaterializationPending, true},
		{EventStatusCompleted, true},
		{EventStatusFailed, true},
		{EventStatusCancelled, true},
		{EventStatus("INVALID"), false},
		{EventStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestEventStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     EventStatus
		to       EventStatus
		canTrans bool
	}{
		{EventStatusReceived, EventStatusInProgress, true},
		{EventStatusReceived, EventStatusCancelled, true},
		{EventStatusReceived, EventStatusCompleted, false},
		{EventStatusInProgress, EventStatusMaterializationPending, true},
		{EventStatusInProgress, EventStatusCompleted, true},
		{EventStatusInProgress, EventStatusFailed, true},
		{EventStatusInProgress, EventStatusReceived, false},
		{EventStatusMaterializationPending, EventStatusCompleted, true},
		{EventStatusMaterializationPending, EventStatusFailed, true},
		{EventStatusMaterializationPending, EventStatusInProgress, false},
		{EventStatusCompleted, EventStatusFailed, false},
		{EventStatusCompleted, EventStatusInProgress, false},
		{EventStatusCancelled, EventStatusInProgress, false},
		{EventStatusCancelled, EventStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.canTrans, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestNewEvent_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewEvent(uuid.Nil, source.EventTypeOrders, "api", dayStart(), dayStart(), now)
	assert.Error(t, err)

	_, err = NewEvent(uuid.New(), source.EventType("BOGUS"), "api", dayStart(), dayStart(), now)
	assert.Error(t, err)

	ev, err := NewEvent(uuid.New(), source.EventTypeStocks, "scheduler", dayStart(), dayStart(), now)
	require.NoError(t, err)
	assert.Equal(t, EventStatusReceived, ev.Status)
	assert.Equal(t, now, ev.CreatedAt)
	assert.Equal(t, 1, ev.Replication)
}

func TestEvent_WithReplication(t *testing.T) {
	ev := newTestEvent(t)

	assert.Equal(t, 3, ev.WithReplication(3).Replication)
	assert.Equal(t, 1, ev.WithReplication(0).Replication)
	assert.Equal(t, 1, ev.WithReplication(-2).Replication)
	// receiver untouched
	assert.Equal(t, 1, ev.Replication)
}

func TestEvent_TransitionsAreImmutable(t *testing.T) {
	ev := newTestEvent(t)
	later := ev.CreatedAt.Add(time.Minute)

	started, err := ev.Start(later)
	require.NoError(t, err)

	// receiver untouched
	assert.Equal(t, EventStatusReceived, ev.Status)
	assert.Equal(t, EventStatusInProgress, started.Status)
	assert.Equal(t, later, started.UpdatedAt)
}

func TestEvent_FullLifecycle(t *testing.T) {
	ev := newTestEvent(t)
	now := time.Now()

	started, err := ev.Start(now)
	require.NoError(t, err)

	pending, err := started.AwaitMaterialization(now)
	require.NoError(t, err)

	done, err := pending.Complete(EventOutcomePartialSuccess, now)
	require.NoError(t, err)
	assert.Equal(t, EventStatusCompleted, done.Status)
	assert.Equal(t, EventOutcomePartialSuccess, done.Outcome)
}

func TestEvent_TerminalStatesRejectAllTransitions(t *testing.T) {
	ev := newTestEvent(t)
	now := time.Now()

	started, err := ev.Start(now)
	require.NoError(t, err)
	done, err := started.Complete(EventOutcomeSuccess, now)
	require.NoError(t, err)

	_, err = done.Start(now)
	assertIllegal(t, err)
	_, err = done.Fail(now)
	assertIllegal(t, err)
	_, err = done.Cancel(now)
	assertIllegal(t, err)

	cancelled, err := ev.Cancel(now)
	require.NoError(t, err)
	_, err = cancelled.Start(now)
	assertIllegal(t, err)
	_, err = cancelled.Complete(EventOutcomeSuccess, now)
	assertIllegal(t, err)
}

func TestEvent_MissingIDRejected(t *testing.T) {
	var zero Event
	_, err := zero.Start(time.Now())
	assertIllegal(t, err)
}

func assertIllegal(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var illegal *IllegalStateTransitionError
	assert.ErrorAs(t, err, &illegal)
}
