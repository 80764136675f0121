package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// newMockStateRepository creates a GormSourceExecutionStateRepository with a mocked SQL connection
func newMockStateRepository(t *testing.T) (*GormSourceExecutionStateRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormSourceExecutionStateRepository(gormDB), mock, mockDB
}

func stateColumns() []string {
	return []string{
		"id", "request_id", "account_id", "event_type", "marketplace", "source_id",
		"status", "attempt", "max_attempts", "next_attempt_at",
		"last_error_code", "last_error_message", "created_at", "updated_at",
	}
}

func stateRow(id, requestID uuid.UUID, status ingestion.UnitStatus, attempt int, nextAttemptAt *time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(stateColumns()).
		AddRow(id, requestID, uuid.New(), "ORDERS", "OZON", "ozon-orders-v3",
			status.String(), attempt, 5, nextAttemptAt, "", "", now, now)
}

func TestGormSourceExecutionStateRepository_Acquire(t *testing.T) {
	requestID := uuid.New()
	stateID := uuid.New()
	now := time.Now()

	t.Run("acquires NEW unit", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "source_execution_states" WHERE request_id = \$1 AND event_type = \$2 AND source_id = \$3 ORDER BY .* LIMIT .*`).
			WithArgs(requestID, "ORDERS", "ozon-orders-v3", 1).
			WillReturnRows(stateRow(stateID, requestID, ingestion.UnitStatusNew, 1, nil))

		mock.ExpectExec(`UPDATE "source_execution_states" SET .* WHERE id = \$\d+ AND status = \$\d+ AND attempt = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, state, err := repo.Acquire(context.Background(), requestID, source.EventTypeOrders, "ozon-orders-v3", now)

		require.NoError(t, err)
		assert.Equal(t, ingestion.AcquireOK, result)
		assert.Equal(t, ingestion.UnitStatusInProgress, state.Status)
		assert.Equal(t, 1, state.Attempt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loses the race to a concurrent duplicate", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "source_execution_states" WHERE .*`).
			WithArgs(requestID, "ORDERS", "ozon-orders-v3", 1).
			WillReturnRows(stateRow(stateID, requestID, ingestion.UnitStatusNew, 1, nil))

		// the other delivery already moved the row, guard matches nothing
		mock.ExpectExec(`UPDATE "source_execution_states" SET .*`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		result, _, err := repo.Acquire(context.Background(), requestID, source.EventTypeOrders, "ozon-orders-v3", now)

		require.NoError(t, err)
		assert.Equal(t, ingestion.AcquireSkip, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips unit already in progress without touching the row", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "source_execution_states" WHERE .*`).
			WithArgs(requestID, "ORDERS", "ozon-orders-v3", 1).
			WillReturnRows(stateRow(stateID, requestID, ingestion.UnitStatusInProgress, 1, nil))

		result, _, err := repo.Acquire(context.Background(), requestID, source.EventTypeOrders, "ozon-orders-v3", now)

		require.NoError(t, err)
		assert.Equal(t, ingestion.AcquireSkip, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips completed unit", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "source_execution_states" WHERE .*`).
			WithArgs(requestID, "ORDERS", "ozon-orders-v3", 1).
			WillReturnRows(stateRow(stateID, requestID, ingestion.UnitStatusCompleted, 1, nil))

		result, _, err := repo.Acquire(context.Background(), requestID, source.EventTypeOrders, "ozon-orders-v3", now)

		require.NoError(t, err)
		assert.Equal(t, ingestion.AcquireSkip, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports not due for a future retry", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		future := now.Add(30 * time.Second)
		mock.ExpectQuery(`SELECT \* FROM "source_execution_states" WHERE .*`).
			WithArgs(requestID, "ORDERS", "ozon-orders-v3", 1).
			WillReturnRows(stateRow(stateID, requestID, ingestion.UnitStatusRetryScheduled, 2, &future))

		result, state, err := repo.Acquire(context.Background(), requestID, source.EventTypeOrders, "ozon-orders-v3", now)

		require.NoError(t, err)
		assert.Equal(t, ingestion.AcquireNotDue, result)
		assert.Equal(t, ingestion.UnitStatusRetryScheduled, state.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("acquires a due retry at the recorded attempt", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		past := now.Add(-time.Second)
		mock.ExpectQuery(`SELECT \* FROM "source_execution_states" WHERE .*`).
			WithArgs(requestID, "ORDERS", "ozon-orders-v3", 1).
			WillReturnRows(stateRow(stateID, requestID, ingestion.UnitStatusRetryScheduled, 3, &past))

		mock.ExpectExec(`UPDATE "source_execution_states" SET .*`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, state, err := repo.Acquire(context.Background(), requestID, source.EventTypeOrders, "ozon-orders-v3", now)

		require.NoError(t, err)
		assert.Equal(t, ingestion.AcquireOK, result)
		assert.Equal(t, ingestion.UnitStatusInProgress, state.Status)
		assert.Equal(t, 3, state.Attempt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for unknown unit", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "source_execution_states" WHERE .*`).
			WithArgs(requestID, "ORDERS", "ozon-orders-v3", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, _, err := repo.Acquire(context.Background(), requestID, source.EventTypeOrders, "ozon-orders-v3", now)

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormSourceExecutionStateRepository_ScheduleRetry(t *testing.T) {
	state := &ingestion.SourceExecutionState{
		ID:          uuid.New(),
		RequestID:   uuid.New(),
		EventType:   source.EventTypeStocks,
		Marketplace: source.MarketplaceWildberries,
		SourceID:    "wb-stocks-v1",
		Status:      ingestion.UnitStatusInProgress,
		Attempt:     2,
		MaxAttempts: 5,
	}

	t.Run("schedules retry and bumps attempt", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "source_execution_states" SET .* WHERE id = \$\d+ AND status = \$\d+ AND attempt = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		nextAt := time.Now().Add(45 * time.Second)
		ok, err := repo.ScheduleRetry(context.Background(), state, nextAt, "RATE_LIMITED", "429 from marketplace")

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ingestion.UnitStatusRetryScheduled, state.Status)
		assert.Equal(t, 3, state.Attempt)
		require.NotNil(t, state.NextAttemptAt)
		assert.Equal(t, nextAt, *state.NextAttemptAt)
		assert.Equal(t, "RATE_LIMITED", state.LastErrorCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports lost guard without mutating state", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		stale := &ingestion.SourceExecutionState{
			ID:      uuid.New(),
			Status:  ingestion.UnitStatusInProgress,
			Attempt: 1,
		}

		mock.ExpectExec(`UPDATE "source_execution_states" SET .*`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.ScheduleRetry(context.Background(), stale, time.Now().Add(time.Minute), "TIMEOUT", "deadline exceeded")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, ingestion.UnitStatusInProgress, stale.Status)
		assert.Equal(t, 1, stale.Attempt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSourceExecutionStateRepository_MarkCompleted(t *testing.T) {
	t.Run("completes owned unit", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		state := &ingestion.SourceExecutionState{
			ID:      uuid.New(),
			Status:  ingestion.UnitStatusInProgress,
			Attempt: 1,
		}

		mock.ExpectExec(`UPDATE "source_execution_states" SET .*`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.MarkCompleted(context.Background(), state)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ingestion.UnitStatusCompleted, state.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate completion reports false", func(t *testing.T) {
		repo, mock, mockDB := newMockStateRepository(t)
		defer mockDB.Close()

		state := &ingestion.SourceExecutionState{
			ID:      uuid.New(),
			Status:  ingestion.UnitStatusInProgress,
			Attempt: 1,
		}

		mock.ExpectExec(`UPDATE "source_execution_states" SET .*`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.MarkCompleted(context.Background(), state)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, ingestion.UnitStatusInProgress, state.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSourceExecutionStateRepository_MarkFailedTerminal(t *testing.T) {
	repo, mock, mockDB := newMockStateRepository(t)
	defer mockDB.Close()

	state := &ingestion.SourceExecutionState{
		ID:      uuid.New(),
		Status:  ingestion.UnitStatusInProgress,
		Attempt: 5,
	}

	mock.ExpectExec(`UPDATE "source_execution_states" SET .*`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkFailedTerminal(context.Background(), state, "ATTEMPTS_EXHAUSTED", "retry budget spent")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ingestion.UnitStatusFailedTerminal, state.Status)
	assert.Equal(t, "ATTEMPTS_EXHAUSTED", state.LastErrorCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
