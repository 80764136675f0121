package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
)

// GormSourceExecutionStateRepository implements
// ingestion.SourceExecutionStateRepository using GORM. Every transition is a
// single UPDATE guarded by the (status, attempt) pair the caller observed;
// zero rows affected means another delivery won the race.
type GormSourceExecutionStateRepository struct {
	db *gorm.DB
}

// NewGormSourceExecutionStateRepository creates a new GormSourceExecutionStateRepository
func NewGormSourceExecutionStateRepository(db *gorm.DB) *GormSourceExecutionStateRepository {
	return &GormSourceExecutionStateRepository{db: db}
}

// Save inserts a NEW unit record. Duplicate natural keys return
// shared.ErrAlreadyExists without touching the existing row.
func (r *GormSourceExecutionStateRepository) Save(ctx context.Context, state *ingestion.SourceExecutionState) error {
	var model models.SourceExecutionStateModel
	model.FromDomain(state)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}, {Name: "event_type"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrAlreadyExists
	}
	return nil
}

// Find loads the unit by its natural key
func (r *GormSourceExecutionStateRepository) Find(ctx context.Context, requestID uuid.UUID, eventType source.EventType, sourceID string) (*ingestion.SourceExecutionState, error) {
	model, err := r.find(ctx, requestID, eventType, sourceID)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormSourceExecutionStateRepository) find(ctx context.Context, requestID uuid.UUID, eventType source.EventType, sourceID string) (*models.SourceExecutionStateModel, error) {
	var model models.SourceExecutionStateModel
	if err := r.db.WithContext(ctx).
		Where("request_id = ? AND event_type = ? AND source_id = ?", requestID, eventType.String(), sourceID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &model, nil
}

// Acquire attempts to take ownership of the unit for processing. Exactly one
// of N concurrent duplicate deliveries observes a row move to IN_PROGRESS;
// the rest see zero rows affected and report a skip.
func (r *GormSourceExecutionStateRepository) Acquire(ctx context.Context, requestID uuid.UUID, eventType source.EventType, sourceID string, now time.Time) (ingestion.AcquireResult, *ingestion.SourceExecutionState, error) {
	model, err := r.find(ctx, requestID, eventType, sourceID)
	if err != nil {
		return ingestion.AcquireSkip, nil, err
	}

	switch ingestion.UnitStatus(model.Status) {
	case ingestion.UnitStatusNew:
		// first delivery, guard on the initial attempt
	case ingestion.UnitStatusRetryScheduled:
		if model.NextAttemptAt != nil && model.NextAttemptAt.After(now) {
			return ingestion.AcquireNotDue, model.ToDomain(), nil
		}
	default:
		// IN_PROGRESS, COMPLETED or FAILED_TERMINAL: another delivery owns
		// or already finished the unit
		return ingestion.AcquireSkip, model.ToDomain(), nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.SourceExecutionStateModel{}).
		Where("id = ? AND status = ? AND attempt = ?", model.ID, model.Status, model.Attempt).
		Updates(map[string]interface{}{
			"status":     ingestion.UnitStatusInProgress.String(),
			"updated_at": now,
		})
	if result.Error != nil {
		return ingestion.AcquireSkip, nil, result.Error
	}
	if result.RowsAffected == 0 {
		return ingestion.AcquireSkip, model.ToDomain(), nil
	}

	model.Status = ingestion.UnitStatusInProgress.String()
	model.UpdatedAt = now
	return ingestion.AcquireOK, model.ToDomain(), nil
}

// ScheduleRetry moves an owned unit to RETRY_SCHEDULED with a bumped attempt
// counter and the time the next attempt becomes due
func (r *GormSourceExecutionStateRepository) ScheduleRetry(ctx context.Context, state *ingestion.SourceExecutionState, nextAttemptAt time.Time, errorCode, errorMessage string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SourceExecutionStateModel{}).
		Where("id = ? AND status = ? AND attempt = ?", state.ID, ingestion.UnitStatusInProgress.String(), state.Attempt).
		Updates(map[string]interface{}{
			"status":             ingestion.UnitStatusRetryScheduled.String(),
			"attempt":            state.Attempt + 1,
			"next_attempt_at":    nextAttemptAt,
			"last_error_code":    errorCode,
			"last_error_message": errorMessage,
			"updated_at":         now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	state.Status = ingestion.UnitStatusRetryScheduled
	state.Attempt++
	state.NextAttemptAt = &nextAttemptAt
	state.LastErrorCode = errorCode
	state.LastErrorMessage = errorMessage
	state.UpdatedAt = now
	return true, nil
}

// MarkCompleted moves an owned unit to its terminal COMPLETED state
func (r *GormSourceExecutionStateRepository) MarkCompleted(ctx context.Context, state *ingestion.SourceExecutionState) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SourceExecutionStateModel{}).
		Where("id = ? AND status = ? AND attempt = ?", state.ID, ingestion.UnitStatusInProgress.String(), state.Attempt).
		Updates(map[string]interface{}{
			"status":     ingestion.UnitStatusCompleted.String(),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	state.Status = ingestion.UnitStatusCompleted
	state.UpdatedAt = now
	return true, nil
}

// MarkFailedTerminal moves an owned unit to FAILED_TERMINAL once its retry
// budget is exhausted or the error is not retryable
func (r *GormSourceExecutionStateRepository) MarkFailedTerminal(ctx context.Context, state *ingestion.SourceExecutionState, errorCode, errorMessage string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SourceExecutionStateModel{}).
		Where("id = ? AND status = ? AND attempt = ?", state.ID, ingestion.UnitStatusInProgress.String(), state.Attempt).
		Updates(map[string]interface{}{
			"status":             ingestion.UnitStatusFailedTerminal.String(),
			"last_error_code":    errorCode,
			"last_error_message": errorMessage,
			"updated_at":         now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	state.Status = ingestion.UnitStatusFailedTerminal
	state.LastErrorCode = errorCode
	state.LastErrorMessage = errorMessage
	state.UpdatedAt = now
	return true, nil
}
