package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
)

// GormExecutionRepository implements ingestion.ExecutionRepository using GORM
type GormExecutionRepository struct {
	db *gorm.DB
}

// NewGormExecutionRepository creates a new GormExecutionRepository
func NewGormExecutionRepository(db *gorm.DB) *GormExecutionRepository {
	return &GormExecutionRepository{db: db}
}

// Save inserts a new execution
func (r *GormExecutionRepository) Save(ctx context.Context, execution ingestion.Execution) error {
	var model models.ExecutionModel
	model.FromDomain(execution)
	return r.db.WithContext(ctx).Create(&model).Error
}

// Update persists a state change of an existing execution
func (r *GormExecutionRepository) Update(ctx context.Context, execution ingestion.Execution) error {
	var model models.ExecutionModel
	model.FromDomain(execution)

	result := r.db.WithContext(ctx).
		Model(&models.ExecutionModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"status":        model.Status,
			"attempt":       model.Attempt,
			"scheduled_for": model.ScheduledFor,
			"updated_at":    model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds an execution by its ID
func (r *GormExecutionRepository) FindByID(ctx context.Context, id uuid.UUID) (ingestion.Execution, error) {
	var model models.ExecutionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ingestion.Execution{}, shared.ErrNotFound
		}
		return ingestion.Execution{}, err
	}
	return model.ToDomain(), nil
}

// FindByEventID finds all executions of an event ordered by marketplace and
// plan position
func (r *GormExecutionRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) ([]ingestion.Execution, error) {
	var rows []models.ExecutionModel
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("marketplace ASC, order_index ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	executions := make([]ingestion.Execution, len(rows))
	for i := range rows {
		executions[i] = rows[i].ToDomain()
	}
	return executions, nil
}
