package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
)

// GormEventRepository implements ingestion.EventRepository using GORM
type GormEventRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormEventRepository creates a new GormEventRepository
func NewGormEventRepository(db *gorm.DB, outboxSaver shared.OutboxEventSaver) *GormEventRepository {
	return &GormEventRepository{db: db, outboxSaver: outboxSaver}
}

// Save inserts a new ingestion event
func (r *GormEventRepository) Save(ctx context.Context, event ingestion.Event) error {
	var model models.IngestionEventModel
	model.FromDomain(event)
	return r.db.WithContext(ctx).Create(&model).Error
}

// Update persists a state change of an existing ingestion event
func (r *GormEventRepository) Update(ctx context.Context, event ingestion.Event) error {
	var model models.IngestionEventModel
	model.FromDomain(event)

	result := r.db.WithContext(ctx).
		Model(&models.IngestionEventModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"status":     model.Status,
			"outcome":    model.Outcome,
			"updated_at": model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateWithEvents persists the event state change and saves the domain
// events to the outbox within the same transaction
func (r *GormEventRepository) UpdateWithEvents(ctx context.Context, event ingestion.Event, events ...shared.DomainEvent) error {
	var model models.IngestionEventModel
	model.FromDomain(event)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.IngestionEventModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]interface{}{
				"status":     model.Status,
				"outcome":    model.Outcome,
				"updated_at": model.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}

		if r.outboxSaver != nil && len(events) > 0 {
			if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return fmt.Errorf("failed to save events to outbox: %w", err)
			}
		}
		return nil
	})
}

// FindByID finds an ingestion event by its ID
func (r *GormEventRepository) FindByID(ctx context.Context, id uuid.UUID) (ingestion.Event, error) {
	var model models.IngestionEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ingestion.Event{}, shared.ErrNotFound
		}
		return ingestion.Event{}, err
	}
	return model.ToDomain(), nil
}
