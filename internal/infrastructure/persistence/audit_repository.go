package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
)

// GormAuditRepository implements ingestion.AuditRepository using GORM
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append inserts an audit record. The table is append-only; records are
// never updated or deleted by the engine.
func (r *GormAuditRepository) Append(ctx context.Context, record *ingestion.AuditRecord) error {
	var model models.AuditRecordModel
	model.FromDomain(record)
	return r.db.WithContext(ctx).Create(&model).Error
}

// FindByRequestID returns all audit records of one ingestion run in
// insertion order
func (r *GormAuditRepository) FindByRequestID(ctx context.Context, requestID uuid.UUID) ([]ingestion.AuditRecord, error) {
	var rows []models.AuditRecordModel
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]ingestion.AuditRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}

// HasSuccessfulExecution reports whether the account/marketplace pair has at
// least one successful run of the event type on record
func (r *GormAuditRepository) HasSuccessfulExecution(ctx context.Context, accountID uuid.UUID, eventType source.EventType, marketplace source.Marketplace) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AuditRecordModel{}).
		Where("account_id = ? AND event_type = ? AND marketplace = ? AND status = ?",
			accountID, eventType.String(), marketplace.String(), ingestion.ExecutionOutcomeSuccess.String()).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
