package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
	"github.com/sellerpulse/backend/internal/infrastructure/snapshot"
)

// GormRawRecordRepository persists snapshot elements into the per-event raw
// landing tables. It implements snapshot.RawSink.
//
// Replay safety comes from the content hash: a batch re-sent after a crash
// hits the (snapshot_id, record_hash) unique index and inserts nothing.
type GormRawRecordRepository struct {
	db *gorm.DB
}

// NewGormRawRecordRepository creates a new GormRawRecordRepository
func NewGormRawRecordRepository(db *gorm.DB) *GormRawRecordRepository {
	return &GormRawRecordRepository{db: db}
}

// SaveBatch inserts one batch of raw elements into rawTable, skipping rows
// already present from an earlier delivery of the same snapshot
func (r *GormRawRecordRepository) SaveBatch(ctx context.Context, records []json.RawMessage, rawTable string, key snapshot.BatchKey) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]models.RawRecordRow, len(records))
	for i, payload := range records {
		digest := sha256.Sum256(payload)
		rows[i] = models.RawRecordRow{
			ID:          uuid.New(),
			RequestID:   key.RequestID,
			SnapshotID:  key.SnapshotID,
			AccountID:   key.AccountID,
			Marketplace: key.Marketplace.String(),
			RecordHash:  hex.EncodeToString(digest[:]),
			Payload:     payload,
			LoadedAt:    now,
		}
	}

	return r.db.WithContext(ctx).
		Table(rawTable).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "snapshot_id"}, {Name: "record_hash"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

// DeleteByRequestID removes all raw rows of one ingestion run from rawTable.
// The retention sweeper is its only caller.
func (r *GormRawRecordRepository) DeleteByRequestID(ctx context.Context, rawTable string, requestID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Table(rawTable).
		Where("request_id = ?", requestID).
		Delete(&models.RawRecordRow{})
	return result.RowsAffected, result.Error
}

// DeleteLoadedBefore removes raw rows older than the cutoff from rawTable
func (r *GormRawRecordRepository) DeleteLoadedBefore(ctx context.Context, rawTable string, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Table(rawTable).
		Where("loaded_at < ?", cutoff).
		Delete(&models.RawRecordRow{})
	return result.RowsAffected, result.Error
}
