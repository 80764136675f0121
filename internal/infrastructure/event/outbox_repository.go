package event

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Save persists an outbox entry, inside the caller's transaction when one is
// given. Writing the entry in the same transaction as the state change it
// announces is what makes delivery commit-coupled.
func (r *GormOutboxRepository) Save(ctx context.Context, tx interface{}, entry *shared.OutboxEntry) error {
	db := r.db
	if tx != nil {
		gormTx, ok := tx.(*gorm.DB)
		if !ok {
			return fmt.Errorf("unsupported transaction type %T", tx)
		}
		db = gormTx
	}

	var model models.OutboxEntryModel
	model.FromDomain(entry)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&model).Error
}

// FetchPending locks up to limit due entries with FOR UPDATE SKIP LOCKED,
// marks them PROCESSING and returns them. Competing dispatcher instances
// never pick up the same entry.
func (r *GormOutboxRepository) FetchPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var entries []*shared.OutboxEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.OutboxEntryModel
		now := time.Now()

		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("status = ? OR (status = ? AND next_retry_at <= ?)",
				shared.OutboxStatusPending, shared.OutboxStatusFailed, now).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		ids := make([]interface{}, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}

		if err := tx.Model(&models.OutboxEntryModel{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     shared.OutboxStatusProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		entries = make([]*shared.OutboxEntry, len(rows))
		for i := range rows {
			rows[i].Status = string(shared.OutboxStatusProcessing)
			rows[i].UpdatedAt = now
			entries[i] = rows[i].ToDomain()
		}
		return nil
	})

	return entries, err
}

// Update persists entry state changes
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	var model models.OutboxEntryModel
	model.FromDomain(entry)
	return r.db.WithContext(ctx).Save(&model).Error
}

// DeleteSentBefore removes sent entries older than the cutoff
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, cutoff).
		Delete(&models.OutboxEntryModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormOutboxRepository implements OutboxRepository
var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
