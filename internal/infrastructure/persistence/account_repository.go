package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sellerpulse/backend/internal/domain/account"
	"github.com/sellerpulse/backend/internal/domain/shared"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
)

// GormAccountRepository implements account.Repository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByID finds an account with its marketplace links
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).
		Preload("Marketplaces").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive returns all active accounts with their marketplace links
func (r *GormAccountRepository) FindActive(ctx context.Context) ([]account.Account, error) {
	var rows []models.AccountModel
	if err := r.db.WithContext(ctx).
		Preload("Marketplaces").
		Where("status = ?", account.StatusActive).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	accounts := make([]account.Account, len(rows))
	for i := range rows {
		accounts[i] = *rows[i].ToDomain()
	}
	return accounts, nil
}
