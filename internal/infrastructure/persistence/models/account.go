package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/account"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// AccountModel is the persistence model for seller accounts
type AccountModel struct {
	ID           uuid.UUID              `gorm:"type:uuid;primaryKey"`
	Name         string                 `gorm:"type:varchar(256);not null"`
	Status       string                 `gorm:"type:varchar(32);not null;index:idx_accounts_status"`
	Marketplaces []MarketplaceLinkModel `gorm:"foreignKey:AccountID"`
	CreatedAt    time.Time              `gorm:"not null"`
	UpdatedAt    time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// MarketplaceLinkModel is the persistence model for account-marketplace links
type MarketplaceLinkModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_account_marketplace,priority:1"`
	Marketplace string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_account_marketplace,priority:2"`
	Active      bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceLinkModel) TableName() string {
	return "account_marketplaces"
}

// ToDomain converts the persistence model to a domain Account
func (m *AccountModel) ToDomain() *account.Account {
	links := make([]account.MarketplaceLink, len(m.Marketplaces))
	for i, link := range m.Marketplaces {
		links[i] = account.MarketplaceLink{
			ID:          link.ID,
			AccountID:   link.AccountID,
			Marketplace: source.Marketplace(link.Marketplace),
			Active:      link.Active,
			CreatedAt:   link.CreatedAt,
			UpdatedAt:   link.UpdatedAt,
		}
	}
	return &account.Account{
		ID:           m.ID,
		Name:         m.Name,
		Status:       account.Status(m.Status),
		Marketplaces: links,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
