package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// Status represents the status of a seller account
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// IsValid checks if the status is a valid account Status
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// MarketplaceLink connects an account to one marketplace it sells on.
// Credentials live in the excluded vaulting service; the engine only needs
// to know which marketplaces are active.
type MarketplaceLink struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Marketplace source.Marketplace
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Account is a customer seller account. Account CRUD lives in the excluded
// REST layer; this is the read model the planner and schedulers consume.
type Account struct {
	ID           uuid.UUID
	Name         string
	Status       Status
	Marketplaces []MarketplaceLink
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive returns true when the account is active
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// ActiveMarketplaces returns the marketplaces the account actively sells on
func (a *Account) ActiveMarketplaces() []source.Marketplace {
	out := make([]source.Marketplace, 0, len(a.Marketplaces))
	for _, link := range a.Marketplaces {
		if link.Active {
			out = append(out, link.Marketplace)
		}
	}
	return out
}

// Repository is the read-side account store
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindActive(ctx context.Context) ([]Account, error)
}
