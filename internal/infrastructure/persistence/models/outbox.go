package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/shared"
)

// OutboxEntryModel is the persistence model for outbox entries
type OutboxEntryModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	AccountID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_outbox_account"`
	EventID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_outbox_event"`
	EventType     string     `gorm:"type:varchar(128);not null"`
	AggregateID   uuid.UUID  `gorm:"type:uuid;not null"`
	AggregateType string     `gorm:"type:varchar(64);not null"`
	Payload       []byte     `gorm:"type:jsonb;not null"`
	Status        string     `gorm:"type:varchar(32);not null;index:idx_outbox_status_created,priority:1"`
	RetryCount    int        `gorm:"not null;default:0"`
	MaxRetries    int        `gorm:"not null;default:5"`
	LastError     string     `gorm:"type:text"`
	NextRetryAt   *time.Time `gorm:"index:idx_outbox_next_retry"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEntryModel) TableName() string {
	return "outbox_entries"
}

// ToDomain converts the persistence model to a domain OutboxEntry
func (m *OutboxEntryModel) ToDomain() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:            m.ID,
		AccountID:     m.AccountID,
		EventID:       m.EventID,
		EventType:     m.EventType,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		Payload:       m.Payload,
		Status:        shared.OutboxStatus(m.Status),
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		LastError:     m.LastError,
		NextRetryAt:   m.NextRetryAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain OutboxEntry
func (m *OutboxEntryModel) FromDomain(e *shared.OutboxEntry) {
	m.ID = e.ID
	m.AccountID = e.AccountID
	m.EventID = e.EventID
	m.EventType = e.EventType
	m.AggregateID = e.AggregateID
	m.AggregateType = e.AggregateType
	m.Payload = e.Payload
	m.Status = string(e.Status)
	m.RetryCount = e.RetryCount
	m.MaxRetries = e.MaxRetries
	m.LastError = e.LastError
	m.NextRetryAt = e.NextRetryAt
	m.ProcessedAt = e.ProcessedAt
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}
