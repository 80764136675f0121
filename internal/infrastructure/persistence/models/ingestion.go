package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// IngestionEventModel is the persistence model for ingestion events
type IngestionEventModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID   uuid.UUID `gorm:"type:uuid;not null;index:idx_ingestion_events_account"`
	EventType   string    `gorm:"type:varchar(32);not null;index:idx_ingestion_events_type"`
	SourceLabel string    `gorm:"type:varchar(64)"`
	PayloadRef  string    `gorm:"type:text"`
	Replication int       `gorm:"not null;default:1"`
	DateFrom    time.Time `gorm:"not null"`
	DateTo      time.Time `gorm:"not null"`
	Status      string    `gorm:"type:varchar(32);not null;index:idx_ingestion_events_status"`
	Outcome     string    `gorm:"type:varchar(32)"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IngestionEventModel) TableName() string {
	return "ingestion_events"
}

// ToDomain converts the persistence model to a domain Event
func (m *IngestionEventModel) ToDomain() ingestion.Event {
	return ingestion.Event{
		ID:          m.ID,
		AccountID:   m.AccountID,
		EventType:   source.EventType(m.EventType),
		SourceLabel: m.SourceLabel,
		PayloadRef:  m.PayloadRef,
		Replication: m.Replication,
		DateFrom:    m.DateFrom,
		DateTo:      m.DateTo,
		Status:      ingestion.EventStatus(m.Status),
		Outcome:     ingestion.EventOutcome(m.Outcome),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Event
func (m *IngestionEventModel) FromDomain(e ingestion.Event) {
	m.ID = e.ID
	m.AccountID = e.AccountID
	m.EventType = e.EventType.String()
	m.SourceLabel = e.SourceLabel
	m.PayloadRef = e.PayloadRef
	m.Replication = e.Replication
	m.DateFrom = e.DateFrom
	m.DateTo = e.DateTo
	m.Status = e.Status.String()
	m.Outcome = e.Outcome.String()
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// ExecutionModel is the persistence model for executions
type ExecutionModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID      uuid.UUID `gorm:"type:uuid;not null;index:idx_executions_event"`
	Marketplace  string    `gorm:"type:varchar(32);not null"`
	SourceID     string    `gorm:"type:varchar(64);not null"`
	OrderIndex   int       `gorm:"not null;default:0"`
	Status       string    `gorm:"type:varchar(32);not null"`
	Attempt      int       `gorm:"not null;default:1"`
	ScheduledFor time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ExecutionModel) TableName() string {
	return "ingestion_executions"
}

// ToDomain converts the persistence model to a domain Execution
func (m *ExecutionModel) ToDomain() ingestion.Execution {
	return ingestion.Execution{
		ID:           m.ID,
		EventID:      m.EventID,
		Marketplace:  source.Marketplace(m.Marketplace),
		SourceID:     m.SourceID,
		OrderIndex:   m.OrderIndex,
		Status:       ingestion.ExecutionStatus(m.Status),
		Attempt:      m.Attempt,
		ScheduledFor: m.ScheduledFor,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Execution
func (m *ExecutionModel) FromDomain(x ingestion.Execution) {
	m.ID = x.ID
	m.EventID = x.EventID
	m.Marketplace = x.Marketplace.String()
	m.SourceID = x.SourceID
	m.OrderIndex = x.OrderIndex
	m.Status = x.Status.String()
	m.Attempt = x.Attempt
	m.ScheduledFor = x.ScheduledFor
	m.CreatedAt = x.CreatedAt
	m.UpdatedAt = x.UpdatedAt
}

// SourceExecutionStateModel is the durable CAS-guarded unit record
type SourceExecutionStateModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RequestID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_source_exec_unit,priority:1"`
	AccountID        uuid.UUID  `gorm:"type:uuid;not null"`
	EventType        string     `gorm:"type:varchar(32);not null;uniqueIndex:uq_source_exec_unit,priority:2"`
	Marketplace      string     `gorm:"type:varchar(32);not null"`
	SourceID         string     `gorm:"type:varchar(64);not null;uniqueIndex:uq_source_exec_unit,priority:3"`
	Status           string     `gorm:"type:varchar(32);not null;index:idx_source_exec_status"`
	Attempt          int        `gorm:"not null;default:1"`
	MaxAttempts      int        `gorm:"not null"`
	NextAttemptAt    *time.Time `gorm:"index:idx_source_exec_next_attempt"`
	LastErrorCode    string     `gorm:"type:varchar(64)"`
	LastErrorMessage string     `gorm:"type:text"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SourceExecutionStateModel) TableName() string {
	return "source_execution_states"
}

// ToDomain converts the persistence model to a domain SourceExecutionState
func (m *SourceExecutionStateModel) ToDomain() *ingestion.SourceExecutionState {
	return &ingestion.SourceExecutionState{
		ID:               m.ID,
		RequestID:        m.RequestID,
		AccountID:        m.AccountID,
		EventType:        source.EventType(m.EventType),
		Marketplace:      source.Marketplace(m.Marketplace),
		SourceID:         m.SourceID,
		Status:           ingestion.UnitStatus(m.Status),
		Attempt:          m.Attempt,
		MaxAttempts:      m.MaxAttempts,
		NextAttemptAt:    m.NextAttemptAt,
		LastErrorCode:    m.LastErrorCode,
		LastErrorMessage: m.LastErrorMessage,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain SourceExecutionState
func (m *SourceExecutionStateModel) FromDomain(s *ingestion.SourceExecutionState) {
	m.ID = s.ID
	m.RequestID = s.RequestID
	m.AccountID = s.AccountID
	m.EventType = s.EventType.String()
	m.Marketplace = s.Marketplace.String()
	m.SourceID = s.SourceID
	m.Status = s.Status.String()
	m.Attempt = s.Attempt
	m.MaxAttempts = s.MaxAttempts
	m.NextAttemptAt = s.NextAttemptAt
	m.LastErrorCode = s.LastErrorCode
	m.LastErrorMessage = s.LastErrorMessage
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// AuditRecordModel is the append-only audit trail row
type AuditRecordModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestID    uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_request"`
	AccountID    uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_account_event,priority:1"`
	EventType    string    `gorm:"type:varchar(32);not null;index:idx_audit_account_event,priority:2"`
	Marketplace  string    `gorm:"type:varchar(32);not null;index:idx_audit_account_event,priority:3"`
	SourceID     string    `gorm:"type:varchar(64);not null"`
	Status       string    `gorm:"type:varchar(32);not null"`
	RowsCount    int64     `gorm:"not null;default:0"`
	ErrorMessage string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditRecordModel) TableName() string {
	return "ingestion_audit"
}

// ToDomain converts the persistence model to a domain AuditRecord
func (m *AuditRecordModel) ToDomain() ingestion.AuditRecord {
	return ingestion.AuditRecord{
		ID:           m.ID,
		RequestID:    m.RequestID,
		AccountID:    m.AccountID,
		EventType:    source.EventType(m.EventType),
		Marketplace:  source.Marketplace(m.Marketplace),
		SourceID:     m.SourceID,
		Status:       ingestion.ExecutionOutcome(m.Status),
		RowsCount:    m.RowsCount,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain AuditRecord
func (m *AuditRecordModel) FromDomain(r *ingestion.AuditRecord) {
	m.ID = r.ID
	m.RequestID = r.RequestID
	m.AccountID = r.AccountID
	m.EventType = r.EventType.String()
	m.Marketplace = r.Marketplace.String()
	m.SourceID = r.SourceID
	m.Status = r.Status.String()
	m.RowsCount = r.RowsCount
	m.ErrorMessage = r.ErrorMessage
	m.CreatedAt = r.CreatedAt
}
