package ingestion

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// AuditRecord is one append-only entry in the ingestion audit trail.
// The dependency policy reads it to decide whether prerequisite event types
// already succeeded; operators read it to see what happened to a request.
type AuditRecord struct {
	ID           uuid.UUID
	RequestID    uuid.UUID
	AccountID    uuid.UUID
	EventType    source.EventType
	Marketplace  source.Marketplace
	SourceID     string
	Status       ExecutionOutcome
	RowsCount    int64
	ErrorMessage string
	CreatedAt    time.Time
}

// NewAuditRecord creates an audit entry for one execution outcome
func NewAuditRecord(requestID, accountID uuid.UUID, eventType source.EventType, marketplace source.Marketplace, sourceID string, status ExecutionOutcome, rowsCount int64, errorMessage string) *AuditRecord {
	return &AuditRecord{
		ID:           uuid.New(),
		RequestID:    requestID,
		AccountID:    accountID,
		EventType:    eventType,
		Marketplace:  marketplace,
		SourceID:     sourceID,
		Status:       status,
		RowsCount:    rowsCount,
		ErrorMessage: errorMessage,
		CreatedAt:    time.Now(),
	}
}
