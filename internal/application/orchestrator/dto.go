package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// TriggerCommand requests ingestion of one event type for one account and
// date window. Replication below 1 means unspecified.
type TriggerCommand struct {
	AccountID   uuid.UUID        `json:"account_id"`
	EventType   source.EventType `json:"event_type"`
	SourceLabel string           `json:"source_label"`
	Replication int              `json:"replication"`
	DateFrom    time.Time        `json:"date_from"`
	DateTo      time.Time        `json:"date_to"`
}

// ExecutionView is the read model of one planned unit of work
type ExecutionView struct {
	ID           uuid.UUID `json:"id"`
	Marketplace  string    `json:"marketplace"`
	SourceID     string    `json:"source_id"`
	OrderIndex   int       `json:"order_index"`
	Status       string    `json:"status"`
	Attempt      int       `json:"attempt"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// RunView is the read model of one ingestion event and its executions
type RunView struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	EventType   string          `json:"event_type"`
	Status      string          `json:"status"`
	Outcome     string          `json:"outcome,omitempty"`
	Replication int             `json:"replication"`
	DateFrom    time.Time       `json:"date_from"`
	DateTo      time.Time       `json:"date_to"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Executions  []ExecutionView `json:"executions,omitempty"`
}

// AuditView is the read model of one audit trail entry
type AuditView struct {
	ID           uuid.UUID `json:"id"`
	EventType    string    `json:"event_type"`
	Marketplace  string    `json:"marketplace"`
	SourceID     string    `json:"source_id"`
	Status       string    `json:"status"`
	RowsCount    int64     `json:"rows_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toRunView(ev ingestion.Event, executions []ingestion.Execution) RunView {
	view := RunView{
		ID:          ev.ID,
		AccountID:   ev.AccountID,
		EventType:   ev.EventType.String(),
		Status:      ev.Status.String(),
		Outcome:     ev.Outcome.String(),
		Replication: ev.Replication,
		DateFrom:    ev.DateFrom,
		DateTo:      ev.DateTo,
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.UpdatedAt,
	}
	for _, x := range executions {
		view.Executions = append(view.Executions, ExecutionView{
			ID:           x.ID,
			Marketplace:  x.Marketplace.String(),
			SourceID:     x.SourceID,
			OrderIndex:   x.OrderIndex,
			Status:       x.Status.String(),
			Attempt:      x.Attempt,
			ScheduledFor: x.ScheduledFor,
		})
	}
	return view
}

func toAuditView(rec ingestion.AuditRecord) AuditView {
	return AuditView{
		ID:           rec.ID,
		EventType:    rec.EventType.String(),
		Marketplace:  rec.Marketplace.String(),
		SourceID:     rec.SourceID,
		Status:       rec.Status.String(),
		RowsCount:    rec.RowsCount,
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt,
	}
}
