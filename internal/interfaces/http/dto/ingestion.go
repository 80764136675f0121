package dto

import "time"

// TriggerIngestionRequest starts an ingestion run for one account
type TriggerIngestionRequest struct {
	AccountID         string     `json:"account_id" binding:"required,uuid"`
	EventType         string     `json:"event_type" binding:"required,eventtype"`
	ReplicationFactor int        `json:"replication_factor" binding:"omitempty,min=1,max=16"`
	DateFrom          *time.Time `json:"date_from"`
	DateTo            *time.Time `json:"date_to"`
}
