package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// RawRecordRow is the shape shared by every raw landing table
// (raw_products, raw_orders, raw_stocks, ...). The physical table is chosen
// per write via Table(); GORM never auto-migrates this struct directly.
//
// record_hash is the content hash of the payload; the unique
// (snapshot_id, record_hash) pair makes batch replays after a crash insert
// zero duplicate rows.
type RawRecordRow struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	RequestID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	SnapshotID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_raw_snapshot_hash,priority:1"`
	AccountID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Marketplace string          `gorm:"type:varchar(32);not null"`
	RecordHash  string          `gorm:"type:char(64);not null;uniqueIndex:uq_raw_snapshot_hash,priority:2"`
	Payload     json.RawMessage `gorm:"type:jsonb;not null"`
	LoadedAt    time.Time       `gorm:"not null"`
}

// RawTableNames lists every raw landing table, used by migrations and the
// retention sweeper.
var RawTableNames = []string{
	"raw_products",
	"raw_warehouses",
	"raw_categories",
	"raw_orders",
	"raw_stocks",
	"raw_finance",
	"raw_tariffs",
}

// RawTableFor maps an event type to its raw landing table
func RawTableFor(eventType source.EventType) string {
	switch eventType {
	case source.EventTypeProducts:
		return "raw_products"
	case source.EventTypeWarehouses:
		return "raw_warehouses"
	case source.EventTypeCategories:
		return "raw_categories"
	case source.EventTypeOrders:
		return "raw_orders"
	case source.EventTypeStocks:
		return "raw_stocks"
	case source.EventTypeFinance:
		return "raw_finance"
	case source.EventTypeTariffs:
		return "raw_tariffs"
	default:
		return ""
	}
}
