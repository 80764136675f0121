package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DimProduct is the product dictionary, merged from raw_products.
// request_id records which ingestion run last touched the row, so a
// re-materialized run overwrites its own writes instead of duplicating.
type DimProduct struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_dim_products_key,priority:1"`
	Marketplace string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_dim_products_key,priority:2"`
	ExternalID  string    `gorm:"type:varchar(128);not null;uniqueIndex:uq_dim_products_key,priority:3"`
	Name        string    `gorm:"type:varchar(512)"`
	Barcode     string    `gorm:"type:varchar(64)"`
	CategoryID  string    `gorm:"type:varchar(64)"`
	Brand       string    `gorm:"type:varchar(128)"`
	RequestID   uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DimProduct) TableName() string {
	return "dim_products"
}

// DimWarehouse is the warehouse dictionary. Warehouses are marketplace-wide,
// not account-scoped; role distinguishes fulfillment from seller warehouses.
type DimWarehouse struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Marketplace string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_dim_warehouses_key,priority:1"`
	Role        string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_dim_warehouses_key,priority:2"`
	ExternalID  string    `gorm:"type:varchar(128);not null;uniqueIndex:uq_dim_warehouses_key,priority:3"`
	Name        string    `gorm:"type:varchar(256)"`
	Region      string    `gorm:"type:varchar(128)"`
	RequestID   uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DimWarehouse) TableName() string {
	return "dim_warehouses"
}

// DimCategory is the marketplace category dictionary
type DimCategory struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Marketplace string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_dim_categories_key,priority:1"`
	ExternalID  string    `gorm:"type:varchar(128);not null;uniqueIndex:uq_dim_categories_key,priority:2"`
	Name        string    `gorm:"type:varchar(256)"`
	ParentID    string    `gorm:"type:varchar(128)"`
	RequestID   uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DimCategory) TableName() string {
	return "dim_categories"
}

// CommissionTariff is the slowly-changing commission dimension. Exactly one
// open version (valid_to IS NULL) exists per natural key; closing a version
// sets valid_to just below the successor's valid_from so the intervals never
// overlap.
type CommissionTariff struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Marketplace string          `gorm:"type:varchar(32);not null;index:idx_tariffs_key,priority:1"`
	CategoryID  string          `gorm:"type:varchar(128);not null;index:idx_tariffs_key,priority:2"`
	TariffType  string          `gorm:"type:varchar(64);not null;index:idx_tariffs_key,priority:3"`
	Percent     decimal.Decimal `gorm:"type:numeric(8,4);not null"`
	ValidFrom   time.Time       `gorm:"not null"`
	ValidTo     *time.Time
	RequestID   uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CommissionTariff) TableName() string {
	return "commission_tariffs"
}

// FactOrder is an order line merged from raw_orders, newest payload wins
type FactOrder struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fact_orders_key,priority:1"`
	Marketplace   string          `gorm:"type:varchar(32);not null;uniqueIndex:uq_fact_orders_key,priority:2"`
	ExternalID    string          `gorm:"type:varchar(128);not null;uniqueIndex:uq_fact_orders_key,priority:3"`
	ProductID     string          `gorm:"type:varchar(128)"`
	WarehouseID   string          `gorm:"type:varchar(128)"`
	Status        string          `gorm:"type:varchar(64)"`
	Quantity      int             `gorm:"not null;default:0"`
	Price         decimal.Decimal `gorm:"type:numeric(14,2)"`
	OrderedAt     time.Time       `gorm:"not null;index:idx_fact_orders_date"`
	SourceEventAt time.Time       `gorm:"not null"`
	RequestID     uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FactOrder) TableName() string {
	return "fact_orders"
}

// FactStock is a stock level observation, one row per product/warehouse/day
type FactStock struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_fact_stocks_key,priority:1"`
	Marketplace string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_fact_stocks_key,priority:2"`
	ProductID   string    `gorm:"type:varchar(128);not null;uniqueIndex:uq_fact_stocks_key,priority:3"`
	WarehouseID string    `gorm:"type:varchar(128);not null;uniqueIndex:uq_fact_stocks_key,priority:4"`
	StockDate   time.Time `gorm:"type:date;not null;uniqueIndex:uq_fact_stocks_key,priority:5"`
	Available   int       `gorm:"not null;default:0"`
	Reserved    int       `gorm:"not null;default:0"`
	InTransit   int       `gorm:"not null;default:0"`
	RequestID   uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FactStock) TableName() string {
	return "fact_stocks"
}

// FactFinance is a financial transaction line (sales, commissions, logistics,
// penalties) merged from raw_finance
type FactFinance struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fact_finance_key,priority:1"`
	Marketplace   string          `gorm:"type:varchar(32);not null;uniqueIndex:uq_fact_finance_key,priority:2"`
	ExternalID    string          `gorm:"type:varchar(128);not null;uniqueIndex:uq_fact_finance_key,priority:3"`
	OperationType string          `gorm:"type:varchar(64);not null"`
	OrderID       string          `gorm:"type:varchar(128)"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency      string          `gorm:"type:char(3);not null;default:'RUB'"`
	PostedAt      time.Time       `gorm:"not null;index:idx_fact_finance_date"`
	RequestID     uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FactFinance) TableName() string {
	return "fact_finance"
}
