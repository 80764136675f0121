package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// GormMaterializationRepository merges raw landing rows into the dimensional
// model. Source adapters write normalized JSON elements, so the merge
// statements extract well-known keys from the payload.
//
// Every statement is idempotent with respect to request_id: re-running the
// merge for the same run recomputes the same target rows, newest payload
// winning, without duplicating anything.
type GormMaterializationRepository struct {
	db *gorm.DB
}

// NewGormMaterializationRepository creates a new GormMaterializationRepository
func NewGormMaterializationRepository(db *gorm.DB) *GormMaterializationRepository {
	return &GormMaterializationRepository{db: db}
}

// MergeFromRaw materializes all raw rows of one ingestion run for the given
// event type and returns the number of target rows written
func (r *GormMaterializationRepository) MergeFromRaw(ctx context.Context, eventType source.EventType, requestID uuid.UUID) (int64, error) {
	switch eventType {
	case source.EventTypeProducts:
		return r.mergeProducts(ctx, requestID)
	case source.EventTypeWarehouses:
		return r.mergeWarehouses(ctx, requestID)
	case source.EventTypeCategories:
		return r.mergeCategories(ctx, requestID)
	case source.EventTypeOrders:
		return r.mergeOrders(ctx, requestID)
	case source.EventTypeStocks:
		return r.mergeStocks(ctx, requestID)
	case source.EventTypeFinance:
		return r.mergeFinance(ctx, requestID)
	case source.EventTypeTariffs:
		return r.applyTariffs(ctx, requestID)
	default:
		return 0, fmt.Errorf("no materialization target for event type %s", eventType)
	}
}

func (r *GormMaterializationRepository) mergeProducts(ctx context.Context, requestID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		INSERT INTO dim_products (id, account_id, marketplace, external_id, name, barcode, category_id, brand, request_id, created_at, updated_at)
		SELECT DISTINCT ON (account_id, marketplace, payload->>'external_id')
			gen_random_uuid(),
			account_id,
			marketplace,
			payload->>'external_id',
			COALESCE(payload->>'name', ''),
			COALESCE(payload->>'barcode', ''),
			COALESCE(payload->>'category_id', ''),
			COALESCE(payload->>'brand', ''),
			request_id,
			NOW(),
			NOW()
		FROM raw_products
		WHERE request_id = ? AND payload->>'external_id' IS NOT NULL
		ORDER BY account_id, marketplace, payload->>'external_id', loaded_at DESC
		ON CONFLICT (account_id, marketplace, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			barcode = EXCLUDED.barcode,
			category_id = EXCLUDED.category_id,
			brand = EXCLUDED.brand,
			request_id = EXCLUDED.request_id,
			updated_at = NOW()
	`, requestID)
	return result.RowsAffected, result.Error
}

func (r *GormMaterializationRepository) mergeWarehouses(ctx context.Context, requestID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		INSERT INTO dim_warehouses (id, marketplace, role, external_id, name, region, request_id, created_at, updated_at)
		SELECT DISTINCT ON (marketplace, payload->>'role', payload->>'external_id')
			gen_random_uuid(),
			marketplace,
			COALESCE(payload->>'role', 'FULFILLMENT'),
			payload->>'external_id',
			COALESCE(payload->>'name', ''),
			COALESCE(payload->>'region', ''),
			request_id,
			NOW(),
			NOW()
		FROM raw_warehouses
		WHERE request_id = ? AND payload->>'external_id' IS NOT NULL
		ORDER BY marketplace, payload->>'role', payload->>'external_id', loaded_at DESC
		ON CONFLICT (marketplace, role, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			region = EXCLUDED.region,
			request_id = EXCLUDED.request_id,
			updated_at = NOW()
	`, requestID)
	return result.RowsAffected, result.Error
}

func (r *GormMaterializationRepository) mergeCategories(ctx context.Context, requestID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		INSERT INTO dim_categories (id, marketplace, external_id, name, parent_id, request_id, created_at, updated_at)
		SELECT DISTINCT ON (marketplace, payload->>'external_id')
			gen_random_uuid(),
			marketplace,
			payload->>'external_id',
			COALESCE(payload->>'name', ''),
			COALESCE(payload->>'parent_id', ''),
			request_id,
			NOW(),
			NOW()
		FROM raw_categories
		WHERE request_id = ? AND payload->>'external_id' IS NOT NULL
		ORDER BY marketplace, payload->>'external_id', loaded_at DESC
		ON CONFLICT (marketplace, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			parent_id = EXCLUDED.parent_id,
			request_id = EXCLUDED.request_id,
			updated_at = NOW()
	`, requestID)
	return result.RowsAffected, result.Error
}

func (r *GormMaterializationRepository) mergeOrders(ctx context.Context, requestID uuid.UUID) (int64, error) {
	// event_at orders duplicate observations of the same order line so the
	// freshest marketplace status wins
	result := r.db.WithContext(ctx).Exec(`
		INSERT INTO fact_orders (id, account_id, marketplace, external_id, product_id, warehouse_id, status, quantity, price, ordered_at, source_event_at, request_id, created_at, updated_at)
		SELECT DISTINCT ON (account_id, marketplace, payload->>'external_id')
			gen_random_uuid(),
			account_id,
			marketplace,
			payload->>'external_id',
			COALESCE(payload->>'product_id', ''),
			COALESCE(payload->>'warehouse_id', ''),
			COALESCE(payload->>'status', ''),
			COALESCE((payload->>'quantity')::int, 0),
			COALESCE((payload->>'price')::numeric, 0),
			(payload->>'ordered_at')::timestamptz,
			COALESCE((payload->>'event_at')::timestamptz, (payload->>'ordered_at')::timestamptz),
			request_id,
			NOW(),
			NOW()
		FROM raw_orders
		WHERE request_id = ? AND payload->>'external_id' IS NOT NULL AND payload->>'ordered_at' IS NOT NULL
		ORDER BY account_id, marketplace, payload->>'external_id', (payload->>'event_at')::timestamptz DESC NULLS LAST, loaded_at DESC
		ON CONFLICT (account_id, marketplace, external_id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			warehouse_id = EXCLUDED.warehouse_id,
			status = EXCLUDED.status,
			quantity = EXCLUDED.quantity,
			price = EXCLUDED.price,
			source_event_at = EXCLUDED.source_event_at,
			request_id = EXCLUDED.request_id,
			updated_at = NOW()
		WHERE EXCLUDED.source_event_at >= fact_orders.source_event_at
	`, requestID)
	return result.RowsAffected, result.Error
}

func (r *GormMaterializationRepository) mergeStocks(ctx context.Context, requestID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		INSERT INTO fact_stocks (id, account_id, marketplace, product_id, warehouse_id, stock_date, available, reserved, in_transit, request_id, created_at, updated_at)
		SELECT DISTINCT ON (account_id, marketplace, payload->>'product_id', payload->>'warehouse_id', (payload->>'stock_date')::date)
			gen_random_uuid(),
			account_id,
			marketplace,
			payload->>'product_id',
			payload->>'warehouse_id',
			(payload->>'stock_date')::date,
			COALESCE((payload->>'available')::int, 0),
			COALESCE((payload->>'reserved')::int, 0),
			COALESCE((payload->>'in_transit')::int, 0),
			request_id,
			NOW(),
			NOW()
		FROM raw_stocks
		WHERE request_id = ?
			AND payload->>'product_id' IS NOT NULL
			AND payload->>'warehouse_id' IS NOT NULL
			AND payload->>'stock_date' IS NOT NULL
		ORDER BY account_id, marketplace, payload->>'product_id', payload->>'warehouse_id', (payload->>'stock_date')::date, loaded_at DESC
		ON CONFLICT (account_id, marketplace, product_id, warehouse_id, stock_date) DO UPDATE SET
			available = EXCLUDED.available,
			reserved = EXCLUDED.reserved,
			in_transit = EXCLUDED.in_transit,
			request_id = EXCLUDED.request_id,
			updated_at = NOW()
	`, requestID)
	return result.RowsAffected, result.Error
}

func (r *GormMaterializationRepository) mergeFinance(ctx context.Context, requestID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		INSERT INTO fact_finance (id, account_id, marketplace, external_id, operation_type, order_id, amount, currency, posted_at, request_id, created_at, updated_at)
		SELECT DISTINCT ON (account_id, marketplace, payload->>'external_id')
			gen_random_uuid(),
			account_id,
			marketplace,
			payload->>'external_id',
			COALESCE(payload->>'operation_type', ''),
			COALESCE(payload->>'order_id', ''),
			COALESCE((payload->>'amount')::numeric, 0),
			COALESCE(payload->>'currency', 'RUB'),
			(payload->>'posted_at')::timestamptz,
			request_id,
			NOW(),
			NOW()
		FROM raw_finance
		WHERE request_id = ? AND payload->>'external_id' IS NOT NULL AND payload->>'posted_at' IS NOT NULL
		ORDER BY account_id, marketplace, payload->>'external_id', loaded_at DESC
		ON CONFLICT (account_id, marketplace, external_id) DO UPDATE SET
			operation_type = EXCLUDED.operation_type,
			order_id = EXCLUDED.order_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			posted_at = EXCLUDED.posted_at,
			request_id = EXCLUDED.request_id,
			updated_at = NOW()
	`, requestID)
	return result.RowsAffected, result.Error
}

// applyTariffs maintains the slowly-changing commission dimension. A changed
// rate closes the open version at one microsecond before the successor's
// valid_from, then the successor is inserted as the new open version. The
// partial unique index on (marketplace, category_id, tariff_type) WHERE
// valid_to IS NULL makes replays of the same run insert nothing.
func (r *GormMaterializationRepository) applyTariffs(ctx context.Context, requestID uuid.UUID) (int64, error) {
	var total int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed := tx.Exec(`
			UPDATE commission_tariffs t
			SET valid_to = i.valid_from - interval '1 microsecond'
			FROM (
				SELECT DISTINCT ON (marketplace, payload->>'category_id', payload->>'tariff_type')
					marketplace,
					payload->>'category_id' AS category_id,
					payload->>'tariff_type' AS tariff_type,
					(payload->>'percent')::numeric AS percent,
					(payload->>'valid_from')::timestamptz AS valid_from
				FROM raw_tariffs
				WHERE request_id = ?
					AND payload->>'category_id' IS NOT NULL
					AND payload->>'tariff_type' IS NOT NULL
					AND payload->>'valid_from' IS NOT NULL
				ORDER BY marketplace, payload->>'category_id', payload->>'tariff_type', loaded_at DESC
			) i
			WHERE t.marketplace = i.marketplace
				AND t.category_id = i.category_id
				AND t.tariff_type = i.tariff_type
				AND t.valid_to IS NULL
				AND t.percent <> i.percent
				AND i.valid_from > t.valid_from
		`, requestID)
		if closed.Error != nil {
			return closed.Error
		}

		inserted := tx.Exec(`
			INSERT INTO commission_tariffs (id, marketplace, category_id, tariff_type, percent, valid_from, valid_to, request_id, created_at)
			SELECT gen_random_uuid(), i.marketplace, i.category_id, i.tariff_type, i.percent, i.valid_from, NULL, ?, NOW()
			FROM (
				SELECT DISTINCT ON (marketplace, payload->>'category_id', payload->>'tariff_type')
					marketplace,
					payload->>'category_id' AS category_id,
					payload->>'tariff_type' AS tariff_type,
					(payload->>'percent')::numeric AS percent,
					(payload->>'valid_from')::timestamptz AS valid_from
				FROM raw_tariffs
				WHERE request_id = ?
					AND payload->>'category_id' IS NOT NULL
					AND payload->>'tariff_type' IS NOT NULL
					AND payload->>'valid_from' IS NOT NULL
				ORDER BY marketplace, payload->>'category_id', payload->>'tariff_type', loaded_at DESC
			) i
			ON CONFLICT (marketplace, category_id, tariff_type) WHERE valid_to IS NULL DO NOTHING
		`, requestID, requestID)
		if inserted.Error != nil {
			return inserted.Error
		}

		total = closed.RowsAffected + inserted.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
