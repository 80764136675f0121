package source

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrSourceUnavailable indicates the marketplace endpoint is temporarily down
	ErrSourceUnavailable = errors.New("source: marketplace temporarily unavailable")
	// ErrSourceRateLimited indicates the marketplace rejected the call with a
	// throttling response (HTTP 429 or equivalent)
	ErrSourceRateLimited = errors.New("source: marketplace rate limited")
	// ErrSourceInvalidResponse indicates the payload could not be understood
	ErrSourceInvalidResponse = errors.New("source: invalid marketplace response")
	// ErrNoSourcesForEvent indicates no source is registered for an
	// (event type, marketplace) pair
	ErrNoSourcesForEvent = errors.New("source: no sources registered for event")
)

// ---------------------------------------------------------------------------
// EventType
// ---------------------------------------------------------------------------

// EventType identifies one kind of seller data ingested from a marketplace
type EventType string

const (
	// EventTypeProducts is the product dictionary (catalog)
	EventTypeProducts EventType = "PRODUCTS"
	// EventTypeWarehouses is the marketplace warehouse dictionary
	EventTypeWarehouses EventType = "WAREHOUSES"
	// EventTypeCategories is the marketplace category dictionary
	EventTypeCategories EventType = "CATEGORIES"
	// EventTypeOrders is order facts for a date window
	EventTypeOrders EventType = "ORDERS"
	// EventTypeStocks is stock-level facts per warehouse
	EventTypeStocks EventType = "STOCKS"
	// EventTypeFinance is finance transaction facts
	EventTypeFinance EventType = "FINANCE"
	// EventTypeTariffs is commission tariffs (SCD2 versioned)
	EventTypeTariffs EventType = "TARIFFS"
)

// IsValid returns true if the event type is known
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeProducts, EventTypeWarehouses, EventTypeCategories,
		EventTypeOrders, EventTypeStocks, EventTypeFinance, EventTypeTariffs:
		return true
	default:
		return false
	}
}

// String returns the string representation of EventType
func (t EventType) String() string {
	return string(t)
}

// IsDictionary returns true for dictionary-style event types that are
// refreshed on a schedule rather than per date window
func (t EventType) IsDictionary() bool {
	switch t {
	case EventTypeProducts, EventTypeWarehouses, EventTypeCategories:
		return true
	default:
		return false
	}
}

// Dependencies returns the event types that must have at least one successful
// execution for the same account/marketplace before this event type may
// materialize. Dictionaries have none.
func (t EventType) Dependencies() []EventType {
	switch t {
	case EventTypeOrders, EventTypeFinance, EventTypeTariffs:
		return []EventType{EventTypeProducts}
	case EventTypeStocks:
		return []EventType{EventTypeProducts, EventTypeWarehouses}
	default:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Marketplace
// ---------------------------------------------------------------------------

// Marketplace identifies an external marketplace platform
type Marketplace string

const (
	// MarketplaceWildberries represents the Wildberries seller API
	MarketplaceWildberries Marketplace = "WILDBERRIES"
	// MarketplaceOzon represents the Ozon seller API
	MarketplaceOzon Marketplace = "OZON"
	// MarketplaceYandexMarket represents the Yandex Market partner API
	MarketplaceYandexMarket Marketplace = "YANDEX_MARKET"
)

// IsValid returns true if the marketplace is known
func (m Marketplace) IsValid() bool {
	switch m {
	case MarketplaceWildberries, MarketplaceOzon, MarketplaceYandexMarket:
		return true
	default:
		return false
	}
}

// String returns the string representation of Marketplace
func (m Marketplace) String() string {
	return string(m)
}

// AllMarketplaces returns every known marketplace
func AllMarketplaces() []Marketplace {
	return []Marketplace{MarketplaceWildberries, MarketplaceOzon, MarketplaceYandexMarket}
}

// AllEventTypes returns every known event type
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeProducts, EventTypeWarehouses, EventTypeCategories,
		EventTypeOrders, EventTypeStocks, EventTypeFinance, EventTypeTariffs,
	}
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshot is one downloaded raw payload from a marketplace source.
// The backing file holds one JSON document per line. A nil continuation token
// means the source is exhausted.
type Snapshot struct {
	// ElementType names the raw record kind held by the file (e.g. "order")
	ElementType string
	// FilePath is the backing file on local disk
	FilePath string
	// SizeBytes is the size of the backing file; zero means no data
	SizeBytes int64
	// SourceURI is the marketplace endpoint the payload came from
	SourceURI string
	// ContinuationToken carries pagination state; nil when exhausted
	ContinuationToken *string
}

// IsEmpty returns true when the snapshot holds no data
func (s *Snapshot) IsEmpty() bool {
	return s.SizeBytes == 0
}

// FetchWindow is the account/date scope of one snapshot fetch
type FetchWindow struct {
	AccountID uuid.UUID
	DateFrom  time.Time
	DateTo    time.Time
}

// ---------------------------------------------------------------------------
// Source port
// ---------------------------------------------------------------------------

// Source is the capability of fetching raw marketplace data as snapshots.
// Concrete per-marketplace adapters live outside this module; the engine only
// depends on this port.
type Source interface {
	// ID uniquely identifies the source within the registry (e.g. "wb-orders-v2")
	ID() string
	// ElementType names the raw records this source produces
	ElementType() string
	// RawTable is the raw storage table raw records are persisted into
	RawTable() string
	// FetchSnapshots downloads raw data for the window, following pagination
	// until the continuation token is exhausted. Implementations return the
	// snapshots in fetch order.
	FetchSnapshots(ctx context.Context, window FetchWindow) ([]Snapshot, error)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry is the static catalogue mapping (event type, marketplace) to the
// ordered list of sources that produce its raw data. Order is a stable
// priority used to sequence execution within a marketplace.
type Registry struct {
	entries map[registryKey][]Source
}

type registryKey struct {
	eventType   EventType
	marketplace Marketplace
}

// NewRegistry creates an empty source registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[registryKey][]Source)}
}

// Register appends sources for an (event type, marketplace) pair, preserving
// registration order
func (r *Registry) Register(eventType EventType, marketplace Marketplace, sources ...Source) {
	key := registryKey{eventType: eventType, marketplace: marketplace}
	r.entries[key] = append(r.entries[key], sources...)
}

// FindSources returns the ordered source list for the pair, or
// ErrNoSourcesForEvent when none are registered
func (r *Registry) FindSources(eventType EventType, marketplace Marketplace) ([]Source, error) {
	sources, ok := r.entries[registryKey{eventType: eventType, marketplace: marketplace}]
	if !ok || len(sources) == 0 {
		return nil, ErrNoSourcesForEvent
	}
	out := make([]Source, len(sources))
	copy(out, sources)
	return out, nil
}
