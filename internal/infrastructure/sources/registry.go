package sources

import (
	"strings"

	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
	"github.com/sellerpulse/backend/internal/infrastructure/storage"
)

// sourceSpec describes one gateway endpoint per event type. Some event types
// combine multiple endpoints per marketplace; registration order within a
// marketplace is the execution order.
type sourceSpec struct {
	eventType   source.EventType
	elementType string
	paths       []string
}

var specs = []sourceSpec{
	{eventType: source.EventTypeProducts, elementType: "product", paths: []string{"/v1/products"}},
	{eventType: source.EventTypeWarehouses, elementType: "warehouse", paths: []string{"/v1/warehouses"}},
	{eventType: source.EventTypeCategories, elementType: "category", paths: []string{"/v1/categories"}},
	{eventType: source.EventTypeOrders, elementType: "order", paths: []string{"/v1/orders"}},
	{eventType: source.EventTypeStocks, elementType: "stock", paths: []string{"/v1/stocks/fbo", "/v1/stocks/fbs"}},
	{eventType: source.EventTypeFinance, elementType: "finance_transaction", paths: []string{"/v1/finance/transactions"}},
	{eventType: source.EventTypeTariffs, elementType: "tariff", paths: []string{"/v1/tariffs/commission"}},
}

var marketplacePrefix = map[source.Marketplace]string{
	source.MarketplaceWildberries:  "wb",
	source.MarketplaceOzon:         "ozon",
	source.MarketplaceYandexMarket: "ym",
}

// BuildRegistry wires a gateway source for every (event type, marketplace)
// pair with a configured client. Source ids are stable
// ("wb-orders-v1", "ozon-stocks-fbo-v1") and recorded in unit states and
// audit rows, so they must not change between releases.
func BuildRegistry(clients map[source.Marketplace]*Client, store *storage.SnapshotFileStore) *source.Registry {
	registry := source.NewRegistry()

	for mp, client := range clients {
		prefix := marketplacePrefix[mp]
		if prefix == "" {
			continue
		}
		for _, spec := range specs {
			for _, path := range spec.paths {
				registry.Register(spec.eventType, mp, &gatewaySource{
					id:          sourceID(prefix, path),
					elementType: spec.elementType,
					rawTable:    models.RawTableFor(spec.eventType),
					path:        path,
					client:      client,
					store:       store,
				})
			}
		}
	}
	return registry
}

// sourceID derives the stable source id from the endpoint path,
// e.g. "wb" + "/v1/stocks/fbo" -> "wb-stocks-fbo-v1"
func sourceID(prefix, path string) string {
	trimmed := strings.TrimPrefix(path, "/v1/")
	trimmed = strings.ReplaceAll(trimmed, "/", "-")
	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	return prefix + "-" + trimmed + "-v1"
}
