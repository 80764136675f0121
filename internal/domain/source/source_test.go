package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	id string
}

func (s *fakeSource) ID() string          { return s.id }
func (s *fakeSource) ElementType() string { return "record" }
func (s *fakeSource) RawTable() string    { return "raw_records" }
func (s *fakeSource) FetchSnapshots(ctx context.Context, window FetchWindow) ([]Snapshot, error) {
	return nil, nil
}

func TestRegistry_FindSourcesPreservesOrder(t *testing.T) {
	r := NewRegistry()
	first := &fakeSource{id: "wb-products"}
	second := &fakeSource{id: "wb-product-prices"}
	r.Register(EventTypeProducts, MarketplaceWildberries, first, second)

	sources, err := r.FindSources(EventTypeProducts, MarketplaceWildberries)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "wb-products", sources[0].ID())
	assert.Equal(t, "wb-product-prices", sources[1].ID())
}

func TestRegistry_FindSourcesUnknownPair(t *testing.T) {
	r := NewRegistry()
	r.Register(EventTypeProducts, MarketplaceWildberries, &fakeSource{id: "wb-products"})

	_, err := r.FindSources(EventTypeProducts, MarketplaceOzon)
	assert.ErrorIs(t, err, ErrNoSourcesForEvent)

	_, err = r.FindSources(EventTypeOrders, MarketplaceWildberries)
	assert.ErrorIs(t, err, ErrNoSourcesForEvent)
}

func TestEventType_Dependencies(t *testing.T) {
	assert.Empty(t, EventTypeProducts.Dependencies())
	assert.Empty(t, EventTypeWarehouses.Dependencies())
	assert.Equal(t, []EventType{EventTypeProducts}, EventTypeOrders.Dependencies())
	assert.Equal(t, []EventType{EventTypeProducts, EventTypeWarehouses}, EventTypeStocks.Dependencies())
}

func TestEventType_IsDictionary(t *testing.T) {
	assert.True(t, EventTypeProducts.IsDictionary())
	assert.True(t, EventTypeWarehouses.IsDictionary())
	assert.True(t, EventTypeCategories.IsDictionary())
	assert.False(t, EventTypeOrders.IsDictionary())
	assert.False(t, EventTypeTariffs.IsDictionary())
}

func TestSnapshot_IsEmpty(t *testing.T) {
	s := Snapshot{SizeBytes: 0}
	assert.True(t, s.IsEmpty())
	s.SizeBytes = 10
	assert.False(t, s.IsEmpty())
}
