package resilience

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sellerpulse/backend/internal/domain/source"
)

// Bulkhead bounds the number of concurrent in-flight calls per marketplace
// using a weighted semaphore. Slots are released deterministically via the
// returned release func regardless of call outcome.
type Bulkhead struct {
	slots       map[source.Marketplace]*semaphore.Weighted
	acquireWait time.Duration
}

// BulkheadConfig configures the bulkhead for one marketplace
type BulkheadConfig struct {
	// MaxConcurrent is the number of simultaneous in-flight calls allowed
	MaxConcurrent int64
}

// NewBulkhead builds a bulkhead with per-marketplace slot counts.
// acquireWait bounds how long Acquire may block for a slot.
func NewBulkhead(configs map[source.Marketplace]BulkheadConfig, acquireWait time.Duration) *Bulkhead {
	b := &Bulkhead{
		slots:       make(map[source.Marketplace]*semaphore.Weighted, len(configs)),
		acquireWait: acquireWait,
	}
	for mp, cfg := range configs {
		max := cfg.MaxConcurrent
		if max <= 0 {
			max = 1
		}
		b.slots[mp] = semaphore.NewWeighted(max)
	}
	return b
}

// Acquire takes one slot for the marketplace. The returned release func must
// be called exactly once, typically via defer.
func (b *Bulkhead) Acquire(ctx context.Context, marketplace source.Marketplace) (release func(), err error) {
	sem, ok := b.slots[marketplace]
	if !ok {
		return nil, ErrUnknownMarketplace
	}

	acquireCtx := ctx
	if b.acquireWait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, b.acquireWait)
		defer cancel()
	}

	if err := sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBulkheadFull
	}
	return func() { sem.Release(1) }, nil
}
