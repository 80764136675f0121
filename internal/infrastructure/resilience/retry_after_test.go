package resilience

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerpulse/backend/internal/domain/source"
)

func TestParseRetryAfter_DeltaSeconds(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 120*time.Second, ParseRetryAfter("120", 5*time.Second, now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("0", 5*time.Second, now))
}

func TestParseRetryAfter_NegativeClamped(t *testing.T) {
	now := time.Now()
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-30", 5*time.Second, now))
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	future := now.Add(90 * time.Second).UTC().Format(http.TimeFormat)
	assert.Equal(t, 90*time.Second, ParseRetryAfter(future, 5*time.Second, now))

	past := now.Add(-time.Hour).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), ParseRetryAfter(past, 5*time.Second, now))
}

func TestParseRetryAfter_Fallback(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 7*time.Second, ParseRetryAfter("", 7*time.Second, now))
	assert.Equal(t, 7*time.Second, ParseRetryAfter("not-a-date", 7*time.Second, now))
}

func TestClampBackoff(t *testing.T) {
	assert.Equal(t, time.Second, ClampBackoff(0, time.Second, time.Minute))
	assert.Equal(t, time.Minute, ClampBackoff(2*time.Minute, time.Second, time.Minute))
	assert.Equal(t, 30*time.Second, ClampBackoff(30*time.Second, time.Second, time.Minute))
}

func TestRateLimiterRegistry_UnknownMarketplace(t *testing.T) {
	r := NewRateLimiterRegistry(map[source.Marketplace]LimiterConfig{})
	err := r.Acquire(context.Background(), source.MarketplaceOzon)
	assert.ErrorIs(t, err, ErrUnknownMarketplace)
}

func TestRateLimiterRegistry_RejectsWhenWaitExceedsBound(t *testing.T) {
	r := NewRateLimiterRegistry(map[source.Marketplace]LimiterConfig{
		source.MarketplaceWildberries: {QPS: 0.1, Burst: 1, MaxWait: 20 * time.Millisecond},
	})

	// first call drains the bucket
	require.NoError(t, r.Acquire(context.Background(), source.MarketplaceWildberries))

	err := r.Acquire(context.Background(), source.MarketplaceWildberries)
	assert.ErrorIs(t, err, ErrRateLimitWait)
}

func TestBulkhead_BoundsConcurrency(t *testing.T) {
	b := NewBulkhead(map[source.Marketplace]BulkheadConfig{
		source.MarketplaceOzon: {MaxConcurrent: 1},
	}, 20*time.Millisecond)

	release, err := b.Acquire(context.Background(), source.MarketplaceOzon)
	require.NoError(t, err)

	_, err = b.Acquire(context.Background(), source.MarketplaceOzon)
	assert.ErrorIs(t, err, ErrBulkheadFull)

	release()

	release2, err := b.Acquire(context.Background(), source.MarketplaceOzon)
	require.NoError(t, err)
	release2()
}

func TestBulkhead_ReleaseIsDeterministicUnderConcurrency(t *testing.T) {
	b := NewBulkhead(map[source.Marketplace]BulkheadConfig{
		source.MarketplaceWildberries: {MaxConcurrent: 4},
	}, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := b.Acquire(context.Background(), source.MarketplaceWildberries)
			require.NoError(t, err)
			defer release()
			time.Sleep(time.Millisecond)
		}()
	}
	wg.Wait()

	// all slots must be free again
	release, err := b.Acquire(context.Background(), source.MarketplaceWildberries)
	require.NoError(t, err)
	release()
}
