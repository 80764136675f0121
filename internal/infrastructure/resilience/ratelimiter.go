// Package resilience wraps every outbound marketplace fetch with a
// per-marketplace rate limiter, a bounded-concurrency bulkhead and
// Retry-After interpretation, turning opaque throttling failures into typed
// backoff signals.
package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/sellerpulse/backend/internal/domain/source"
)

var (
	// ErrRateLimitWait indicates the limiter could not grant a permit within
	// the configured bound
	ErrRateLimitWait = errors.New("resilience: rate limiter wait exceeded bound")
	// ErrBulkheadFull indicates no bulkhead slot became available in time
	ErrBulkheadFull = errors.New("resilience: bulkhead full")
	// ErrUnknownMarketplace indicates no limiter is configured for the marketplace
	ErrUnknownMarketplace = errors.New("resilience: unknown marketplace")
)

// LimiterConfig configures the limiter for one marketplace
type LimiterConfig struct {
	// QPS is the sustained request rate
	QPS float64
	// Burst is the token bucket size
	Burst int
	// MaxWait bounds how long an Acquire may block; waits beyond it reject fast
	MaxWait time.Duration
}

// DefaultLimiterConfig returns conservative marketplace defaults
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{QPS: 5, Burst: 10, MaxWait: 10 * time.Second}
}

// RateLimiterRegistry holds one token-bucket limiter per marketplace.
// It is constructed once at process start and injected by reference;
// there is no global instance.
type RateLimiterRegistry struct {
	limiters map[source.Marketplace]*rate.Limiter
	maxWait  map[source.Marketplace]time.Duration
}

// NewRateLimiterRegistry builds limiters for the given marketplace configs
func NewRateLimiterRegistry(configs map[source.Marketplace]LimiterConfig) *RateLimiterRegistry {
	r := &RateLimiterRegistry{
		limiters: make(map[source.Marketplace]*rate.Limiter, len(configs)),
		maxWait:  make(map[source.Marketplace]time.Duration, len(configs)),
	}
	for mp, cfg := range configs {
		r.limiters[mp] = rate.NewLimiter(rate.Limit(cfg.QPS), cfg.Burst)
		r.maxWait[mp] = cfg.MaxWait
	}
	return r
}

// Acquire blocks until a permit is available or the wait bound is exceeded.
// An unbounded wait is rejected fast with ErrRateLimitWait.
func (r *RateLimiterRegistry) Acquire(ctx context.Context, marketplace source.Marketplace) error {
	limiter, ok := r.limiters[marketplace]
	if !ok {
		return ErrUnknownMarketplace
	}

	waitCtx := ctx
	if maxWait := r.maxWait[marketplace]; maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}

	if err := limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRateLimitWait
	}
	return nil
}
