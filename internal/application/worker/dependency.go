package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/sellerpulse/backend/internal/domain/ingestion"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// DependencyPolicy gates windowed event types on their prerequisite
// dictionaries: stocks need products and warehouses, orders need products.
// It polls the audit trail with exponential backoff for a bounded time and
// reports ErrDependencyNotSatisfied when the wait expires.
type DependencyPolicy struct {
	audits  ingestion.AuditRepository
	maxWait time.Duration
}

// NewDependencyPolicy creates a dependency policy with the given wait bound
func NewDependencyPolicy(audits ingestion.AuditRepository, maxWait time.Duration) *DependencyPolicy {
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &DependencyPolicy{audits: audits, maxWait: maxWait}
}

// Ensure blocks until every dependency of the event type has a successful
// execution for the account and marketplace, or the wait bound expires.
func (p *DependencyPolicy) Ensure(ctx context.Context, accountID uuid.UUID, eventType source.EventType, marketplace source.Marketplace) error {
	deps := eventType.Dependencies()
	if len(deps) == 0 {
		return nil
	}

	for _, dep := range deps {
		expo := backoff.NewExponentialBackOff()
		expo.InitialInterval = 500 * time.Millisecond
		expo.MaxElapsedTime = p.maxWait
		policy := backoff.WithContext(expo, ctx)

		check := func() error {
			ok, err := p.audits.HasSuccessfulExecution(ctx, accountID, dep, marketplace)
			if err != nil {
				return backoff.Permanent(err)
			}
			if !ok {
				return fmt.Errorf("%w: %s has no successful %s execution", ingestion.ErrDependencyNotSatisfied, marketplace, dep)
			}
			return nil
		}

		if err := backoff.Retry(check, policy); err != nil {
			return err
		}
	}
	return nil
}
