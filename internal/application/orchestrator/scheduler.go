package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/account"
	"github.com/sellerpulse/backend/internal/domain/source"
)

// DictionaryScheduler periodically refreshes the dictionary event types
// (products, warehouses, categories) for every active account. Windowed
// event types are triggered on demand through the API instead.
type DictionaryScheduler struct {
	accounts   account.Repository
	service    *Service
	interval   time.Duration
	jobTimeout time.Duration
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDictionaryScheduler creates a scheduler with the given tick interval
func NewDictionaryScheduler(accounts account.Repository, service *Service, interval, jobTimeout time.Duration, logger *zap.Logger) *DictionaryScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}
	return &DictionaryScheduler{
		accounts:   accounts,
		service:    service,
		interval:   interval,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Start begins the periodic refresh loop
func (s *DictionaryScheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	s.logger.Info("dictionary scheduler started", zap.Duration("interval", s.interval))
}

// Stop stops the scheduler and waits for an in-flight tick to finish
func (s *DictionaryScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("dictionary scheduler stopped")
}

func (s *DictionaryScheduler) runOnce(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	accounts, err := s.accounts.FindActive(jobCtx)
	if err != nil {
		s.logger.Error("failed to load active accounts", zap.Error(err))
		return
	}

	dictionaries := []source.EventType{
		source.EventTypeProducts,
		source.EventTypeWarehouses,
		source.EventTypeCategories,
	}

	now := time.Now()
	for _, acc := range accounts {
		for _, eventType := range dictionaries {
			_, err := s.service.TriggerIngestion(jobCtx, TriggerCommand{
				AccountID:   acc.ID,
				EventType:   eventType,
				SourceLabel: "scheduler",
				DateFrom:    now,
				DateTo:      now,
			})
			if err != nil {
				s.logger.Warn("scheduled dictionary refresh failed to trigger",
					zap.String("account_id", acc.ID.String()),
					zap.String("event_type", eventType.String()),
					zap.Error(err),
				)
			}
		}
	}
}
