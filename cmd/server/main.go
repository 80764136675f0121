package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/application/materialization"
	"github.com/sellerpulse/backend/internal/application/orchestrator"
	"github.com/sellerpulse/backend/internal/application/worker"
	"github.com/sellerpulse/backend/internal/domain/source"
	"github.com/sellerpulse/backend/internal/infrastructure/cache"
	"github.com/sellerpulse/backend/internal/infrastructure/config"
	"github.com/sellerpulse/backend/internal/infrastructure/event"
	"github.com/sellerpulse/backend/internal/infrastructure/logger"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence"
	"github.com/sellerpulse/backend/internal/infrastructure/persistence/models"
	"github.com/sellerpulse/backend/internal/infrastructure/queue"
	"github.com/sellerpulse/backend/internal/infrastructure/resilience"
	"github.com/sellerpulse/backend/internal/infrastructure/snapshot"
	"github.com/sellerpulse/backend/internal/infrastructure/sources"
	"github.com/sellerpulse/backend/internal/infrastructure/storage"
	"github.com/sellerpulse/backend/internal/infrastructure/telemetry"
	"github.com/sellerpulse/backend/internal/interfaces/http/handler"
	"github.com/sellerpulse/backend/internal/interfaces/http/router"
)

// bulkheadAcquireWait bounds how long a worker waits for a bulkhead slot
// before the attempt is rescheduled
const bulkheadAcquireWait = 10 * time.Second

// rawRetentionSweepInterval is how often loaded raw rows past retention are purged
const rawRetentionSweepInterval = 6 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting SellerPulse ingestion engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry: tracing, metrics, continuous profiling
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Profiling.Enabled,
		ServerAddress:   cfg.Profiling.ServerAddress,
		ApplicationName: cfg.App.Name,
	}, log)
	if err != nil {
		log.Warn("Failed to start profiler, continuing without it", zap.Error(err))
	} else if profiler.IsEnabled() {
		defer func() {
			if err := profiler.Stop(); err != nil {
				log.Error("Error stopping profiler", zap.Error(err))
			}
		}()
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	ingestionMetrics, err := telemetry.NewIngestionMetrics(meterProvider.Meter(cfg.Telemetry.ServiceName))
	if err != nil {
		log.Fatal("Failed to create ingestion metrics", zap.Error(err))
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.App.Env != "production",
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	// Redis: work queue transport and idempotency store
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}()
	log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))

	idempotencyStore := cache.NewRedisIdempotencyStore(redisClient, "sellerpulse:idem")

	workQueue := queue.NewRedisWorkQueue(
		redisClient,
		cfg.Ingestion.QueueName,
		cfg.Ingestion.DelayQueueName,
		cfg.Ingestion.DelayMoverInterval,
		log,
	)
	go workQueue.RunDelayMover(ctx)

	// Outbox and event bus
	eventSerializer := event.NewEventSerializer()
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	outboxSaver := event.NewOutboxSaver(outboxRepo, eventSerializer)

	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Repositories
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	eventRepo := persistence.NewGormEventRepository(db.DB, outboxSaver)
	executionRepo := persistence.NewGormExecutionRepository(db.DB)
	stateRepo := persistence.NewGormSourceExecutionStateRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)
	rawRepo := persistence.NewGormRawRecordRepository(db.DB)
	materializationRepo := persistence.NewGormMaterializationRepository(db.DB)

	// Snapshot pipeline: file store, commit barrier, finalizer
	fileStore, err := storage.NewSnapshotFileStore(cfg.Snapshot.Dir)
	if err != nil {
		log.Fatal("Failed to create snapshot file store", zap.Error(err))
	}

	var finalizer snapshot.Finalizer
	if cfg.Archive.Enabled {
		archiver, err := storage.NewS3Archiver(&cfg.Archive, log)
		if err != nil {
			log.Fatal("Failed to create snapshot archiver", zap.Error(err))
		}
		finalizer = archiver
		log.Info("Snapshot archival enabled", zap.String("bucket", cfg.Archive.Bucket))
	} else {
		finalizer = snapshot.NewRemoveFinalizer(os.Remove)
	}

	barrier := snapshot.NewCommitBarrier(finalizer)
	pipeline := snapshot.NewPipeline(barrier, rawRepo, cfg.Snapshot.BatchSize, cfg.Snapshot.MaxPersist, log)

	// Connector gateways and source registry
	gatewayClients := map[source.Marketplace]*sources.Client{
		source.MarketplaceWildberries:  sources.NewClient(nil, cfg.Gateways.Wildberries.BaseURL, cfg.Gateways.Wildberries.APIKey),
		source.MarketplaceOzon:         sources.NewClient(nil, cfg.Gateways.Ozon.BaseURL, cfg.Gateways.Ozon.APIKey),
		source.MarketplaceYandexMarket: sources.NewClient(nil, cfg.Gateways.YandexMarket.BaseURL, cfg.Gateways.YandexMarket.APIKey),
	}
	registry := sources.BuildRegistry(gatewayClients, fileStore)

	// Per-marketplace throttling and bulkheads
	limiterConfigs := make(map[source.Marketplace]resilience.LimiterConfig)
	bulkheadConfigs := make(map[source.Marketplace]resilience.BulkheadConfig)
	for _, mp := range source.AllMarketplaces() {
		limit := cfg.Resilience.LimitFor(mp.String())
		limiterConfigs[mp] = resilience.LimiterConfig{
			QPS:     limit.QPS,
			Burst:   limit.Burst,
			MaxWait: limit.MaxWait,
		}
		bulkheadConfigs[mp] = resilience.BulkheadConfig{MaxConcurrent: cfg.Resilience.BulkheadSize}
	}
	limiter := resilience.NewRateLimiterRegistry(limiterConfigs)
	bulkhead := resilience.NewBulkhead(bulkheadConfigs, bulkheadAcquireWait)

	// Orchestration and workers
	planner := orchestrator.NewPlanner(registry, cfg.Ingestion.MaxAttempts)
	orchestratorService := orchestrator.NewService(
		accountRepo, eventRepo, executionRepo, stateRepo, auditRepo,
		planner, workQueue, log,
	)

	dependencyPolicy := worker.NewDependencyPolicy(auditRepo, cfg.Ingestion.DependencyWaitMax)
	workerPool := worker.NewPool(
		workQueue, stateRepo, executionRepo, auditRepo, registry,
		limiter, bulkhead, pipeline, dependencyPolicy, orchestratorService,
		ingestionMetrics,
		worker.Config{
			Count:      cfg.Ingestion.WorkerCount,
			BackoffMin: cfg.Ingestion.BackoffMin,
			BackoffMax: cfg.Ingestion.BackoffMax,
		},
		log,
	)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	// Materialization runs off the outbox; merge errors surface so the
	// processor redelivers
	materializationService := materialization.NewService(eventRepo, materializationRepo, log)
	eventBus.Subscribe(materializationService)

	outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, event.OutboxProcessorConfig{
		BatchSize:        cfg.Event.BatchSize,
		PollInterval:     cfg.Event.PollInterval,
		CleanupEnabled:   cfg.Event.CleanupEnabled,
		CleanupRetention: cfg.Event.CleanupRetention,
		CleanupInterval:  time.Hour,
	}, log)
	if cfg.Event.ProcessorEnabled {
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
	}

	// Dictionary refresh scheduler
	if cfg.Scheduler.Enabled {
		dictScheduler := orchestrator.NewDictionaryScheduler(
			accountRepo, orchestratorService,
			cfg.Scheduler.DictionaryInterval, cfg.Scheduler.JobTimeout, log,
		)
		dictScheduler.Start(ctx)
		defer dictScheduler.Stop()
		log.Info("Dictionary scheduler started",
			zap.Duration("interval", cfg.Scheduler.DictionaryInterval),
		)
	}

	// Raw retention sweeper
	go runRawRetentionSweep(ctx, rawRepo, cfg.Ingestion.RawRetention, log)

	// HTTP interface
	ingestionHandler := handler.NewIngestionHandler(orchestratorService, idempotencyStore, log)
	healthHandler := handler.NewHealthHandler(db.DB)

	engine := router.New(router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		Debug:          cfg.App.Env != "production",
	}, router.Handlers{
		Ingestion: ingestionHandler,
		Health:    healthHandler,
	}, log)

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// runRawRetentionSweep deletes loaded raw rows older than the retention
// window, one raw table per event type, until the context is cancelled.
func runRawRetentionSweep(ctx context.Context, rawRepo *persistence.GormRawRecordRepository, retention time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(rawRetentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			for _, eventType := range source.AllEventTypes() {
				table := models.RawTableFor(eventType)
				if table == "" {
					continue
				}
				deleted, err := rawRepo.DeleteLoadedBefore(ctx, table, cutoff)
				if err != nil {
					if ctx.Err() == nil {
						log.Error("Raw retention sweep failed",
							zap.String("raw_table", table),
							zap.Error(err),
						)
					}
					continue
				}
				if deleted > 0 {
					log.Info("Raw retention sweep purged rows",
						zap.String("raw_table", table),
						zap.Int64("rows", deleted),
					)
				}
			}
		}
	}
}
