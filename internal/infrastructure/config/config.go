package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	Event      EventConfig
	HTTP       HTTPConfig
	Scheduler  SchedulerConfig
	Ingestion  IngestionConfig
	Resilience ResilienceConfig
	Snapshot   SnapshotConfig
	Archive    ArchiveConfig
	Gateways   GatewaysConfig
	Telemetry  TelemetryConfig
	Profiling  ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EventConfig holds outbox dispatch configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// SchedulerConfig holds the dictionary sync scheduler configuration
type SchedulerConfig struct {
	Enabled            bool
	DictionaryInterval time.Duration
	JobTimeout         time.Duration
}

// IngestionConfig holds orchestration and worker settings
type IngestionConfig struct {
	WorkerCount        int
	MaxAttempts        int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	DependencyWaitMax  time.Duration
	QueueName          string
	DelayQueueName     string
	DelayMoverInterval time.Duration
	IdempotencyTTL     time.Duration
	RawRetention       time.Duration
}

// MarketplaceLimitConfig holds per-marketplace client throttling settings
type MarketplaceLimitConfig struct {
	QPS     float64
	Burst   int
	MaxWait time.Duration
}

// ResilienceConfig holds rate limiting and bulkhead settings
type ResilienceConfig struct {
	Wildberries  MarketplaceLimitConfig
	Ozon         MarketplaceLimitConfig
	YandexMarket MarketplaceLimitConfig
	BulkheadSize int64
}

// SnapshotConfig holds snapshot pipeline settings
type SnapshotConfig struct {
	Dir         string
	BatchSize   int
	MaxPersist  int
	KeepOnError bool
}

// ArchiveConfig holds S3 snapshot archival settings. Disabled by default:
// finalized snapshot files are then simply deleted.
type ArchiveConfig struct {
	Enabled   bool
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible storage, empty for AWS
	AccessKey string
	SecretKey string
}

// GatewayConfig holds the connection settings of one marketplace connector
// gateway. Marketplace credentials themselves live in the vaulting service
// behind the gateway; the engine only carries the gateway API key.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
}

// GatewaysConfig holds per-marketplace connector gateway settings
type GatewaysConfig struct {
	Wildberries  GatewayConfig
	Ozon         GatewayConfig
	YandexMarket GatewayConfig
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
}

// ProfilingConfig holds continuous profiling configuration
type ProfilingConfig struct {
	Enabled       bool
	ServerAddress string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SELLERPULSE_ prefix (e.g., SELLERPULSE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("SELLERPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Scheduler: SchedulerConfig{
			Enabled:            v.GetBool("scheduler.enabled"),
			DictionaryInterval: v.GetDuration("scheduler.dictionary_interval"),
			JobTimeout:         v.GetDuration("scheduler.job_timeout"),
		},
		Ingestion: IngestionConfig{
			WorkerCount:        v.GetInt("ingestion.worker_count"),
			MaxAttempts:        v.GetInt("ingestion.max_attempts"),
			BackoffMin:         v.GetDuration("ingestion.backoff_min"),
			BackoffMax:         v.GetDuration("ingestion.backoff_max"),
			DependencyWaitMax:  v.GetDuration("ingestion.dependency_wait_max"),
			QueueName:          v.GetString("ingestion.queue_name"),
			DelayQueueName:     v.GetString("ingestion.delay_queue_name"),
			DelayMoverInterval: v.GetDuration("ingestion.delay_mover_interval"),
			IdempotencyTTL:     v.GetDuration("ingestion.idempotency_ttl"),
			RawRetention:       v.GetDuration("ingestion.raw_retention"),
		},
		Resilience: ResilienceConfig{
			Wildberries: MarketplaceLimitConfig{
				QPS:     v.GetFloat64("resilience.wildberries.qps"),
				Burst:   v.GetInt("resilience.wildberries.burst"),
				MaxWait: v.GetDuration("resilience.wildberries.max_wait"),
			},
			Ozon: MarketplaceLimitConfig{
				QPS:     v.GetFloat64("resilience.ozon.qps"),
				Burst:   v.GetInt("resilience.ozon.burst"),
				MaxWait: v.GetDuration("resilience.ozon.max_wait"),
			},
			YandexMarket: MarketplaceLimitConfig{
				QPS:     v.GetFloat64("resilience.yandex_market.qps"),
				Burst:   v.GetInt("resilience.yandex_market.burst"),
				MaxWait: v.GetDuration("resilience.yandex_market.max_wait"),
			},
			BulkheadSize: v.GetInt64("resilience.bulkhead_size"),
		},
		Snapshot: SnapshotConfig{
			Dir:         v.GetString("snapshot.dir"),
			BatchSize:   v.GetInt("snapshot.batch_size"),
			MaxPersist:  v.GetInt("snapshot.max_persist"),
			KeepOnError: v.GetBool("snapshot.keep_on_error"),
		},
		Archive: ArchiveConfig{
			Enabled:   v.GetBool("archive.enabled"),
			Bucket:    v.GetString("archive.bucket"),
			Prefix:    v.GetString("archive.prefix"),
			Region:    v.GetString("archive.region"),
			Endpoint:  v.GetString("archive.endpoint"),
			AccessKey: v.GetString("archive.access_key"),
			SecretKey: v.GetString("archive.secret_key"),
		},
		Gateways: GatewaysConfig{
			Wildberries: GatewayConfig{
				BaseURL: v.GetString("gateways.wildberries.base_url"),
				APIKey:  v.GetString("gateways.wildberries.api_key"),
			},
			Ozon: GatewayConfig{
				BaseURL: v.GetString("gateways.ozon.base_url"),
				APIKey:  v.GetString("gateways.ozon.api_key"),
			},
			YandexMarket: GatewayConfig{
				BaseURL: v.GetString("gateways.yandex_market.base_url"),
				APIKey:  v.GetString("gateways.yandex_market.api_key"),
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:       v.GetBool("profiling.enabled"),
			ServerAddress: v.GetString("profiling.server_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "sellerpulse-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "sellerpulse"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.Scheduler.DictionaryInterval == 0 {
		cfg.Scheduler.DictionaryInterval = 24 * time.Hour
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Ingestion.WorkerCount == 0 {
		cfg.Ingestion.WorkerCount = 4
	}
	if cfg.Ingestion.MaxAttempts == 0 {
		cfg.Ingestion.MaxAttempts = 5
	}
	if cfg.Ingestion.BackoffMin == 0 {
		cfg.Ingestion.BackoffMin = time.Second
	}
	if cfg.Ingestion.BackoffMax == 0 {
		cfg.Ingestion.BackoffMax = time.Minute
	}
	if cfg.Ingestion.DependencyWaitMax == 0 {
		cfg.Ingestion.DependencyWaitMax = 2 * time.Minute
	}
	if cfg.Ingestion.QueueName == "" {
		cfg.Ingestion.QueueName = "ingestion:work"
	}
	if cfg.Ingestion.DelayQueueName == "" {
		cfg.Ingestion.DelayQueueName = "ingestion:delayed"
	}
	if cfg.Ingestion.DelayMoverInterval == 0 {
		cfg.Ingestion.DelayMoverInterval = time.Second
	}
	if cfg.Ingestion.IdempotencyTTL == 0 {
		cfg.Ingestion.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Ingestion.RawRetention == 0 {
		cfg.Ingestion.RawRetention = 14 * 24 * time.Hour
	}
	applyLimitDefaults(&cfg.Resilience.Wildberries, 3, 5)
	applyLimitDefaults(&cfg.Resilience.Ozon, 5, 10)
	applyLimitDefaults(&cfg.Resilience.YandexMarket, 2, 4)
	if cfg.Resilience.BulkheadSize == 0 {
		cfg.Resilience.BulkheadSize = 8
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = "/tmp/sellerpulse/snapshots"
	}
	if cfg.Snapshot.BatchSize == 0 {
		cfg.Snapshot.BatchSize = 500
	}
	if cfg.Snapshot.MaxPersist == 0 {
		cfg.Snapshot.MaxPersist = 4
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "snapshots"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "eu-central-1"
	}
	if cfg.Gateways.Wildberries.BaseURL == "" {
		cfg.Gateways.Wildberries.BaseURL = "http://localhost:9101"
	}
	if cfg.Gateways.Ozon.BaseURL == "" {
		cfg.Gateways.Ozon.BaseURL = "http://localhost:9102"
	}
	if cfg.Gateways.YandexMarket.BaseURL == "" {
		cfg.Gateways.YandexMarket.BaseURL = "http://localhost:9103"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "sellerpulse-backend"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ServerAddress == "" {
		cfg.Profiling.ServerAddress = "http://localhost:4040"
	}
}

func applyLimitDefaults(limit *MarketplaceLimitConfig, qps float64, burst int) {
	if limit.QPS == 0 {
		limit.QPS = qps
	}
	if limit.Burst == 0 {
		limit.Burst = burst
	}
	if limit.MaxWait == 0 {
		limit.MaxWait = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Ingestion.BackoffMin > c.Ingestion.BackoffMax {
		return fmt.Errorf("ingestion.backoff_min (%s) cannot exceed ingestion.backoff_max (%s)",
			c.Ingestion.BackoffMin, c.Ingestion.BackoffMax)
	}
	if c.Ingestion.MaxAttempts < 1 {
		return fmt.Errorf("ingestion.max_attempts must be at least 1")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.enabled is true")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LimitFor returns the throttling settings for a marketplace key
// (WILDBERRIES, OZON, YANDEX_MARKET)
func (c *ResilienceConfig) LimitFor(marketplace string) MarketplaceLimitConfig {
	switch marketplace {
	case "OZON":
		return c.Ozon
	case "YANDEX_MARKET":
		return c.YandexMarket
	default:
		return c.Wildberries
	}
}
