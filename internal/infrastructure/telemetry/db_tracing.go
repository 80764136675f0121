package telemetry

import (
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include full SQL with variables, dev only
	SlowQueryThresh time.Duration
}

// RegisterDBTracing registers the otelgorm plugin plus a callback that flags
// slow queries and records errors on the active span.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}
	if cfg.SlowQueryThresh == 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	after := func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		span := trace.SpanFromContext(ctx)
		if span == nil || !span.IsRecording() {
			return
		}
		if db.Statement.RowsAffected >= 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		}
		if db.Statement.Table != "" {
			span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
		}
		if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
			span.SetStatus(codes.Error, db.Error.Error())
			span.RecordError(db.Error)
		}
	}

	if err := db.Callback().Create().After("gorm:create").Register("otel_attrs:after_create", after); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("otel_attrs:after_query", after); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("otel_attrs:after_update", after); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("otel_attrs:after_delete", after); err != nil {
		return err
	}
	if err := db.Callback().Raw().After("gorm:raw").Register("otel_attrs:after_raw", after); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}
