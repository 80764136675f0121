package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IngestionMetrics tracks the ingestion pipeline: execution outcomes, rows
// written, retries and rate-limit waits. All instruments are no-ops when the
// global meter provider is no-op.
type IngestionMetrics struct {
	executionsTotal   metric.Int64Counter
	rowsIngestedTotal metric.Int64Counter
	retriesTotal      metric.Int64Counter
	rateLimitWait     metric.Float64Histogram
	executionDuration metric.Float64Histogram
}

// NewIngestionMetrics registers the ingestion instruments on the given meter.
func NewIngestionMetrics(meter metric.Meter) (*IngestionMetrics, error) {
	m := &IngestionMetrics{}
	var err error

	m.executionsTotal, err = meter.Int64Counter(
		"sellerpulse_executions_total",
		metric.WithDescription("Total unit executions by event type, marketplace and outcome"),
		metric.WithUnit("{executions}"),
	)
	if err != nil {
		return nil, err
	}

	m.rowsIngestedTotal, err = meter.Int64Counter(
		"sellerpulse_rows_ingested_total",
		metric.WithDescription("Total raw rows persisted by event type and marketplace"),
		metric.WithUnit("{rows}"),
	)
	if err != nil {
		return nil, err
	}

	m.retriesTotal, err = meter.Int64Counter(
		"sellerpulse_retries_scheduled_total",
		metric.WithDescription("Total retries scheduled by event type and error code"),
		metric.WithUnit("{retries}"),
	)
	if err != nil {
		return nil, err
	}

	m.rateLimitWait, err = meter.Float64Histogram(
		"sellerpulse_rate_limit_wait_seconds",
		metric.WithDescription("Time spent waiting on the per-marketplace rate limiter"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.executionDuration, err = meter.Float64Histogram(
		"sellerpulse_execution_duration_seconds",
		metric.WithDescription("End-to-end duration of a unit execution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordExecution records a finished unit execution.
func (m *IngestionMetrics) RecordExecution(ctx context.Context, eventType, marketplace, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("marketplace", marketplace),
		attribute.String("outcome", outcome),
	)
	m.executionsTotal.Add(ctx, 1, attrs)
	m.executionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRowsIngested records the raw rows persisted by one execution.
func (m *IngestionMetrics) RecordRowsIngested(ctx context.Context, eventType, marketplace string, rows int64) {
	m.rowsIngestedTotal.Add(ctx, rows, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("marketplace", marketplace),
	))
}

// RecordRetryScheduled records one scheduled retry.
func (m *IngestionMetrics) RecordRetryScheduled(ctx context.Context, eventType, marketplace, errorCode string) {
	m.retriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("marketplace", marketplace),
		attribute.String("error_code", errorCode),
	))
}

// RecordRateLimitWait records time spent waiting for a rate-limit token.
func (m *IngestionMetrics) RecordRateLimitWait(ctx context.Context, marketplace string, wait time.Duration) {
	m.rateLimitWait.Record(ctx, wait.Seconds(), metric.WithAttributes(
		attribute.String("marketplace", marketplace),
	))
}
