package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for all application spans.
const TracerName = "sellerpulse-backend"

// Span attribute keys shared across the ingestion pipeline.
const (
	AttrRequestID   = "ingestion.request_id"
	AttrEventID     = "ingestion.event_id"
	AttrEventType   = "ingestion.event_type"
	AttrAccountID   = "ingestion.account_id"
	AttrMarketplace = "ingestion.marketplace"
	AttrSourceID    = "ingestion.source_id"
	AttrAttempt     = "ingestion.attempt"
	AttrOutcome     = "ingestion.outcome"
	AttrRowCount    = "ingestion.row_count"
)

// SpanOption configures span creation.
type SpanOption func(*spanConfig)

type spanConfig struct {
	attributes []attribute.KeyValue
	kind       trace.SpanKind
}

// WithAttribute adds an attribute to the span. Supported value types are
// string, bool, int, int64, float64 and fmt.Stringer; anything else is
// formatted with %v.
func WithAttribute(key string, value any) SpanOption {
	return func(cfg *spanConfig) {
		cfg.attributes = append(cfg.attributes, toAttribute(key, value))
	}
}

// WithSpanKind sets the span kind (client, server, producer, consumer).
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(cfg *spanConfig) {
		cfg.kind = kind
	}
}

// StartSpan starts a new span with the given name and options.
// The caller must end the returned span.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	cfg := &spanConfig{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, name,
		trace.WithSpanKind(cfg.kind),
		trace.WithAttributes(cfg.attributes...),
	)
}

// RecordError records an error on the span and marks its status as Error.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds a timestamped event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace id from the context, or an empty string when
// no span is recording.
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
