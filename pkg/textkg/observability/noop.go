package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordChunk does nothing.
func (NoopMetrics) RecordChunk(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordDocument does nothing.
func (NoopMetrics) RecordDocument(_ context.Context, _ bool, _ time.Duration) {}

// RecordRecovery does nothing.
func (NoopMetrics) RecordRecovery(_ context.Context, _ string) {}

// RecordValidation does nothing.
func (NoopMetrics) RecordValidation(_ context.Context, _, _ int) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
var noopSpan = noop.Span{}

// StartRunSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartRunSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartDocumentSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDocumentSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartChunkSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartChunkSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
