package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the pipeline tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("textkg")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts a span for an entire extraction run.
	StartRunSpan(ctx context.Context, runID string, documents int) (context.Context, trace.Span)

	// StartDocumentSpan starts a span for one document. It should be a
	// child of the run span.
	StartDocumentSpan(ctx context.Context, document string) (context.Context, trace.Span)

	// StartChunkSpan starts a span for one chunk extraction.
	StartChunkSpan(ctx context.Context, document string, chunk int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartRunSpan starts a span for an extraction run.
func (m *otelSpanManager) StartRunSpan(ctx context.Context, runID string, documents int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "textkg.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.documents", documents),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartDocumentSpan starts a span for one document.
func (m *otelSpanManager) StartDocumentSpan(ctx context.Context, document string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "textkg.document",
		trace.WithAttributes(
			attribute.String("document.name", document),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartChunkSpan starts a span for one chunk extraction.
func (m *otelSpanManager) StartChunkSpan(ctx context.Context, document string, chunk int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "textkg.chunk",
		trace.WithAttributes(
			attribute.String("document.name", document),
			attribute.Int("chunk.index", chunk),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
