package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records extraction pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordChunk records one chunk extraction with its duration and error status.
	RecordChunk(ctx context.Context, document string, duration time.Duration, err error)

	// RecordDocument records a document completing (or failing as a whole).
	RecordDocument(ctx context.Context, success bool, duration time.Duration)

	// RecordRecovery records which strategy recovered a payload.
	RecordRecovery(ctx context.Context, strategy string)

	// RecordValidation records graph validation outcomes for a document.
	RecordValidation(ctx context.Context, errorsDeleted, warningsModified int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	chunkExtractions   metric.Int64Counter
	chunkLatency       metric.Float64Histogram
	chunkErrors        metric.Int64Counter
	documentRuns       metric.Int64Counter
	documentLatency    metric.Float64Histogram
	recoveries         metric.Int64Counter
	validationDeleted  metric.Int64Counter
	validationModified metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("textkg")

	chunkExtractions, err := meter.Int64Counter("textkg.chunk.extractions",
		metric.WithDescription("Number of chunk extractions"),
	)
	if err != nil {
		return nil, err
	}

	chunkLatency, err := meter.Float64Histogram("textkg.chunk.latency_ms",
		metric.WithDescription("Chunk extraction latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	chunkErrors, err := meter.Int64Counter("textkg.chunk.errors",
		metric.WithDescription("Number of chunk extraction errors"),
	)
	if err != nil {
		return nil, err
	}

	documentRuns, err := meter.Int64Counter("textkg.document.runs",
		metric.WithDescription("Number of documents processed"),
	)
	if err != nil {
		return nil, err
	}

	documentLatency, err := meter.Float64Histogram("textkg.document.latency_ms",
		metric.WithDescription("Document processing latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	recoveries, err := meter.Int64Counter("textkg.recovery.attempts",
		metric.WithDescription("Payload recoveries by strategy"),
	)
	if err != nil {
		return nil, err
	}

	validationDeleted, err := meter.Int64Counter("textkg.validation.deleted",
		metric.WithDescription("Records deleted during graph validation"),
	)
	if err != nil {
		return nil, err
	}

	validationModified, err := meter.Int64Counter("textkg.validation.modified",
		metric.WithDescription("Records corrected during graph validation"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		chunkExtractions:   chunkExtractions,
		chunkLatency:       chunkLatency,
		chunkErrors:        chunkErrors,
		documentRuns:       documentRuns,
		documentLatency:    documentLatency,
		recoveries:         recoveries,
		validationDeleted:  validationDeleted,
		validationModified: validationModified,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordChunk records a chunk extraction.
func (m *otelMetrics) RecordChunk(ctx context.Context, document string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("document", document),
	}

	m.chunkExtractions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.chunkLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.chunkErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordDocument records a document run.
func (m *otelMetrics) RecordDocument(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.documentRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.documentLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordRecovery records which strategy recovered a payload.
func (m *otelMetrics) RecordRecovery(ctx context.Context, strategy string) {
	m.recoveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
	))
}

// RecordValidation records validation outcomes.
func (m *otelMetrics) RecordValidation(ctx context.Context, errorsDeleted, warningsModified int) {
	if errorsDeleted > 0 {
		m.validationDeleted.Add(ctx, int64(errorsDeleted))
	}
	if warningsModified > 0 {
		m.validationModified.Add(ctx, int64(warningsModified))
	}
}
