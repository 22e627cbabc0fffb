// Package observability provides structured logging, metrics, and
// tracing for the extraction pipeline.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds extraction context to a logger.
// Returns a new logger with run_id, document, and chunk fields.
func EnrichLogger(logger *slog.Logger, runID, document string, chunk int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("document", document),
		slog.Int("chunk", chunk),
	)
}

// LogRunStart logs the start of an extraction run.
func LogRunStart(logger *slog.Logger, runID string, documents, workers int) {
	if logger == nil {
		return
	}
	logger.Info("extraction run starting",
		slog.String("run_id", runID),
		slog.Int("documents", documents),
		slog.Int("workers", workers),
	)
}

// LogRunComplete logs extraction run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, documents, failed int) {
	if logger == nil {
		return
	}
	logger.Info("extraction run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("documents", documents),
		slog.Int("failed", failed),
	)
}

// LogDocumentComplete logs a document finishing with all its chunks.
func LogDocumentComplete(logger *slog.Logger, document string, chunks, failedChunks int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("document completed",
		slog.String("document", document),
		slog.Int("chunks", chunks),
		slog.Int("failed_chunks", failedChunks),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDocumentError logs a document-level failure.
func LogDocumentError(logger *slog.Logger, document string, err error) {
	if logger == nil {
		return
	}
	logger.Error("document failed",
		slog.String("document", document),
		slog.String("error", err.Error()),
	)
}

// LogChunkComplete logs a chunk finishing.
func LogChunkComplete(logger *slog.Logger, document string, chunk int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("chunk completed",
		slog.String("document", document),
		slog.Int("chunk", chunk),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogChunkError logs a chunk failure.
func LogChunkError(logger *slog.Logger, document string, chunk int, err error) {
	if logger == nil {
		return
	}
	logger.Error("chunk failed",
		slog.String("document", document),
		slog.Int("chunk", chunk),
		slog.String("error", err.Error()),
	)
}

// LogRecovery logs which strategy recovered a payload. Strategies past
// the direct parse indicate the model emitted noisy output.
func LogRecovery(logger *slog.Logger, document string, chunk int, strategy string, missingFields []string) {
	if logger == nil {
		return
	}
	if strategy == "direct" && len(missingFields) == 0 {
		return
	}
	logger.Warn("payload recovered",
		slog.String("document", document),
		slog.Int("chunk", chunk),
		slog.String("strategy", strategy),
		slog.Any("missing_fields", missingFields),
	)
}

// LogValidationReport logs the outcome of graph validation.
func LogValidationReport(logger *slog.Logger, document string, errorsDeleted, warningsModified, warningsUnmodified int, errorRate float64) {
	if logger == nil {
		return
	}
	logger.Info("graph validated",
		slog.String("document", document),
		slog.Int("errors_deleted", errorsDeleted),
		slog.Int("warnings_modified", warningsModified),
		slog.Int("warnings_unmodified", warningsUnmodified),
		slog.Float64("error_rate", errorRate),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
