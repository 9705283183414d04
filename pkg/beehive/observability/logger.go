// Package observability provides observability features for beehive:
// structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds hive context to a logger.
// Returns a new logger with run_id and node fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "upper")
//	enriched.Info("doing work") // includes run_id, node
func EnrichLogger(logger *slog.Logger, runID, node string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node", node),
	)
}

// LogHiveLive logs that bring-up finished and dispatch is starting.
func LogHiveLive(logger *slog.Logger, runID, model string, listeners, streamers int) {
	if logger == nil {
		return
	}
	logger.Info("hive live",
		slog.String("run_id", runID),
		slog.String("scheduling", model),
		slog.Int("listeners", listeners),
		slog.Int("streamers", streamers),
	)
}

// LogHiveShutdown logs the end of a hive run.
func LogHiveShutdown(logger *slog.Logger, runID string, durationMs float64, dispatched int64) {
	if logger == nil {
		return
	}
	logger.Info("hive shut down",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int64("events_dispatched", dispatched),
	)
}

// LogLifecycle logs a setup or teardown. Success is logged at debug level.
func LogLifecycle(logger *slog.Logger, node, phase string, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error(phase+" failed",
			slog.String("node", node),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug(phase+" complete",
		slog.String("node", node),
	)
}

// LogDeliveryError logs a listener failure (non-fatal).
func LogDeliveryError(logger *slog.Logger, listener string, eventID uint64, err error) {
	if logger == nil {
		return
	}
	logger.Error("listener failed",
		slog.String("node", listener),
		slog.Uint64("event_id", eventID),
		slog.String("error", err.Error()),
	)
}

// LogProductionError logs a streamer failure (non-fatal).
func LogProductionError(logger *slog.Logger, streamer string, err error) {
	if logger == nil {
		return
	}
	logger.Error("streamer failed",
		slog.String("node", streamer),
		slog.String("error", err.Error()),
	)
}

// LogTransportRetry logs a failed send attempt that will be retried.
func LogTransportRetry(logger *slog.Logger, addr string, attempt int, err error) {
	if logger == nil {
		return
	}
	logger.Debug("send retry",
		slog.String("addr", addr),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// LogTransportDrop logs a message abandoned by a client after retries.
func LogTransportDrop(logger *slog.Logger, addr string, size int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("message dropped",
		slog.String("addr", addr),
		slog.Int("size_bytes", size),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
