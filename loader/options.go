package loader

import (
	"context"
	"log/slog"
	"time"

	"tidb-loadergen/internal/observability"
)

// BatchStats describes one dispatched batch.
type BatchStats = observability.BatchStats

// MetricsRecorder receives per-batch statistics.
type MetricsRecorder interface {
	RecordBatch(ctx context.Context, stats BatchStats)
}

type options struct {
	wait     time.Duration
	maxBatch int
	logger   *slog.Logger
	metrics  MetricsRecorder
}

func defaultOptions() options {
	opts := options{
		wait:     DefaultWait,
		maxBatch: DefaultMaxBatch,
	}
	// A nil *LoaderMetrics stored in the interface would not compare equal to nil.
	if m := observability.DefaultLoaderMetrics(); m != nil {
		opts.metrics = m
	}
	return opts
}

// Option configures a loader.
type Option func(*options)

// WithWait sets how long a batch window stays open.
func WithWait(d time.Duration) Option {
	return func(o *options) {
		o.wait = d
	}
}

// WithMaxBatch caps the distinct keys per query. Zero means unbounded.
func WithMaxBatch(n int) Option {
	return func(o *options) {
		o.maxBatch = n
	}
}

// WithLogger enables debug records for dispatched batches.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics replaces the default OpenTelemetry instruments. Nil disables metrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}
