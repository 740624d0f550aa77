package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of loader metrics.
const MeterName = "tidb-loadergen/loader"

// LoaderMetrics holds the instruments recorded for every dispatched batch.
type LoaderMetrics struct {
	batches       metric.Int64Counter
	batchKeys     metric.Int64Histogram
	batchRows     metric.Int64Histogram
	batchDuration metric.Float64Histogram
	plans         metric.Int64Counter
	errors        metric.Int64Counter
}

// BatchStats describes one dispatched batch.
type BatchStats struct {
	Table string
	// Plan is the predicate shape chosen for the batch.
	Plan     string
	Keys     int
	Rows     int
	Duration time.Duration
	Err      error
}

// InitLoaderMetrics creates loader instruments on the given meter.
func InitLoaderMetrics(meter metric.Meter) (*LoaderMetrics, error) {
	batches, err := meter.Int64Counter(
		"loader.batches",
		metric.WithDescription("Number of batches dispatched by loaders"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batches counter: %w", err)
	}

	batchKeys, err := meter.Int64Histogram(
		"loader.batch.keys",
		metric.WithDescription("Number of keys requested in a batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch keys histogram: %w", err)
	}

	batchRows, err := meter.Int64Histogram(
		"loader.batch.rows",
		metric.WithDescription("Number of rows returned for a batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch rows histogram: %w", err)
	}

	batchDuration, err := meter.Float64Histogram(
		"loader.batch.duration",
		metric.WithDescription("Duration of batch queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch duration histogram: %w", err)
	}

	plans, err := meter.Int64Counter(
		"loader.plan",
		metric.WithDescription("Number of batches planned, by predicate shape"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"loader.errors",
		metric.WithDescription("Number of batches that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	return &LoaderMetrics{
		batches:       batches,
		batchKeys:     batchKeys,
		batchRows:     batchRows,
		batchDuration: batchDuration,
		plans:         plans,
		errors:        errorCounter,
	}, nil
}

var (
	defaultLoaderMetricsOnce sync.Once
	defaultLoaderMetrics     *LoaderMetrics
)

// DefaultLoaderMetrics returns instruments bound to the global meter provider.
// It returns nil if the instruments cannot be created.
func DefaultLoaderMetrics() *LoaderMetrics {
	defaultLoaderMetricsOnce.Do(func() {
		defaultLoaderMetrics, _ = InitLoaderMetrics(otel.Meter(MeterName))
	})
	return defaultLoaderMetrics
}

// RecordBatch records one dispatched batch.
func (m *LoaderMetrics) RecordBatch(ctx context.Context, stats BatchStats) {
	if m == nil {
		return
	}
	tableAttr := attribute.String("table", stats.Table)

	m.batches.Add(ctx, 1, metric.WithAttributes(tableAttr))
	m.batchKeys.Record(ctx, int64(stats.Keys), metric.WithAttributes(tableAttr))
	m.plans.Add(ctx, 1, metric.WithAttributes(
		tableAttr,
		attribute.String("plan", stats.Plan),
	))

	if stats.Err != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(tableAttr))
		return
	}
	m.batchRows.Record(ctx, int64(stats.Rows), metric.WithAttributes(tableAttr))
	m.batchDuration.Record(ctx, float64(stats.Duration.Microseconds())/1000, metric.WithAttributes(tableAttr))
}
