// Package telemetry wires OpenTelemetry metrics for the daemon. Metrics are
// exported as JSON to a rotating file under the state directory so field
// units can be inspected without a collector.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/hoanghero125/visaid/internal/pipeline"
)

const meterName = "github.com/hoanghero125/visaid"

// stageBuckets covers the expected range of remote inference latencies.
var stageBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40}

// Metrics holds the daemon's metric instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// Sessions counts completed lifecycles by outcome.
	Sessions metric.Int64Counter

	// SessionDuration tracks press-to-answer latency end to end.
	SessionDuration metric.Float64Histogram

	// StageDuration tracks per-stage inference latency by stage and status.
	StageDuration metric.Float64Histogram

	// DroppedPresses reports button presses discarded while a session was
	// in flight, observed from the monitor's counter.
	DroppedPresses metric.Int64ObservableCounter
}

// NewMetrics creates the instrument set on the given provider. droppedFn, when
// non-nil, is polled for the cumulative dropped-press count at each export.
func NewMetrics(mp metric.MeterProvider, droppedFn func() int64) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.Sessions, err = m.Int64Counter("visaid.sessions",
		metric.WithDescription("Completed session lifecycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("visaid.session.duration",
		metric.WithDescription("Press-to-answer session latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("visaid.stage.duration",
		metric.WithDescription("Per-stage pipeline latency by stage and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DroppedPresses, err = m.Int64ObservableCounter("visaid.button.dropped_presses",
		metric.WithDescription("Button presses discarded while a session was in flight."),
	); err != nil {
		return nil, err
	}

	if droppedFn != nil {
		if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(met.DroppedPresses, droppedFn())
			return nil
		}, met.DroppedPresses); err != nil {
			return nil, err
		}
	}

	return met, nil
}

// RecordSession satisfies the session meter contract.
func (m *Metrics) RecordSession(outcome string, duration time.Duration) {
	ctx := context.Background()
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.SessionDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ObserveStage satisfies the pipeline stage observer contract.
func (m *Metrics) ObserveStage(stage pipeline.Stage, duration time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.StageDuration.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("status", status),
		))
}

// Init builds the meter provider exporting to stateDir/metrics.jsonl and
// installs it globally. The returned shutdown flushes pending exports.
func Init(stateDir string, version string, droppedFn func() int64, logger *slog.Logger) (*Metrics, func(context.Context), error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", "visaid"),
		attribute.String("service.version", version),
	)

	metricsFile := &lumberjack.Logger{
		Filename:   filepath.Join(stateDir, "metrics.jsonl"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second)),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	metrics, err := NewMetrics(mp, droppedFn)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric instruments: %w", err)
	}

	shutdown := func(ctx context.Context) {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(flushCtx); err != nil && logger != nil {
			logger.Debug("meter provider shutdown failed", "error", err.Error())
		}
		if err := metricsFile.Close(); err != nil && logger != nil {
			logger.Debug("metrics file close failed", "error", err.Error())
		}
	}

	return metrics, shutdown, nil
}
