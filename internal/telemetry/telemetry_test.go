package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hoanghero125/visaid/internal/pipeline"
)

func newTestMetrics(t *testing.T, droppedFn func() int64) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp, droppedFn)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordSession(t *testing.T) {
	m, reader := newTestMetrics(t, nil)

	m.RecordSession("completed", 3*time.Second)
	m.RecordSession("failed", 500*time.Millisecond)

	rm := collect(t, reader)

	sessions := findMetric(rm, "visaid.sessions")
	require.NotNil(t, sessions)
	sum, ok := sessions.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	duration := findMetric(rm, "visaid.session.duration")
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestObserveStage(t *testing.T) {
	m, reader := newTestMetrics(t, nil)

	m.ObserveStage(pipeline.StageTranscribe, 800*time.Millisecond, false)
	m.ObserveStage(pipeline.StageAnalyze, 2*time.Second, true)

	rm := collect(t, reader)

	stage := findMetric(rm, "visaid.stage.duration")
	require.NotNil(t, stage)
	hist, ok := stage.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)
}

func TestDroppedPressesCallback(t *testing.T) {
	dropped := int64(7)
	m, reader := newTestMetrics(t, func() int64 { return dropped })
	require.NotNil(t, m)

	rm := collect(t, reader)

	dropMetric := findMetric(rm, "visaid.button.dropped_presses")
	require.NotNil(t, dropMetric)
	sum, ok := dropMetric.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(7), sum.DataPoints[0].Value)
}

func TestInitWritesMetricsFile(t *testing.T) {
	dir := t.TempDir()

	metrics, shutdown, err := Init(dir, "test", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	metrics.RecordSession("completed", time.Second)
	shutdown(context.Background())
}
