package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordSegment(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSegment(ctx, 2*time.Millisecond, 85)
	m.RecordSegment(ctx, 4*time.Millisecond, 92)

	rm := collect(t, reader)
	for _, name := range []string{"cadenza.scoring.duration", "cadenza.scoring.segment_score"} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %q is not a histogram", name)
		}
		if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
			t.Errorf("metric %q count = %+v, want 2 observations", name, hist.DataPoints)
		}
	}
}

func TestRecordPitch_IgnoresNonPositive(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPitch(ctx, 220)
	m.RecordPitch(ctx, 0)
	m.RecordPitch(ctx, -5)

	rm := collect(t, reader)
	met := findMetric(rm, "cadenza.pitch.detected_hz")
	if met == nil {
		t.Fatal("pitch metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("pitch observations = %d, want 1", hist.DataPoints[0].Count)
	}
}

func TestCountersAndGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFinal(ctx, "whisper")
	m.RecordFinal(ctx, "whisper")
	m.RecordProviderError(ctx, "whisper", "stream")
	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)

	rm := collect(t, reader)

	finals := findMetric(rm, "cadenza.stt.finals")
	if finals == nil {
		t.Fatal("finals metric not found")
	}
	if sum := finals.Data.(metricdata.Sum[int64]); sum.DataPoints[0].Value != 2 {
		t.Errorf("finals = %d, want 2", sum.DataPoints[0].Value)
	}

	errs := findMetric(rm, "cadenza.stt.errors")
	if errs == nil {
		t.Fatal("errors metric not found")
	}
	if sum := errs.Data.(metricdata.Sum[int64]); sum.DataPoints[0].Value != 1 {
		t.Errorf("errors = %d, want 1", sum.DataPoints[0].Value)
	}

	sessions := findMetric(rm, "cadenza.active_sessions")
	if sessions == nil {
		t.Fatal("sessions metric not found")
	}
	if sum := sessions.Data.(metricdata.Sum[int64]); sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// Convenience recorders must tolerate a nil receiver so wiring metrics
	// stays optional for callers.
	m.RecordSegment(ctx, time.Millisecond, 50)
	m.RecordPitch(ctx, 220)
	m.RecordFinal(ctx, "mock")
	m.RecordProviderError(ctx, "mock", "stream")
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)
}
