// Package observe provides application-wide observability primitives for
// Cadenza: OpenTelemetry metrics, tracing, and HTTP middleware tying them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Cadenza metrics.
const meterName = "github.com/cadenza-audio/cadenza"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ScoringDuration tracks how long evaluating one finalised transcript
	// segment takes, from final received to score folded.
	ScoringDuration metric.Float64Histogram

	// SegmentScore tracks the distribution of per-segment total scores.
	SegmentScore metric.Float64Histogram

	// DetectedPitch tracks the distribution of detected fundamental
	// frequencies in Hz, over active-voice frames only.
	DetectedPitch metric.Float64Histogram

	// TranscriptFinals counts finalised transcript segments. Use with
	// attribute: attribute.String("provider", ...)
	TranscriptFinals metric.Int64Counter

	// ProviderErrors counts speech-to-text provider errors. Use with
	// attributes: attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of live karaoke sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// scoringBuckets defines histogram bucket boundaries (in seconds) sized for
// the per-segment scoring path, which should stay well under a frame period.
var scoringBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
}

// scoreBuckets covers the 0–100 score range.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// pitchBuckets covers the plausible singing range in Hz.
var pitchBuckets = []float64{80, 110, 160, 220, 330, 440, 600, 800}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ScoringDuration, err = m.Float64Histogram("cadenza.scoring.duration",
		metric.WithDescription("Latency of scoring one finalised transcript segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(scoringBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentScore, err = m.Float64Histogram("cadenza.scoring.segment_score",
		metric.WithDescription("Distribution of per-segment total scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DetectedPitch, err = m.Float64Histogram("cadenza.pitch.detected_hz",
		metric.WithDescription("Distribution of detected fundamental frequencies."),
		metric.WithUnit("Hz"),
		metric.WithExplicitBucketBoundaries(pitchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptFinals, err = m.Int64Counter("cadenza.stt.finals",
		metric.WithDescription("Total finalised transcript segments by provider."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cadenza.stt.errors",
		metric.WithDescription("Total speech-to-text provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("cadenza.active_sessions",
		metric.WithDescription("Number of live karaoke sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("cadenza.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment records one scored segment: the scoring latency and the
// resulting total score.
func (m *Metrics) RecordSegment(ctx context.Context, elapsed time.Duration, totalScore int) {
	if m == nil {
		return
	}
	m.ScoringDuration.Record(ctx, elapsed.Seconds())
	m.SegmentScore.Record(ctx, float64(totalScore))
}

// RecordPitch records one detected pitch estimate.
func (m *Metrics) RecordPitch(ctx context.Context, hz float64) {
	if m == nil || hz <= 0 {
		return
	}
	m.DetectedPitch.Record(ctx, hz)
}

// RecordFinal records one finalised transcript segment from provider.
func (m *Metrics) RecordFinal(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.TranscriptFinals.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordProviderError records one provider error of the given kind.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// SessionStarted increments the active-session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded decrements the active-session gauge.
func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
