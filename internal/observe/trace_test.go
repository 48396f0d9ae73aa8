package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracerProvider returns a TracerProvider with an in-memory exporter
// for inspecting recorded spans.
func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

// swapGlobalTracerProvider installs tp as the global provider for the duration
// of the test.
func swapGlobalTracerProvider(t *testing.T, tp *sdktrace.TracerProvider) {
	t.Helper()
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestCorrelationID_ReturnsTraceID(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	tracer := tp.Tracer("test")

	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Errorf("correlation ID length = %d, want 32", len(cid))
	}
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	swapGlobalTracerProvider(t, tp)

	_, span := StartSpan(context.Background(), "score-segment")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "score-segment" {
		t.Fatalf("spans = %+v, want one span named score-segment", spans)
	}
}

func TestStartSegmentSpan_RecordsWindowAndScore(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	swapGlobalTracerProvider(t, tp)

	_, span := StartSegmentSpan(context.Background(), "song-42", 2*time.Second, 5*time.Second)
	span.SetAttributes(AttrSegmentScore.Int(87))
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "session.score_segment" {
		t.Errorf("span name = %q, want session.score_segment", got.Name)
	}

	want := map[attribute.Key]attribute.Value{
		AttrSongID:         attribute.StringValue("song-42"),
		AttrSegmentStartMS: attribute.Int64Value(2000),
		AttrSegmentEndMS:   attribute.Int64Value(5000),
		AttrSegmentScore:   attribute.Int64Value(87),
	}
	seen := make(map[attribute.Key]attribute.Value, len(got.Attributes))
	for _, kv := range got.Attributes {
		seen[kv.Key] = kv.Value
	}
	for k, v := range want {
		if seen[k] != v {
			t.Errorf("attribute %s = %v, want %v", k, seen[k], v)
		}
	}
}
