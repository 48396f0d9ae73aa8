package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Cadenza tracer.
const tracerName = "github.com/cadenza-audio/cadenza"

// Span attribute keys for the karaoke domain.
var (
	// AttrSongID identifies the song being performed.
	AttrSongID = attribute.Key("cadenza.song_id")

	// AttrSegmentStartMS and AttrSegmentEndMS bound the lyric window one
	// finalised transcript segment was scored against, in milliseconds of
	// session time.
	AttrSegmentStartMS = attribute.Key("cadenza.segment.start_ms")
	AttrSegmentEndMS   = attribute.Key("cadenza.segment.end_ms")

	// AttrSegmentScore carries the weighted total awarded for one segment.
	AttrSegmentScore = attribute.Key("cadenza.segment.score")
)

// Tracer returns the package-level [trace.Tracer] for Cadenza. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartSegmentSpan starts a span covering the scoring of one finalised
// transcript segment against the lyric window [segStart, segEnd]. The caller
// records the awarded total via [AttrSegmentScore] before ending the span.
func StartSegmentSpan(ctx context.Context, songID string, segStart, segEnd time.Duration) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session.score_segment",
		trace.WithAttributes(
			AttrSongID.String(songID),
			AttrSegmentStartMS.Int64(segStart.Milliseconds()),
			AttrSegmentEndMS.Int64(segEnd.Milliseconds()),
		),
	)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
