// Package tracing carries the trace identifier of a task across process
// boundaries using the W3C trace context header.
package tracing

import (
	"context"
	"net/http"
	"strings"

	"orchestrator-api/internal/shared"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "orchestrator-api"

var propagator = propagation.TraceContext{}

func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func NewTraceID() trace.TraceID {
	return trace.TraceID(uuid.New())
}

func newSpanID() trace.SpanID {
	id := uuid.New()
	var sid trace.SpanID
	copy(sid[:], id[:8])
	return sid
}

// ContextWithTraceID makes traceID the remote parent of any span started from
// the returned context. A context already carrying that trace is returned as is.
func ContextWithTraceID(ctx context.Context, traceID trace.TraceID) context.Context {
	if !traceID.IsValid() {
		return ctx
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() && sc.TraceID() == traceID {
		return ctx
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     newSpanID(),
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// TraceIDFromContext returns the active trace id, if any.
func TraceIDFromContext(ctx context.Context) (trace.TraceID, bool) {
	sc := trace.SpanContextFromContext(ctx)
	return sc.TraceID(), sc.IsValid()
}

// Extract reads an inbound traceparent. ok is false when the header is
// missing or malformed.
func Extract(ctx context.Context, headers http.Header) (context.Context, trace.TraceID, bool) {
	ctx = propagator.Extract(ctx, propagation.HeaderCarrier(headers))
	traceID, ok := TraceIDFromContext(ctx)
	return ctx, traceID, ok
}

// WithTraceparentHeader returns a copy of headers whose trace context keys are
// owned by us: any caller supplied traceparent / tracestate is dropped and the
// active trace context is injected. When ctx carries no trace a fresh one is
// started so the header is always present.
func WithTraceparentHeader(ctx context.Context, headers http.Header) http.Header {
	out := headers.Clone()
	if out == nil {
		out = http.Header{}
	}
	// keys may not be canonical when the map was built by hand
	for k := range out {
		if strings.EqualFold(k, shared.TraceparentHeader) || strings.EqualFold(k, shared.TracestateHeader) {
			delete(out, k)
		}
	}
	if !trace.SpanContextFromContext(ctx).IsValid() {
		ctx = ContextWithTraceID(ctx, NewTraceID())
	}
	propagator.Inject(ctx, propagation.HeaderCarrier(out))
	return out
}
