package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for lead operations.
	TracerName = "redora/leads"
)

// Span attribute keys
const (
	AttrLeadID    = "lead_id"
	AttrStatus    = "status"
	AttrEpoch     = "epoch"
	AttrScore     = "relevancy_score"
	AttrSubreddit = "subreddit"
	AttrResult    = "result"
	AttrErrorCode = "error_code"
	AttrRetryable = "retryable"
)

// Span names
const (
	SpanLoadAll  = "leads.load_all"
	SpanClassify = "leads.classify"
)

// Tracer provides distributed tracing for lead operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global OpenTelemetry provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// NewTracerFromProvider creates a tracer from an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartLoadSpan starts a span for a four-category load.
func (t *Tracer) StartLoadSpan(ctx context.Context, epoch uint64, score int, subreddit string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanLoadAll,
		trace.WithAttributes(
			attribute.Int64(AttrEpoch, int64(epoch)),
			attribute.Int(AttrScore, score),
			attribute.String(AttrSubreddit, subreddit),
		),
	)
}

// StartClassifySpan starts a span for a single lead transition.
func (t *Tracer) StartClassifySpan(ctx context.Context, leadID, status string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanClassify,
		trace.WithAttributes(
			attribute.String(AttrLeadID, leadID),
			attribute.String(AttrStatus, status),
		),
	)
}

// EndSpan finishes span with result, recording err when non-nil.
func EndSpan(span trace.Span, result string, err error, code string, retryable bool) {
	span.SetAttributes(attribute.String(AttrResult, result))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String(AttrErrorCode, code),
			attribute.Bool(AttrRetryable, retryable),
		)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
