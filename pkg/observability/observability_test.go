package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestLeadMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLeadMetrics(reg)

	m.RecordLoad(ResultOK, 0.2)
	m.RecordTransition("COMPLETED", ResultConfirmed)
	m.SetPending(2)
	m.SetCategorySize("new", 5)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	for _, name := range []string{
		"redora_leads_loads_total",
		"redora_leads_load_seconds",
		"redora_leads_stale_responses_total",
		"redora_leads_transitions_total",
		"redora_leads_pending_transitions",
		"redora_leads_category_size",
	} {
		assert.True(t, found[name], "metric %s not registered", name)
	}
}

func TestLeadMetrics_Values(t *testing.T) {
	m := NewLeadMetrics(prometheus.NewRegistry())

	m.RecordLoad(ResultOK, 0.1)
	m.RecordLoad(ResultStale, 0.1)
	m.RecordLoad(ResultStale, 0.1)
	m.RecordTransition("LEAD", ResultRolledBack)
	m.SetPending(3)
	m.SetCategorySize("completed", 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StaleResponsesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("LEAD", ResultRolledBack)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PendingTransitions))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.CategorySize.WithLabelValues("completed")))
}

func TestLeadMetrics_NilSafe(t *testing.T) {
	var m *LeadMetrics
	assert.NotPanics(t, func() {
		m.RecordLoad(ResultOK, 1)
		m.RecordTransition("NEW", ResultConfirmed)
		m.SetPending(1)
		m.SetCategorySize("new", 1)
	})
}

func TestTracer_Spans(t *testing.T) {
	tracer := NewTracerFromProvider(noop.NewTracerProvider())

	ctx, span := tracer.StartLoadSpan(context.Background(), 3, 70, "golang")
	require.NotNil(t, span)
	EndSpan(span, ResultOK, nil, "", false)

	_, span = tracer.StartClassifySpan(ctx, "p1", "COMPLETED")
	require.NotNil(t, span)
	EndSpan(span, ResultRolledBack, errors.New("rejected"), "classify_rejected", false)

	assert.Empty(t, GetTraceID(ctx), "noop provider produces no trace id")
}

func TestNewTracer_GlobalProvider(t *testing.T) {
	tracer := NewTracer()
	_, span := tracer.StartClassifySpan(context.Background(), "p1", "LEAD")
	assert.NotNil(t, span)
	span.End()
}

func TestGetTraceID_FromSpanContext(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", GetTraceID(ctx))
}
