// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for lead list operations.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric namespace shared by every collector in this package.
const Namespace = "redora"

// Load and transition result label values.
const (
	ResultOK         = "ok"
	ResultError      = "error"
	ResultStale      = "stale"
	ResultConfirmed  = "confirmed"
	ResultRolledBack = "rolled_back"
)

// LeadMetrics holds all Prometheus metrics for the lead coordinator.
type LeadMetrics struct {
	LoadsTotal          *prometheus.CounterVec
	LoadSeconds         prometheus.Histogram
	StaleResponsesTotal prometheus.Counter
	TransitionsTotal    *prometheus.CounterVec
	PendingTransitions  prometheus.Gauge
	CategorySize        *prometheus.GaugeVec
}

// NewLeadMetrics creates a new set of lead metrics registered on reg.
func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	factory := promauto.With(reg)

	return &LeadMetrics{
		LoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "leads",
				Name:      "loads_total",
				Help:      "Total lead list loads by result",
			},
			[]string{"result"},
		),
		LoadSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "leads",
				Name:      "load_seconds",
				Help:      "Latency of a full four-category load",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		StaleResponsesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "leads",
				Name:      "stale_responses_total",
				Help:      "Load responses dropped because a newer load superseded them",
			},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "leads",
				Name:      "transitions_total",
				Help:      "Lead status transitions by destination status and outcome",
			},
			[]string{"status", "result"},
		),
		PendingTransitions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "leads",
				Name:      "pending_transitions",
				Help:      "Transitions awaiting server confirmation",
			},
		),
		CategorySize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "leads",
				Name:      "category_size",
				Help:      "Number of leads held per category",
			},
			[]string{"category"},
		),
	}
}

// RecordLoad records a finished load and its latency.
func (m *LeadMetrics) RecordLoad(result string, seconds float64) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(result).Inc()
	if result == ResultStale {
		m.StaleResponsesTotal.Inc()
	}
	m.LoadSeconds.Observe(seconds)
}

// RecordTransition records a settled transition.
func (m *LeadMetrics) RecordTransition(status, result string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(status, result).Inc()
}

// SetPending sets the number of unconfirmed transitions.
func (m *LeadMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingTransitions.Set(float64(n))
}

// SetCategorySize sets the size gauge for one category.
func (m *LeadMetrics) SetCategorySize(category string, n int) {
	if m == nil {
		return
	}
	m.CategorySize.WithLabelValues(category).Set(float64(n))
}
