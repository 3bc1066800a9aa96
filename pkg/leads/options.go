package leads

import (
	"time"

	"github.com/redoraai/redora-cli/pkg/events"
	"github.com/redoraai/redora-cli/pkg/logging"
	"github.com/redoraai/redora-cli/pkg/observability"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards output.
func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the Prometheus collectors. Nil disables metrics.
func WithMetrics(m *observability.LeadMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTracer sets the tracer used for load and classify spans.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithPublisher sets where confirmed transitions are published.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithObserver registers fn to receive a Snapshot after every state change.
// fn is called without the coordinator lock held and may call back into the
// coordinator. Calls from concurrent operations may arrive out of order;
// compare Snapshot.Revision to discard older ones.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Coordinator) { c.observer = fn }
}

// WithClock overrides time.Now for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTenantID stamps published events with the tenant they belong to.
func WithTenantID(id string) Option {
	return func(c *Coordinator) { c.tenantID = id }
}
