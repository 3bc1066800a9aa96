// Package events publishes confirmed lead status transitions so downstream
// automation (comment and DM schedulers) can react to triage decisions.
package events

import (
	"context"
	"time"
)

// Channel names
const (
	ChannelLeadStatusChanged = "events.lead.status_changed"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
	Version       string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent stamped with the current UTC time.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "redora-cli",
		Version:   "1.0",
	}
}

// TransitionEvent is published once the server confirms a lead status change.
type TransitionEvent struct {
	BaseEvent

	TransitionID string    `json:"transition_id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	LeadID       string    `json:"lead_id"`
	SourceID     string    `json:"source_id,omitempty"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	StartedAt    time.Time `json:"started_at"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
}

// Publisher delivers transition events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishTransition(ctx context.Context, event TransitionEvent) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) PublishTransition(context.Context, TransitionEvent) error { return nil }
func (NopPublisher) Close() error                                            { return nil }
