package testutil

import (
	"time"

	"github.com/hupe1980/cogmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Type("memory.stored").Priority(core.PriorityHigh).Build()
type EventBuilder struct {
	eventType     string
	payload       core.Payload
	priority      core.Priority
	correlationID string
	source        string
	id            string
	createdAt     *time.Time
	status        core.Status
}

// NewEventBuilder creates a builder with default type "task.new" and normal
// priority.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{eventType: core.EventTaskNew, priority: core.PriorityNormal}
}

// Type sets the event type (chainable).
func (b *EventBuilder) Type(t string) *EventBuilder { b.eventType = t; return b }

// Payload sets the event payload (chainable).
func (b *EventBuilder) Payload(p core.Payload) *EventBuilder { b.payload = p; return b }

// Priority sets the event priority (chainable).
func (b *EventBuilder) Priority(p core.Priority) *EventBuilder { b.priority = p; return b }

// Correlation sets the correlation group (chainable).
func (b *EventBuilder) Correlation(id string) *EventBuilder { b.correlationID = id; return b }

// Source sets the publishing subsystem name (chainable).
func (b *EventBuilder) Source(s string) *EventBuilder { b.source = s; return b }

// ID overrides the auto-generated event ID (chainable). Use mainly in tests
// where determinism matters.
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// CreatedAt pins the creation timestamp (chainable).
func (b *EventBuilder) CreatedAt(ts time.Time) *EventBuilder { b.createdAt = &ts; return b }

// Status overrides the initial pending status (chainable).
func (b *EventBuilder) Status(s core.Status) *EventBuilder { b.status = s; return b }

// Build assembles the event.
func (b *EventBuilder) Build() core.Event {
	e := core.NewEvent(b.eventType, b.payload, b.priority, b.correlationID, b.source)
	if b.id != "" {
		e.ID = b.id
		if b.correlationID == "" {
			e.CorrelationID = b.id
		}
	}
	if b.createdAt != nil {
		e.CreatedAt = *b.createdAt
	}
	if b.status != "" {
		e.Status = b.status
	}
	return e
}
