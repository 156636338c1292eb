package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders events for consumers that drain the optional priority
// index. Higher values sort earlier.
type Priority int

const (
	// PriorityLow marks background / best-effort events.
	PriorityLow Priority = iota
	// PriorityNormal is the default for regular events.
	PriorityNormal
	// PriorityHigh marks events that should preempt normal work.
	PriorityHigh
	// PriorityCritical marks events that must be handled before anything else.
	PriorityCritical
)

// String returns the lowercase name of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Status tracks an event through its delivery lifecycle. The only legal
// transitions are pending -> processing -> {completed | failed}; both end
// states are terminal and there is no path back to pending.
type Status string

const (
	// StatusPending is the initial state assigned on publish.
	StatusPending Status = "pending"
	// StatusProcessing is set by the bus while callbacks run.
	StatusProcessing Status = "processing"
	// StatusCompleted is the terminal success state.
	StatusCompleted Status = "completed"
	// StatusFailed is the terminal failure state.
	StatusFailed Status = "failed"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Well-known event types. Producers are not limited to this set; it exists so
// subsystems agree on channel names without scattering string literals.
const (
	EventTaskNew      = "task.new"
	EventTaskComplete = "task.complete"
	EventTaskError    = "task.error"

	EventMemoryStored       = "memory.stored"
	EventMemoryRetrieved    = "memory.retrieved"
	EventMemoryUpdated      = "memory.updated"
	EventMemoryConsolidated = "memory.consolidated"
	EventMemoryEvicted      = "memory.evicted"
	EventMemoryForgotten    = "memory.forgotten"
	EventMemoryAssociated   = "memory.associated"

	EventReasoningComplete = "reasoning.complete"
	EventReasoningError    = "reasoning.error"

	EventKnowledgeIngested    = "knowledge.ingested"
	EventKnowledgeSynthesized = "knowledge.synthesized"

	EventConsolidationCompleted = "consolidation.completed"
)

// priorityScoreUnit spreads priority levels far enough apart that creation
// time never reorders events across levels in the priority index.
const priorityScoreUnit = 1_000_000

// Event is the unit of communication on the bus. It is created by Publish,
// mutated only by the bus as delivery proceeds, and removed only by bounded
// history trimming. CorrelationID groups causally related events; it defaults
// to the event's own ID.
type Event struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Payload       Payload    `json:"payload"`
	Priority      Priority   `json:"priority"`
	CorrelationID string     `json:"correlation_id"`
	Source        string     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
	Status        Status     `json:"status"`
	Error         string     `json:"error"`
}

// NewEvent constructs a pending event. An empty correlationID defaults to the
// new event's own ID so every event belongs to exactly one correlation group.
func NewEvent(eventType string, payload Payload, priority Priority, correlationID, source string) Event {
	id := NewID()
	if correlationID == "" {
		correlationID = id
	}
	if source == "" {
		source = "system"
	}
	if payload == nil {
		payload = OpaquePayload{}
	}
	return Event{
		ID:            id,
		Type:          eventType,
		Payload:       payload,
		Priority:      priority,
		CorrelationID: correlationID,
		Source:        source,
		CreatedAt:     time.Now().UTC(),
		Status:        StatusPending,
	}
}

// NewID generates a new unique identifier for events, records and tasks.
func NewID() string { return uuid.NewString() }

// PriorityScore computes the rank used by the pull-style priority index:
// creation time in seconds plus a large per-level offset so that, drained in
// ascending score order, critical events come out before high, and high
// before anything later.
func (e Event) PriorityScore() float64 {
	return float64(e.CreatedAt.Unix()) + float64(PriorityCritical-e.Priority)*priorityScoreUnit
}

// eventWire is the flat serialization form of an Event. Payload travels as a
// tagged envelope (see payload.go).
type eventWire struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Priority      Priority        `json:"priority"`
	CorrelationID string          `json:"correlation_id"`
	Source        string          `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at"`
	Status        Status          `json:"status"`
	Error         string          `json:"error,omitempty"`
}

// MarshalJSON serializes the event as a flat record with a tagged payload
// envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	raw, err := MarshalPayload(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(eventWire{
		ID:            e.ID,
		Type:          e.Type,
		Payload:       raw,
		Priority:      e.Priority,
		CorrelationID: e.CorrelationID,
		Source:        e.Source,
		CreatedAt:     e.CreatedAt,
		ProcessedAt:   e.ProcessedAt,
		Status:        e.Status,
		Error:         e.Error,
	})
}

// UnmarshalJSON parses the flat wire form produced by MarshalJSON. Unknown
// payload kinds decode into OpaquePayload for forward compatibility.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := UnmarshalPayload(w.Payload)
	if err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	e.ID = w.ID
	e.Type = w.Type
	e.Payload = payload
	e.Priority = w.Priority
	e.CorrelationID = w.CorrelationID
	e.Source = w.Source
	e.CreatedAt = w.CreatedAt
	e.ProcessedAt = w.ProcessedAt
	e.Status = w.Status
	e.Error = w.Error
	return nil
}
