package core

import (
	"encoding/json"
	"fmt"
)

// Payload represents a typed event body. Concrete payload types implement the
// unexported isPayload marker enabling a closed set; OpaquePayload is the
// catch-all for producers and wire peers this version does not know about.
type Payload interface{ isPayload() }

// MemoryEventPayload accompanies memory.* events. It carries identifiers
// only, never embeddings or raw vectors.
type MemoryEventPayload struct {
	MemoryID   string `json:"memory_id,omitempty"`
	OriginalID string `json:"original_id,omitempty"`
	Tier       Tier   `json:"tier,omitempty"`
	Count      int    `json:"count,omitempty"`
}

func (MemoryEventPayload) isPayload() {}

// TaskResultPayload accompanies task.complete events.
type TaskResultPayload struct {
	TaskType string  `json:"task_type"`
	Result   any     `json:"result,omitempty"`
	Context  Context `json:"context"`
}

func (TaskResultPayload) isPayload() {}

// ErrorPayload accompanies task.error and reasoning.error events. Error is
// the message string; the originating error value is not serialized.
type ErrorPayload struct {
	Error   string  `json:"error"`
	Context Context `json:"context"`
}

func (ErrorPayload) isPayload() {}

// ConsolidationPayload accompanies consolidation.completed events with the
// outcome of one scheduler pass.
type ConsolidationPayload struct {
	Scanned  int `json:"scanned"`
	Promoted int `json:"promoted"`
	Evicted  int `json:"evicted"`
	Failed   int `json:"failed"`
}

func (ConsolidationPayload) isPayload() {}

// PlanPayload accompanies reasoning.complete events for planning requests.
type PlanPayload struct {
	Goal    string `json:"goal"`
	Actions int    `json:"actions"`
}

func (PlanPayload) isPayload() {}

// TaskEventPayload carries a task on task.new events.
type TaskEventPayload struct {
	Task Task `json:"task"`
}

func (TaskEventPayload) isPayload() {}

// OpaquePayload is the forward-compatibility variant: an arbitrary key/value
// body for event kinds with no dedicated payload type.
type OpaquePayload map[string]any

func (OpaquePayload) isPayload() {}

// payloadEnvelope is the tagged wire form of a Payload.
type payloadEnvelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

const (
	payloadKindMemory        = "memory"
	payloadKindTaskResult    = "task_result"
	payloadKindError         = "error"
	payloadKindConsolidation = "consolidation"
	payloadKindPlan          = "plan"
	payloadKindTask          = "task"
	payloadKindOpaque        = "opaque"
)

// MarshalPayload encodes a payload as a {kind, body} envelope.
func MarshalPayload(p Payload) (json.RawMessage, error) {
	var kind string
	switch p.(type) {
	case MemoryEventPayload:
		kind = payloadKindMemory
	case TaskResultPayload:
		kind = payloadKindTaskResult
	case ErrorPayload:
		kind = payloadKindError
	case ConsolidationPayload:
		kind = payloadKindConsolidation
	case PlanPayload:
		kind = payloadKindPlan
	case TaskEventPayload:
		kind = payloadKindTask
	case OpaquePayload:
		kind = payloadKindOpaque
	default:
		return nil, fmt.Errorf("unsupported payload type %T", p)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{Kind: kind, Body: body})
}

// UnmarshalPayload decodes a {kind, body} envelope. Unknown kinds are decoded
// into OpaquePayload rather than rejected.
func UnmarshalPayload(data json.RawMessage) (Payload, error) {
	if len(data) == 0 {
		return OpaquePayload{}, nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case payloadKindMemory:
		var p MemoryEventPayload
		return p, json.Unmarshal(env.Body, &p)
	case payloadKindTaskResult:
		var p TaskResultPayload
		return p, json.Unmarshal(env.Body, &p)
	case payloadKindError:
		var p ErrorPayload
		return p, json.Unmarshal(env.Body, &p)
	case payloadKindConsolidation:
		var p ConsolidationPayload
		return p, json.Unmarshal(env.Body, &p)
	case payloadKindPlan:
		var p PlanPayload
		return p, json.Unmarshal(env.Body, &p)
	case payloadKindTask:
		var p TaskEventPayload
		return p, json.Unmarshal(env.Body, &p)
	default:
		var p OpaquePayload
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
}
