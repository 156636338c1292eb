package core

import (
	"encoding/json"
	"fmt"
)

// TaskType identifies the subsystem a task is routed to.
type TaskType string

const (
	// TaskMemory routes to the memory store handler.
	TaskMemory TaskType = "memory"
	// TaskReasoning routes to the reasoning/planning engine handler.
	TaskReasoning TaskType = "reasoning"
	// TaskKnowledge routes to the knowledge manager handler.
	TaskKnowledge TaskType = "knowledge"
)

// Task is a typed unit of work dispatched to a subsystem handler. Payload is
// a closed union with one variant per subsystem plus an opaque catch-all.
type Task struct {
	Type    TaskType    `json:"type"`
	Payload TaskPayload `json:"payload"`
	Context Context     `json:"context"`
}

// TaskPayload is the closed union of per-subsystem task bodies.
type TaskPayload interface{ isTaskPayload() }

// Memory operations.
const (
	MemoryOpStore    = "store"
	MemoryOpRetrieve = "retrieve"
	MemoryOpUpdate   = "update"
	MemoryOpForget   = "forget"
)

// MemoryTask is the payload variant for memory tasks.
type MemoryTask struct {
	Op       string            `json:"op"`
	Record   *MemoryRecord     `json:"record,omitempty"`   // store
	Query    *MemoryQuery      `json:"query,omitempty"`    // retrieve
	MemoryID string            `json:"memory_id,omitempty"` // update / forget
	Metadata map[string]string `json:"metadata,omitempty"`  // update
}

func (MemoryTask) isTaskPayload() {}

// Reasoning operations.
const (
	ReasoningOpInfer = "infer"
	ReasoningOpPlan  = "plan"
)

// ReasoningTask is the payload variant for reasoning tasks.
type ReasoningTask struct {
	Op    string `json:"op"`
	Query string `json:"query,omitempty"` // infer
	Goal  string `json:"goal,omitempty"`  // plan
}

func (ReasoningTask) isTaskPayload() {}

// Knowledge operations.
const (
	KnowledgeOpIngest     = "ingest"
	KnowledgeOpQuery      = "query"
	KnowledgeOpSynthesize = "synthesize"
)

// KnowledgeTask is the payload variant for knowledge tasks.
type KnowledgeTask struct {
	Op      string            `json:"op"`
	Content string            `json:"content,omitempty"` // ingest
	Query   string            `json:"query,omitempty"`   // query / synthesize
	Limit   int               `json:"limit,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

func (KnowledgeTask) isTaskPayload() {}

// OpaqueTask carries an arbitrary body for task kinds this version does not
// model. Handlers receiving one decide whether to reject or interpret it.
type OpaqueTask map[string]any

func (OpaqueTask) isTaskPayload() {}

const (
	taskKindMemory    = "memory"
	taskKindReasoning = "reasoning"
	taskKindKnowledge = "knowledge"
	taskKindOpaque    = "opaque"
)

// taskWire is the flat serialization form of a Task. The payload travels as
// a tagged envelope, mirroring event payloads.
type taskWire struct {
	Type    TaskType        `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Context Context         `json:"context"`
}

type taskEnvelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// MarshalJSON serializes the task with a tagged payload envelope.
func (t Task) MarshalJSON() ([]byte, error) {
	var kind string
	switch t.Payload.(type) {
	case MemoryTask:
		kind = taskKindMemory
	case ReasoningTask:
		kind = taskKindReasoning
	case KnowledgeTask:
		kind = taskKindKnowledge
	case OpaqueTask, nil:
		kind = taskKindOpaque
	default:
		return nil, fmt.Errorf("unsupported task payload type %T", t.Payload)
	}
	payload := t.Payload
	if payload == nil {
		payload = OpaqueTask{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env, err := json.Marshal(taskEnvelope{Kind: kind, Body: body})
	if err != nil {
		return nil, err
	}
	return json.Marshal(taskWire{Type: t.Type, Payload: env, Context: t.Context})
}

// UnmarshalJSON parses the wire form produced by MarshalJSON. Unknown payload
// kinds decode into OpaqueTask.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Type = w.Type
	t.Context = w.Context
	if len(w.Payload) == 0 {
		t.Payload = OpaqueTask{}
		return nil
	}
	var env taskEnvelope
	if err := json.Unmarshal(w.Payload, &env); err != nil {
		return err
	}
	switch env.Kind {
	case taskKindMemory:
		var p MemoryTask
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return err
		}
		t.Payload = p
	case taskKindReasoning:
		var p ReasoningTask
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return err
		}
		t.Payload = p
	case taskKindKnowledge:
		var p KnowledgeTask
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return err
		}
		t.Payload = p
	default:
		var p OpaqueTask
		if err := json.Unmarshal(env.Body, &p); err != nil {
			return err
		}
		t.Payload = p
	}
	return nil
}
