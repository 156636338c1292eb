package cogmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/cogmesh/core"
)

// registerHandlers installs the default task handlers routing dispatched
// tasks to the subsystems.
func (m *Mesh) registerHandlers() {
	m.dispatcher.Register(core.TaskMemory, m.handleMemoryTask)
	m.dispatcher.Register(core.TaskReasoning, m.handleReasoningTask)
	m.dispatcher.Register(core.TaskKnowledge, m.handleKnowledgeTask)
}

func (m *Mesh) handleMemoryTask(ctx context.Context, task core.Task) (any, error) {
	p, ok := task.Payload.(core.MemoryTask)
	if !ok {
		return nil, &core.ValidationError{Field: "payload", Reason: fmt.Sprintf("expected memory payload, got %T", task.Payload)}
	}
	switch p.Op {
	case core.MemoryOpStore:
		if p.Record == nil {
			return nil, &core.ValidationError{Field: "record", Reason: "store requires a record"}
		}
		return m.memory.Store(ctx, *p.Record, task.Context)
	case core.MemoryOpRetrieve:
		if p.Query == nil {
			return nil, &core.ValidationError{Field: "query", Reason: "retrieve requires a query"}
		}
		return m.memory.Retrieve(ctx, *p.Query, task.Context)
	case core.MemoryOpUpdate:
		if p.MemoryID == "" {
			return nil, &core.ValidationError{Field: "memory_id", Reason: "update requires a memory id"}
		}
		return nil, m.memory.Update(ctx, p.MemoryID, p.Metadata, task.Context)
	case core.MemoryOpForget:
		if p.MemoryID == "" {
			return nil, &core.ValidationError{Field: "memory_id", Reason: "forget requires a memory id"}
		}
		return nil, m.memory.Forget(ctx, p.MemoryID, task.Context)
	default:
		return nil, &core.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown memory op %q", p.Op)}
	}
}

func (m *Mesh) handleReasoningTask(ctx context.Context, task core.Task) (any, error) {
	p, ok := task.Payload.(core.ReasoningTask)
	if !ok {
		return nil, &core.ValidationError{Field: "payload", Reason: fmt.Sprintf("expected reasoning payload, got %T", task.Payload)}
	}
	switch p.Op {
	case core.ReasoningOpInfer:
		return m.reasoning.Infer(ctx, p.Query, task.Context)
	case core.ReasoningOpPlan:
		return m.reasoning.Plan(ctx, p.Goal, task.Context)
	default:
		return nil, &core.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown reasoning op %q", p.Op)}
	}
}

func (m *Mesh) handleKnowledgeTask(ctx context.Context, task core.Task) (any, error) {
	p, ok := task.Payload.(core.KnowledgeTask)
	if !ok {
		return nil, &core.ValidationError{Field: "payload", Reason: fmt.Sprintf("expected knowledge payload, got %T", task.Payload)}
	}
	switch p.Op {
	case core.KnowledgeOpIngest:
		return m.knowledge.Ingest(ctx, p.Content, p.Params, task.Context)
	case core.KnowledgeOpQuery:
		return m.knowledge.Query(ctx, p.Query, p.Limit, task.Context)
	case core.KnowledgeOpSynthesize:
		return m.knowledge.Synthesize(ctx, p.Query, task.Context)
	default:
		return nil, &core.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown knowledge op %q", p.Op)}
	}
}
