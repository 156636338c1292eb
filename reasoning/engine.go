package reasoning

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/internal/util"
	"github.com/hupe1980/cogmesh/logging"
	"github.com/hupe1980/cogmesh/model"
)

// DefaultPromptTemplate is the model prompt rendered by Infer when no
// override is configured. It receives .Memories ([]string) and .Query.
const DefaultPromptTemplate = "Memories:\n{{numbered .Memories}}Question: {{.Query}}"

// Memory is the slice of the memory subsystem the engine needs.
type Memory interface {
	Retrieve(ctx context.Context, q core.MemoryQuery, cctx core.Context) ([]core.MemoryRecord, error)
	Store(ctx context.Context, rec core.MemoryRecord, cctx core.Context) (string, error)
}

// Publisher is the slice of the event bus the engine needs.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload core.Payload, optFns ...func(o *bus.PublishOptions)) (string, error)
}

// Options configure the reasoning engine.
type Options struct {
	// TopK is how many memories Infer consults.
	TopK int
	// Model produces the inference text. Nil selects a deterministic
	// built-in composition of the retrieved memories.
	Model model.Model
	// Subgoaler decomposes goals. Defaults to sentence splitting.
	Subgoaler Subgoaler
	// Planner turns subgoals into actions. Defaults to keyword mapping.
	Planner ActionPlanner
	// Constraints validate every plan.
	Constraints Constraints
	// PromptTemplate renders the model prompt for Infer. Defaults to
	// DefaultPromptTemplate.
	PromptTemplate string
	// Logger receives subsystem diagnostics.
	Logger logging.Logger
}

// Engine answers queries and plans goals over the memory subsystem.
type Engine struct {
	opts   Options
	memory Memory
	events Publisher
	logger logging.Logger
}

// New creates a reasoning engine.
func New(mem Memory, events Publisher, optFns ...func(o *Options)) *Engine {
	opts := Options{
		TopK:      5,
		Subgoaler: SentenceSubgoaler{},
		Planner:   KeywordPlanner{},
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Subgoaler == nil {
		opts.Subgoaler = SentenceSubgoaler{}
	}
	if opts.Planner == nil {
		opts.Planner = KeywordPlanner{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.PromptTemplate == "" {
		opts.PromptTemplate = DefaultPromptTemplate
	}
	return &Engine{opts: opts, memory: mem, events: events, logger: opts.Logger}
}

// Infer answers a query from the most similar stored memories and records a
// short-term trace of the memories it consulted.
func (e *Engine) Infer(ctx context.Context, query string, cctx core.Context) (core.Inference, error) {
	if query == "" {
		return core.Inference{}, &core.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	recs, err := e.memory.Retrieve(ctx, core.MemoryQuery{Content: query, Limit: e.opts.TopK}, cctx)
	if err != nil {
		e.publishError(ctx, err, cctx)
		return core.Inference{}, fmt.Errorf("retrieve memories: %w", err)
	}

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}

	text, confidence, err := e.compose(ctx, query, recs)
	if err != nil {
		e.publishError(ctx, err, cctx)
		return core.Inference{}, err
	}
	inf := core.Inference{Text: text, Confidence: confidence, MemoryIDs: ids}

	trace := core.MemoryRecord{
		Content: "inference for " + query + ": " + text,
		Tier:    core.TierShortTerm,
		Metadata: map[string]string{
			"kind":       "inference_trace",
			"memory_ids": strings.Join(ids, ","),
		},
	}
	if _, err := e.memory.Store(ctx, trace, cctx); err != nil {
		// The answer stands even when the trace cannot be written.
		e.logger.Warn("inference trace not stored", "error", err.Error())
	}

	e.publish(ctx, core.EventReasoningComplete, core.OpaquePayload{
		"operation":  "infer",
		"confidence": inf.Confidence,
		"memories":   len(ids),
	}, cctx)
	return inf, nil
}

// compose produces the inference text, via the configured model when one is
// present and a deterministic summary otherwise.
func (e *Engine) compose(ctx context.Context, query string, recs []core.MemoryRecord) (string, float64, error) {
	if e.opts.Model != nil {
		contents := make([]string, len(recs))
		for i, r := range recs {
			contents[i] = r.Content
		}
		prompt, err := util.RenderTemplate(e.opts.PromptTemplate, map[string]any{
			"Memories": contents,
			"Query":    query,
		})
		if err != nil {
			return "", 0, fmt.Errorf("render prompt: %w", err)
		}
		resp, err := e.opts.Model.Complete(ctx, model.Request{
			System: "Answer strictly from the provided memories. Say so when they are insufficient.",
			Prompt: prompt,
		})
		if err != nil {
			return "", 0, fmt.Errorf("model completion: %w", err)
		}
		confidence := 0.5
		if len(recs) > 0 {
			confidence = 0.8
		}
		return resp.Text, confidence, nil
	}

	if len(recs) == 0 {
		return "no relevant memories found for: " + query, 0.1, nil
	}
	var b strings.Builder
	b.WriteString("based on ")
	fmt.Fprintf(&b, "%d memories: ", len(recs))
	for i, r := range recs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(r.Content)
	}
	confidence := 0.2 + 0.1*float64(len(recs))
	if confidence > 0.7 {
		confidence = 0.7
	}
	return b.String(), confidence, nil
}

// Plan decomposes one goal into a validated action plan.
func (e *Engine) Plan(ctx context.Context, goal string, cctx core.Context) (core.Plan, error) {
	return e.PlanMany(ctx, []string{goal}, cctx)
}

// PlanMany builds one combined plan for several goals. Actions across goals
// are ordered by descending confidence; ties keep goal order.
func (e *Engine) PlanMany(ctx context.Context, goals []string, cctx core.Context) (core.Plan, error) {
	joined := strings.Join(goals, " ")
	if strings.TrimSpace(joined) == "" {
		return core.Plan{}, &core.ValidationError{Field: "goal", Reason: "must not be empty"}
	}

	var (
		subgoals []string
		actions  []core.Action
	)
	for _, goal := range goals {
		for _, sg := range e.opts.Subgoaler.Subgoals(goal) {
			subgoals = append(subgoals, sg)
			acts := e.opts.Planner.Actions(sg)
			if len(acts) == 0 {
				acts = []core.Action{{
					Name:        "execute_subgoal",
					Params:      map[string]string{"subgoal": sg},
					Confidence:  0.5,
					Explanation: "planner produced no actions",
				}}
			}
			actions = append(actions, acts...)
		}
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Confidence > actions[j].Confidence })

	plan := core.Plan{Goal: joined, Subgoals: subgoals, Actions: actions}
	ok, reason := e.opts.Constraints.Validate(actions)
	if ok {
		plan.Validated = true
	} else {
		e.logger.Warn("plan failed validation", "goal", joined, "reason", reason)
		plan = e.fallback(joined, reason)
	}

	e.publish(ctx, core.EventReasoningComplete, core.PlanPayload{Goal: plan.Goal, Actions: len(plan.Actions)}, cctx)
	return plan, nil
}

// fallback is the conservative plan returned when validation fails. It is
// never empty.
func (e *Engine) fallback(goal, reason string) core.Plan {
	return core.Plan{
		Goal:     goal,
		Subgoals: []string{goal},
		Actions: []core.Action{{
			Name:        "review_goal",
			Params:      map[string]string{"goal": goal},
			Confidence:  0.2,
			Explanation: "automatic planning rejected: " + reason,
		}},
		Validated: false,
		Fallback:  true,
	}
}

func (e *Engine) publish(ctx context.Context, eventType string, payload core.Payload, cctx core.Context) {
	if e.events == nil {
		return
	}
	if _, err := e.events.Publish(ctx, eventType, payload, func(o *bus.PublishOptions) {
		o.CorrelationID = cctx.RequestID
		o.Source = "reasoning"
	}); err != nil {
		e.logger.Warn("event publish failed", "event_type", eventType, "error", err.Error())
	}
}

func (e *Engine) publishError(ctx context.Context, cause error, cctx core.Context) {
	e.publish(ctx, core.EventReasoningError, core.ErrorPayload{Error: cause.Error(), Context: cctx}, cctx)
}
