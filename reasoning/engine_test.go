package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/model"
)

// fakeMemory is a canned memory backend capturing stored traces.
type fakeMemory struct {
	results []core.MemoryRecord
	err     error
	stored  []core.MemoryRecord
}

func (f *fakeMemory) Retrieve(context.Context, core.MemoryQuery, core.Context) ([]core.MemoryRecord, error) {
	return f.results, f.err
}

func (f *fakeMemory) Store(_ context.Context, rec core.MemoryRecord, _ core.Context) (string, error) {
	f.stored = append(f.stored, rec)
	return "trace-id", nil
}

type capturePublisher struct {
	events []string
}

func (c *capturePublisher) Publish(_ context.Context, eventType string, _ core.Payload, _ ...func(o *bus.PublishOptions)) (string, error) {
	c.events = append(c.events, eventType)
	return core.NewID(), nil
}

func TestInfer_WithModel(t *testing.T) {
	mem := &fakeMemory{results: []core.MemoryRecord{
		{ID: "m1", Content: "the sky is blue"},
		{ID: "m2", Content: "water is wet"},
	}}
	mock := &model.Mock{Response: "the sky is blue"}
	pub := &capturePublisher{}
	e := New(mem, pub, func(o *Options) { o.Model = mock })

	inf, err := e.Infer(context.Background(), "what color is the sky", core.Context{})
	if err != nil {
		t.Fatalf("infer failed: %v", err)
	}
	if inf.Text != "the sky is blue" {
		t.Fatalf("unexpected answer: %q", inf.Text)
	}
	if len(inf.MemoryIDs) != 2 || inf.MemoryIDs[0] != "m1" {
		t.Fatalf("unexpected memory ids: %v", inf.MemoryIDs)
	}
	if inf.Confidence != 0.8 {
		t.Fatalf("unexpected confidence: %v", inf.Confidence)
	}
	if len(mock.Requests) != 1 || !strings.Contains(mock.Requests[0].Prompt, "the sky is blue") {
		t.Fatalf("memories not in prompt: %#v", mock.Requests)
	}

	// Trace record carries the consulted ids.
	if len(mem.stored) != 1 {
		t.Fatalf("expected one trace, got %d", len(mem.stored))
	}
	trace := mem.stored[0]
	if trace.Tier != core.TierShortTerm || trace.Metadata["memory_ids"] != "m1,m2" {
		t.Fatalf("unexpected trace: %#v", trace)
	}
	if len(pub.events) != 1 || pub.events[0] != core.EventReasoningComplete {
		t.Fatalf("unexpected events: %v", pub.events)
	}
}

func TestInfer_HeuristicWithoutModel(t *testing.T) {
	mem := &fakeMemory{results: []core.MemoryRecord{{ID: "m1", Content: "fact one"}}}
	e := New(mem, nil)

	inf, err := e.Infer(context.Background(), "anything", core.Context{})
	if err != nil {
		t.Fatalf("infer failed: %v", err)
	}
	if !strings.Contains(inf.Text, "fact one") {
		t.Fatalf("expected memory content in answer: %q", inf.Text)
	}
	if inf.Confidence <= 0.1 || inf.Confidence > 0.7 {
		t.Fatalf("unexpected confidence: %v", inf.Confidence)
	}
}

func TestInfer_NoMemories(t *testing.T) {
	e := New(&fakeMemory{}, nil)
	inf, err := e.Infer(context.Background(), "unknown topic", core.Context{})
	if err != nil {
		t.Fatalf("infer failed: %v", err)
	}
	if inf.Confidence != 0.1 || len(inf.MemoryIDs) != 0 {
		t.Fatalf("unexpected inference: %#v", inf)
	}
}

func TestInfer_RetrieveErrorPublishes(t *testing.T) {
	pub := &capturePublisher{}
	e := New(&fakeMemory{err: errors.New("storage down")}, pub)

	_, err := e.Infer(context.Background(), "q", core.Context{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(pub.events) != 1 || pub.events[0] != core.EventReasoningError {
		t.Fatalf("expected reasoning.error event, got %v", pub.events)
	}
}

func TestInfer_EmptyQuery(t *testing.T) {
	e := New(&fakeMemory{}, nil)
	_, err := e.Infer(context.Background(), "", core.Context{})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSentenceSubgoaler(t *testing.T) {
	sg := SentenceSubgoaler{}.Subgoals("Find the report. Summarize it; store the summary")
	want := []string{"Find the report", "Summarize it", "store the summary"}
	if len(sg) != len(want) {
		t.Fatalf("unexpected subgoals: %v", sg)
	}
	for i := range want {
		if sg[i] != want[i] {
			t.Fatalf("subgoal %d: got %q want %q", i, sg[i], want[i])
		}
	}

	if sg := (SentenceSubgoaler{}).Subgoals("single goal without punctuation"); len(sg) != 1 {
		t.Fatalf("expected single subgoal, got %v", sg)
	}
}

func TestPlan_KeywordActionsAndOrdering(t *testing.T) {
	e := New(&fakeMemory{}, nil)

	plan, err := e.Plan(context.Background(), "Do the daily chores. Search for yesterday's notes. Store the result", core.Context{})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !plan.Validated || plan.Fallback {
		t.Fatalf("expected validated plan: %#v", plan)
	}
	if len(plan.Subgoals) != 3 || len(plan.Actions) != 3 {
		t.Fatalf("unexpected decomposition: %#v", plan)
	}
	// Descending confidence: both 0.8 actions (stable order) before 0.5.
	if plan.Actions[0].Name != "search_memory" || plan.Actions[1].Name != "store_memory" {
		t.Fatalf("unexpected ordering: %s, %s", plan.Actions[0].Name, plan.Actions[1].Name)
	}
	if plan.Actions[2].Name != "execute_subgoal" || plan.Actions[2].Confidence != 0.5 {
		t.Fatalf("unexpected generic action: %#v", plan.Actions[2])
	}
}

func TestPlanMany_StableAcrossGoals(t *testing.T) {
	e := New(&fakeMemory{}, nil)

	plan, err := e.PlanMany(context.Background(), []string{"Search the index", "Find the owner"}, core.Context{})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	// Equal confidence keeps goal order.
	if plan.Actions[0].Params["subgoal"] != "Search the index" || plan.Actions[1].Params["subgoal"] != "Find the owner" {
		t.Fatalf("tie-break broke goal order: %#v", plan.Actions)
	}
}

func TestPlan_FallbackOnConstraintViolation(t *testing.T) {
	e := New(&fakeMemory{}, nil, func(o *Options) {
		o.Constraints = Constraints{MaxActions: 1}
	})

	plan, err := e.Plan(context.Background(), "Search for a. Search for b", core.Context{})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !plan.Fallback || plan.Validated {
		t.Fatalf("expected fallback plan: %#v", plan)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].Confidence != 0.2 {
		t.Fatalf("fallback must be a single low-confidence action: %#v", plan.Actions)
	}
	if plan.Actions[0].Name != "review_goal" {
		t.Fatalf("unexpected fallback action: %#v", plan.Actions[0])
	}
}

func TestPlan_FallbackOnConfidenceThreshold(t *testing.T) {
	e := New(&fakeMemory{}, nil, func(o *Options) {
		o.Constraints = Constraints{PriorityThreshold: 0.9}
	})
	plan, _ := e.Plan(context.Background(), "Search the archive", core.Context{})
	if !plan.Fallback {
		t.Fatalf("expected fallback, got %#v", plan)
	}
	if len(plan.Actions) == 0 {
		t.Fatal("fallback plan must never be empty")
	}
}

func TestPlan_ResourceConstraint(t *testing.T) {
	planner := resourcePlanner{}
	e := New(&fakeMemory{}, nil, func(o *Options) {
		o.Planner = planner
		o.Constraints = Constraints{ResourcesAvailable: []string{"cpu"}}
	})

	plan, _ := e.Plan(context.Background(), "use the gpu", core.Context{})
	if !plan.Fallback {
		t.Fatalf("expected fallback for unavailable resource, got %#v", plan)
	}
}

type resourcePlanner struct{}

func (resourcePlanner) Actions(subgoal string) []core.Action {
	return []core.Action{{
		Name:       "run",
		Params:     map[string]string{"subgoal": subgoal, "resource": "gpu"},
		Confidence: 0.9,
	}}
}

func TestPlan_EmptyGoal(t *testing.T) {
	e := New(&fakeMemory{}, nil)
	_, err := e.Plan(context.Background(), "  ", core.Context{})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
