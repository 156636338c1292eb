package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/embedding"
	"github.com/hupe1980/cogmesh/model"
	"github.com/hupe1980/cogmesh/storage"
)

type capturePublisher struct {
	events []string
}

func (c *capturePublisher) Publish(_ context.Context, eventType string, _ core.Payload, _ ...func(o *bus.PublishOptions)) (string, error) {
	c.events = append(c.events, eventType)
	return core.NewID(), nil
}

func newTestBase(optFns ...func(o *Options)) (*Base, *capturePublisher, *storage.InMemory) {
	backend := storage.NewInMemory()
	pub := &capturePublisher{}
	b := New(backend, embedding.NewHash(func(o *embedding.HashOptions) { o.Dims = 32 }), pub, optFns...)
	return b, pub, backend
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	b, pub, backend := newTestBase()

	id, err := b.Ingest(ctx, "gophers live in burrows", map[string]string{"source": "wiki"}, core.Context{})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	rec, err := backend.Get(ctx, id)
	if err != nil {
		t.Fatalf("backend get failed: %v", err)
	}
	if rec.Tier != core.TierLongTerm || rec.Metadata[MetaKind] != KindKnowledge || rec.Metadata["source"] != "wiki" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if len(rec.Embedding) != 32 {
		t.Fatalf("expected embedding, got %d dims", len(rec.Embedding))
	}
	if len(pub.events) != 1 || pub.events[0] != core.EventKnowledgeIngested {
		t.Fatalf("unexpected events: %v", pub.events)
	}

	if _, err := b.Ingest(ctx, "", nil, core.Context{}); err == nil {
		t.Fatal("expected validation error for empty content")
	}
}

func TestQuery_FiltersNonKnowledge(t *testing.T) {
	ctx := context.Background()
	b, _, backend := newTestBase()

	id, _ := b.Ingest(ctx, "searchable knowledge entry", nil, core.Context{})

	// A consolidated memory in the same tier must not surface.
	mem := core.MemoryRecord{Content: "searchable knowledge entry", Status: core.RecordActive}
	memVec, _ := embedding.NewHash(func(o *embedding.HashOptions) { o.Dims = 32 }).Embed(ctx, mem.Content)
	_ = backend.Store(ctx, core.TierLongTerm, "memory-1", memVec, mem)

	hits, err := b.Query(ctx, "searchable knowledge entry", 5, core.Context{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != id {
		t.Fatalf("expected only the knowledge entry, got %#v", hits)
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	ctx := context.Background()
	b, pub, backend := newTestBase()

	a, _ := b.Ingest(ctx, "cats sleep a lot", nil, core.Context{})
	_, _ = b.Ingest(ctx, "cats chase mice", nil, core.Context{})

	summary, err := b.Synthesize(ctx, "cats sleep a lot", core.Context{})
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if !strings.Contains(summary, "cats sleep a lot") {
		t.Fatalf("summary missing source content: %q", summary)
	}

	// The summary is stored back as derived knowledge with lineage edges.
	found := false
	var synthID string
	hits, _ := b.Query(ctx, summary, 10, core.Context{})
	for _, h := range hits {
		if h.Payload.Metadata[MetaKind] == KindSynthesis {
			found = true
			synthID = h.ID
		}
	}
	if !found {
		t.Fatal("synthesis not stored as knowledge")
	}
	rels, err := backend.Relationships(ctx, synthID)
	if err != nil {
		t.Fatalf("relationships failed: %v", err)
	}
	hasLineage := false
	for _, r := range rels {
		if r.Type == "derived_from" && r.TargetID == a {
			hasLineage = true
		}
	}
	if !hasLineage {
		t.Fatalf("expected derived_from edge to %s, got %#v", a, rels)
	}

	want := []string{core.EventKnowledgeIngested, core.EventKnowledgeIngested, core.EventKnowledgeIngested, core.EventKnowledgeSynthesized}
	if len(pub.events) != len(want) {
		t.Fatalf("unexpected events: %v", pub.events)
	}
	if pub.events[len(pub.events)-1] != core.EventKnowledgeSynthesized {
		t.Fatalf("expected synthesized event last: %v", pub.events)
	}
}

func TestSynthesize_WithModel(t *testing.T) {
	ctx := context.Background()
	mock := &model.Mock{Response: "a concise summary"}
	b, _, _ := newTestBase(func(o *Options) { o.Model = mock })

	_, _ = b.Ingest(ctx, "entry about weather", nil, core.Context{})

	summary, err := b.Synthesize(ctx, "entry about weather", core.Context{})
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if summary != "a concise summary" {
		t.Fatalf("unexpected summary: %q", summary)
	}
	if len(mock.Requests) != 1 || !strings.Contains(mock.Requests[0].Prompt, "entry about weather") {
		t.Fatalf("entries not in prompt: %#v", mock.Requests)
	}
}

func TestSynthesize_NoMatches(t *testing.T) {
	b, _, _ := newTestBase()
	_, err := b.Synthesize(context.Background(), "nothing ingested", core.Context{})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
