package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/cogmesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.Storage = (*InMemory)(nil)

func rec(content string) core.MemoryRecord {
	return core.MemoryRecord{
		Content:   content,
		Timestamp: time.Now().UTC(),
		Status:    core.RecordActive,
	}
}

func TestInMemory_StoreGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	r := rec("hello")
	if err := s.Store(ctx, core.TierShortTerm, "m1", []float32{1, 0, 0}, r); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Content != "hello" || got.Tier != core.TierShortTerm || got.ID != "m1" {
		t.Fatalf("unexpected record: %#v", got)
	}

	// mutation safety (returned record is a copy)
	got.Embedding[0] = 99
	again, _ := s.Get(ctx, "m1")
	if again.Embedding[0] != 1 {
		t.Fatalf("expected copy isolation, got %v", again.Embedding[0])
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Store(ctx, core.TierShortTerm, "", nil, r); err == nil {
		t.Fatal("expected validation error for empty id")
	}
}

func TestInMemory_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	vectors := map[string][]float32{
		"close":   {1, 0.1, 0},
		"closer":  {1, 0, 0},
		"far":     {0, 1, 0},
		"oblique": {0.5, 0.5, 0},
	}
	for id, v := range vectors {
		if err := s.Store(ctx, core.TierShortTerm, id, v, rec(id)); err != nil {
			t.Fatalf("store %s failed: %v", id, err)
		}
	}
	// Wrong tier never matches.
	_ = s.Store(ctx, core.TierLongTerm, "other-tier", []float32{1, 0, 0}, rec("x"))

	hits, err := s.Search(ctx, core.TierShortTerm, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ID != "closer" || hits[1].ID != "close" {
		t.Fatalf("unexpected ranking: %s, %s", hits[0].ID, hits[1].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("scores not descending at %d", i)
		}
	}
}

func TestInMemory_SearchSkipsForgotten(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	_ = s.Store(ctx, core.TierShortTerm, "keep", []float32{1, 0}, rec("keep"))
	_ = s.Store(ctx, core.TierShortTerm, "drop", []float32{1, 0}, rec("drop"))
	if err := s.UpdateStatus(ctx, "drop", core.RecordForgotten); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	hits, _ := s.Search(ctx, core.TierShortTerm, []float32{1, 0}, 10)
	if len(hits) != 1 || hits[0].ID != "keep" {
		t.Fatalf("expected forgotten record excluded, got %#v", hits)
	}

	// Soft delete only: record is still retrievable.
	got, err := s.Get(ctx, "drop")
	if err != nil || got.Status != core.RecordForgotten {
		t.Fatalf("expected forgotten record retained, got %#v err %v", got, err)
	}

	if err := s.UpdateStatus(ctx, "missing", core.RecordForgotten); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemory_UpdateMetadata(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	r := rec("x")
	r.Metadata = map[string]string{"a": "1"}
	_ = s.Store(ctx, core.TierShortTerm, "m1", nil, r)

	if err := s.UpdateMetadata(ctx, "m1", map[string]string{"b": "2", "a": "9"}); err != nil {
		t.Fatalf("update metadata failed: %v", err)
	}
	got, _ := s.Get(ctx, "m1")
	if got.Metadata["a"] != "9" || got.Metadata["b"] != "2" {
		t.Fatalf("unexpected metadata: %#v", got.Metadata)
	}

	if err := s.UpdateMetadata(ctx, "missing", nil); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemory_Relationships(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	_ = s.Store(ctx, core.TierShortTerm, "a", nil, rec("a"))
	_ = s.Store(ctx, core.TierShortTerm, "b", nil, rec("b"))

	if err := s.AddRelationship(ctx, "a", "b", "references", map[string]string{"w": "0.8"}); err != nil {
		t.Fatalf("add relationship failed: %v", err)
	}
	if err := s.AddRelationship(ctx, "a", "missing", "references", nil); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown target, got %v", err)
	}
	if err := s.AddRelationship(ctx, "missing", "b", "references", nil); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown source, got %v", err)
	}

	rels, err := s.Relationships(ctx, "a")
	if err != nil {
		t.Fatalf("relationships failed: %v", err)
	}
	if len(rels) != 1 || rels[0].TargetID != "b" || rels[0].Type != "references" || rels[0].Properties["w"] != "0.8" {
		t.Fatalf("unexpected relationships: %#v", rels)
	}

	// Edges are directed.
	rels, _ = s.Relationships(ctx, "b")
	if len(rels) != 0 {
		t.Fatalf("expected no outgoing edges for b, got %#v", rels)
	}
}

func TestInMemory_KV(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	if err := s.SetKV(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	v, ok, err := s.GetKV(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}

	if err := s.SetKV(ctx, "ttl", "v", time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := s.GetKV(ctx, "ttl"); ok {
		t.Fatal("expected expired key to be absent")
	}

	if _, ok, _ := s.GetKV(ctx, "never"); ok {
		t.Fatal("expected missing key to be absent")
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors should score ~1, got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors should score 0, got %v", got)
	}
	if got := Cosine(nil, []float32{1}); got != 0 {
		t.Fatalf("mismatched vectors should score 0, got %v", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{0, 0}); got != 0 {
		t.Fatalf("zero vectors should score 0, got %v", got)
	}
}
