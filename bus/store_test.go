package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ EventStore = (*InMemoryStore)(nil)

func newTestEvent(eventType, correlationID string, priority core.Priority, createdAt time.Time) core.Event {
	return testutil.NewEventBuilder().
		Type(eventType).
		Payload(core.OpaquePayload{"n": 1}).
		Priority(priority).
		Correlation(correlationID).
		Source("test").
		CreatedAt(createdAt).
		Build()
}

func TestInMemoryStore_AppendGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	e := newTestEvent("memory.stored", "", core.PriorityNormal, time.Now().UTC())
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Type != "memory.stored" || got.Status != core.StatusPending {
		t.Fatalf("unexpected event: %#v", got)
	}

	e.Status = core.StatusCompleted
	if err := s.Update(ctx, e); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = s.Get(ctx, e.ID)
	if got.Status != core.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	missing := newTestEvent("x", "", core.PriorityNormal, time.Now().UTC())
	if err := s.Update(ctx, missing); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore_HistoryTrim(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(func(o *InMemoryStoreOptions) { o.HistoryCap = 3 })

	base := time.Now().UTC()
	var ids []string
	for i := 0; i < 5; i++ {
		e := newTestEvent("task.new", "", core.PriorityNormal, base.Add(time.Duration(i)*time.Second))
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		ids = append(ids, e.ID)
	}

	if s.Len() != 3 {
		t.Fatalf("expected 3 retained events, got %d", s.Len())
	}
	// Oldest two are gone.
	for _, id := range ids[:2] {
		if _, err := s.Get(ctx, id); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected trimmed event %s gone, got %v", id, err)
		}
	}

	recent, err := s.Recent(ctx, "task.new", 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent, got %d", len(recent))
	}
	// Newest first.
	if recent[0].ID != ids[4] || recent[2].ID != ids[2] {
		t.Fatalf("unexpected recent order: %v", []string{recent[0].ID, recent[1].ID, recent[2].ID})
	}
}

func TestInMemoryStore_ByCorrelation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		e := newTestEvent("task.new", "corr-1", core.PriorityNormal, base.Add(time.Duration(i)*time.Second))
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	other := newTestEvent("task.new", "corr-2", core.PriorityNormal, base)
	_ = s.Append(ctx, other)

	group, err := s.ByCorrelation(ctx, "corr-1")
	if err != nil {
		t.Fatalf("by correlation failed: %v", err)
	}
	if len(group) != 3 {
		t.Fatalf("expected 3 events, got %d", len(group))
	}
	for i := 1; i < len(group); i++ {
		if group[i].CreatedAt.Before(group[i-1].CreatedAt) {
			t.Fatalf("correlation group out of order at %d", i)
		}
	}
}

func TestInMemoryStore_PopPriority(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	now := time.Now().UTC()
	low := newTestEvent("a", "", core.PriorityLow, now)
	crit := newTestEvent("b", "", core.PriorityCritical, now.Add(time.Second))
	norm := newTestEvent("c", "", core.PriorityNormal, now.Add(2*time.Second))
	high := newTestEvent("d", "", core.PriorityHigh, now.Add(3*time.Second))
	for _, e := range []core.Event{low, crit, norm, high} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	// Only events above normal priority are indexed for pulling.
	out, err := s.PopPriority(ctx, 10)
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	if len(out) != 2 || out[0].ID != crit.ID || out[1].ID != high.ID {
		t.Fatalf("unexpected pop result: %#v", out)
	}
	for _, e := range out {
		if e.ID == norm.ID || e.ID == low.ID {
			t.Fatalf("routine event %s leaked into priority index", e.ID)
		}
	}

	out, _ = s.PopPriority(ctx, 1)
	if len(out) != 0 {
		t.Fatalf("expected drained index, got %#v", out)
	}
}
