package bus

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/cogmesh/core"
)

// DefaultHistoryCap bounds how many events the store retains per event type
// and globally before the oldest are trimmed.
const DefaultHistoryCap = 1000

// EventStore persists events and the indexes the bus exposes through its
// read operations. The bus owns exactly one store; implementations must be
// safe for concurrent use.
type EventStore interface {
	// Append persists a newly published event and registers it in the
	// per-type, global, correlation and priority indexes. Appending past the
	// history cap trims the oldest entries first.
	Append(ctx context.Context, e core.Event) error

	// Update overwrites a previously appended event, typically to advance
	// its delivery status. Indexes are untouched.
	Update(ctx context.Context, e core.Event) error

	// Get returns the event with the given id or core.ErrNotFound.
	Get(ctx context.Context, id string) (core.Event, error)

	// ByCorrelation returns all retained events sharing a correlation id,
	// ordered by ascending creation time.
	ByCorrelation(ctx context.Context, correlationID string) ([]core.Event, error)

	// Recent returns up to limit retained events of the given type, newest
	// first.
	Recent(ctx context.Context, eventType string, limit int) ([]core.Event, error)

	// PopPriority removes and returns up to n events from the priority
	// index in ascending score order, so the most urgent come out first.
	PopPriority(ctx context.Context, n int) ([]core.Event, error)
}

// InMemoryStoreOptions configure the in-memory event store.
type InMemoryStoreOptions struct {
	// HistoryCap bounds retained events per type and globally.
	HistoryCap int
}

// InMemoryStore is a mutex-guarded EventStore keeping all events and indexes
// in process memory. It is the default backing for the bus and intended for
// tests and single-process deployments.
type InMemoryStore struct {
	opts InMemoryStoreOptions

	mu      sync.RWMutex
	events  map[string]core.Event
	byType  map[string][]string
	global  []string
	byCorr  map[string][]string
	pending []prioEntry
}

type prioEntry struct {
	id    string
	score float64
}

// NewInMemoryStore creates an in-memory event store.
func NewInMemoryStore(optFns ...func(o *InMemoryStoreOptions)) *InMemoryStore {
	opts := InMemoryStoreOptions{HistoryCap: DefaultHistoryCap}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}
	return &InMemoryStore{
		opts:   opts,
		events: make(map[string]core.Event),
		byType: make(map[string][]string),
		byCorr: make(map[string][]string),
	}
}

// Append implements EventStore.
func (s *InMemoryStore) Append(_ context.Context, e core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[e.ID] = e
	s.byType[e.Type] = append(s.byType[e.Type], e.ID)
	s.global = append(s.global, e.ID)
	s.byCorr[e.CorrelationID] = append(s.byCorr[e.CorrelationID], e.ID)
	// Only urgent events enter the pull index; normal traffic is push-only.
	if e.Priority > core.PriorityNormal {
		s.pending = append(s.pending, prioEntry{id: e.ID, score: e.PriorityScore()})
	}

	if over := len(s.byType[e.Type]) - s.opts.HistoryCap; over > 0 {
		for _, id := range append([]string(nil), s.byType[e.Type][:over]...) {
			s.remove(id)
		}
	}
	if over := len(s.global) - s.opts.HistoryCap; over > 0 {
		for _, id := range append([]string(nil), s.global[:over]...) {
			s.remove(id)
		}
	}
	return nil
}

// remove drops an event from every index. Caller holds the lock.
func (s *InMemoryStore) remove(id string) {
	e, ok := s.events[id]
	if !ok {
		return
	}
	delete(s.events, id)
	s.byType[e.Type] = deleteID(s.byType[e.Type], id)
	if len(s.byType[e.Type]) == 0 {
		delete(s.byType, e.Type)
	}
	s.global = deleteID(s.global, id)
	s.byCorr[e.CorrelationID] = deleteID(s.byCorr[e.CorrelationID], id)
	if len(s.byCorr[e.CorrelationID]) == 0 {
		delete(s.byCorr, e.CorrelationID)
	}
	for i, p := range s.pending {
		if p.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
}

func deleteID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Update implements EventStore.
func (s *InMemoryStore) Update(_ context.Context, e core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return core.ErrNotFound
	}
	s.events[e.ID] = e
	return nil
}

// Get implements EventStore.
func (s *InMemoryStore) Get(_ context.Context, id string) (core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return core.Event{}, core.ErrNotFound
	}
	return e, nil
}

// ByCorrelation implements EventStore. Insertion order is ascending creation
// time because the bus clamps creation timestamps per correlation group.
func (s *InMemoryStore) ByCorrelation(_ context.Context, correlationID string) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCorr[correlationID]
	out := make([]core.Event, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.events[id])
	}
	return out, nil
}

// Recent implements EventStore.
func (s *InMemoryStore) Recent(_ context.Context, eventType string, limit int) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byType[eventType]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	out := make([]core.Event, 0, limit)
	for i := len(ids) - 1; i >= len(ids)-limit; i-- {
		out = append(out, s.events[ids[i]])
	}
	return out, nil
}

// PopPriority implements EventStore.
func (s *InMemoryStore) PopPriority(_ context.Context, n int) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.pending) == 0 {
		return nil, nil
	}
	sort.SliceStable(s.pending, func(i, j int) bool { return s.pending[i].score < s.pending[j].score })
	if n > len(s.pending) {
		n = len(s.pending)
	}
	out := make([]core.Event, 0, n)
	for _, p := range s.pending[:n] {
		if e, ok := s.events[p.id]; ok {
			out = append(out, e)
		}
	}
	s.pending = append([]prioEntry(nil), s.pending[n:]...)
	return out, nil
}

// Len returns the number of retained events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
