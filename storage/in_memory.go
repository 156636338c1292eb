package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/cogmesh/core"
)

// InMemory is a mutex-guarded core.Storage keeping everything in process
// memory. Records are cloned on the way in and out; similarity search scans the
// requested tier and scores candidates by cosine similarity.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]entry
	edges   map[string][]core.Relationship
	kv      map[string]kvEntry
}

type entry struct {
	tier core.Tier
	rec  core.MemoryRecord
}

type kvEntry struct {
	value     string
	expiresAt time.Time
}

// NewInMemory creates an empty in-memory storage backend.
func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[string]entry),
		edges:   make(map[string][]core.Relationship),
		kv:      make(map[string]kvEntry),
	}
}

// Store implements core.VectorStore.
func (s *InMemory) Store(_ context.Context, tier core.Tier, id string, vector []float32, rec core.MemoryRecord) error {
	if id == "" {
		return &core.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	cp := rec.Clone()
	cp.ID = id
	cp.Tier = tier
	if vector != nil {
		cp.Embedding = make([]float32, len(vector))
		copy(cp.Embedding, vector)
	}
	if cp.Status == "" {
		cp.Status = core.RecordActive
	}

	s.mu.Lock()
	s.records[id] = entry{tier: tier, rec: cp}
	s.mu.Unlock()
	return nil
}

// Search implements core.VectorStore. Forgotten records never match.
func (s *InMemory) Search(_ context.Context, tier core.Tier, vector []float32, topK int) ([]core.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	hits := make([]core.SearchHit, 0, len(s.records))
	for id, e := range s.records {
		if e.tier != tier || e.rec.Status != core.RecordActive {
			continue
		}
		score := Cosine(vector, e.rec.Embedding)
		hits = append(hits, core.SearchHit{ID: id, Score: score, Payload: e.rec.Clone()})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// Get implements core.VectorStore.
func (s *InMemory) Get(_ context.Context, id string) (core.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return core.MemoryRecord{}, core.ErrNotFound
	}
	return e.rec.Clone(), nil
}

// UpdateStatus implements core.VectorStore.
func (s *InMemory) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return core.ErrNotFound
	}
	e.rec.Status = status
	s.records[id] = e
	return nil
}

// UpdateMetadata implements core.VectorStore.
func (s *InMemory) UpdateMetadata(_ context.Context, id string, md map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return core.ErrNotFound
	}
	if e.rec.Metadata == nil {
		e.rec.Metadata = make(map[string]string, len(md))
	}
	for k, v := range md {
		e.rec.Metadata[k] = v
	}
	s.records[id] = e
	return nil
}

// AddRelationship implements core.GraphStore.
func (s *InMemory) AddRelationship(_ context.Context, src, dst, relType string, props map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[src]; !ok {
		return core.ErrNotFound
	}
	if _, ok := s.records[dst]; !ok {
		return core.ErrNotFound
	}
	var cp map[string]string
	if props != nil {
		cp = make(map[string]string, len(props))
		for k, v := range props {
			cp[k] = v
		}
	}
	s.edges[src] = append(s.edges[src], core.Relationship{TargetID: dst, Type: relType, Properties: cp})
	return nil
}

// Relationships implements core.GraphStore.
func (s *InMemory) Relationships(_ context.Context, id string) ([]core.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.records[id]; !ok {
		return nil, core.ErrNotFound
	}
	out := make([]core.Relationship, len(s.edges[id]))
	copy(out, s.edges[id])
	return out, nil
}

// GetKV implements core.KVStore.
func (s *InMemory) GetKV(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.kv[key]
	if !ok || (!e.expiresAt.IsZero() && time.Now().After(e.expiresAt)) {
		return "", false, nil
	}
	return e.value, true, nil
}

// SetKV implements core.KVStore.
func (s *InMemory) SetKV(_ context.Context, key, value string, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.kv[key] = kvEntry{value: value, expiresAt: expires}
	s.mu.Unlock()
	return nil
}
