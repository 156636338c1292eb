package core

import (
	"context"
	"time"
)

// SearchHit is one result of a vector similarity search.
type SearchHit struct {
	ID      string
	Score   float64
	Payload MemoryRecord
}

// VectorStore persists records by tier and answers similarity queries.
// Implementations should be safe for concurrent use. Callers wrap calls with
// their own timeouts; the store itself imposes none.
type VectorStore interface {
	// Store upserts a record under (tier, id) with its embedding.
	Store(ctx context.Context, tier Tier, id string, vector []float32, rec MemoryRecord) error
	// Search returns up to topK hits ordered by descending similarity.
	Search(ctx context.Context, tier Tier, vector []float32, topK int) ([]SearchHit, error)
	// Get fetches a record by id across tiers. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (MemoryRecord, error)
	// UpdateStatus flips a record's status flag (soft delete). Returns
	// ErrNotFound if the id is unknown.
	UpdateStatus(ctx context.Context, id, status string) error
	// UpdateMetadata merges metadata entries into an existing record.
	UpdateMetadata(ctx context.Context, id string, md map[string]string) error
}

// GraphStore persists relationship edges between records.
type GraphStore interface {
	// AddRelationship creates a directed edge. Both endpoints must already
	// exist; ErrNotFound otherwise.
	AddRelationship(ctx context.Context, src, dst, relType string, props map[string]string) error
	// Relationships returns the outgoing edges of a record.
	Relationships(ctx context.Context, id string) ([]Relationship, error)
}

// KVStore is a small key/value facility with optional expiry, used for
// ancillary state (health snapshots, counters, markers).
type KVStore interface {
	// GetKV returns the value for key and whether it exists and is unexpired.
	GetKV(ctx context.Context, key string) (string, bool, error)
	// SetKV stores a value; a positive ttl expires it.
	SetKV(ctx context.Context, key, value string, ttl time.Duration) error
}

// Storage aggregates the collaborator facets the memory and knowledge
// subsystems depend on. Backends may implement the facets over one engine
// (sqlite) or several.
type Storage interface {
	VectorStore
	GraphStore
	KVStore
}
