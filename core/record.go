package core

import (
	"strconv"
	"time"
)

// Tier is a memory record's lifecycle stage.
type Tier string

const (
	// TierShortTerm records live in the in-process cache and are candidates
	// for consolidation or eviction once they age out.
	TierShortTerm Tier = "short_term"
	// TierLongTerm records are durable promotions produced by consolidation.
	TierLongTerm Tier = "long_term"
)

// Record statuses. Records are never physically deleted; forgetting flips the
// status flag.
const (
	RecordActive    = "active"
	RecordForgotten = "forgotten"
)

// Metadata keys with defined meaning across subsystems.
const (
	// MetaImportance holds the 0..1 importance score consulted by
	// consolidation (stored as a decimal string).
	MetaImportance = "importance"
	// MetaOriginalID on a long-term record points at the short-term source it
	// was consolidated from.
	MetaOriginalID = "original_id"
	// MetaConsolidatedAt records when the promotion happened (RFC 3339).
	MetaConsolidatedAt = "consolidated_at"
)

// Relationship is a directed edge from the owning record to TargetID.
type Relationship struct {
	TargetID   string            `json:"target_id"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
}

// MemoryRecord is a single tiered memory entry. Embedding is computed lazily
// if absent but is always non-nil by the time the record is persisted.
type MemoryRecord struct {
	ID            string            `json:"id"`
	Content       string            `json:"content"`
	Embedding     []float32         `json:"embedding,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Tier          Tier              `json:"tier"`
	Relationships []Relationship    `json:"relationships,omitempty"`
	Status        string            `json:"status"`
}

// Importance parses the record's importance score, defaulting to the neutral
// 0.5 when the metadata entry is absent or malformed.
func (r MemoryRecord) Importance() float64 {
	v, ok := r.Metadata[MetaImportance]
	if !ok {
		return 0.5
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0.5
	}
	return f
}

// Age returns how long ago the record was created relative to now.
func (r MemoryRecord) Age(now time.Time) time.Duration { return now.Sub(r.Timestamp) }

// Clone returns a deep copy safe for independent mutation.
func (r MemoryRecord) Clone() MemoryRecord {
	cp := r
	if r.Embedding != nil {
		cp.Embedding = make([]float32, len(r.Embedding))
		copy(cp.Embedding, r.Embedding)
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	if r.Relationships != nil {
		cp.Relationships = make([]Relationship, len(r.Relationships))
		copy(cp.Relationships, r.Relationships)
	}
	return cp
}

// MemoryQuery selects records on retrieval. Resolution order: exact ID,
// cache predicate scan, then vector similarity over Content.
type MemoryQuery struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content,omitempty"`
	Tier     Tier              `json:"tier,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	// IncludeRelationships enriches each result with stored graph edges.
	IncludeRelationships bool `json:"include_relationships,omitempty"`
}
