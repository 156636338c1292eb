package testutil

import (
	"fmt"
	"time"

	"github.com/hupe1980/cogmesh/core"
)

// RecordBuilder provides a fluent helper for constructing memory records in
// tests.
type RecordBuilder struct {
	rec core.MemoryRecord
}

// NewRecordBuilder creates a builder for a short-term record with the given
// content.
func NewRecordBuilder(content string) *RecordBuilder {
	return &RecordBuilder{rec: core.MemoryRecord{
		Content: content,
		Tier:    core.TierShortTerm,
	}}
}

// ID sets the record id (chainable).
func (b *RecordBuilder) ID(id string) *RecordBuilder { b.rec.ID = id; return b }

// Tier sets the storage tier (chainable).
func (b *RecordBuilder) Tier(t core.Tier) *RecordBuilder { b.rec.Tier = t; return b }

// Meta adds one metadata entry (chainable).
func (b *RecordBuilder) Meta(key, value string) *RecordBuilder {
	if b.rec.Metadata == nil {
		b.rec.Metadata = map[string]string{}
	}
	b.rec.Metadata[key] = value
	return b
}

// Importance sets the importance score consulted by consolidation (chainable).
func (b *RecordBuilder) Importance(score float64) *RecordBuilder {
	return b.Meta(core.MetaImportance, fmt.Sprintf("%g", score))
}

// Embedding sets the record's vector (chainable).
func (b *RecordBuilder) Embedding(v []float32) *RecordBuilder { b.rec.Embedding = v; return b }

// Timestamp pins the creation timestamp, letting tests age a record past a
// consolidation threshold (chainable).
func (b *RecordBuilder) Timestamp(ts time.Time) *RecordBuilder { b.rec.Timestamp = ts; return b }

// Build returns a copy of the assembled record.
func (b *RecordBuilder) Build() core.MemoryRecord { return b.rec.Clone() }
