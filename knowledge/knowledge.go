// Package knowledge implements the knowledge subsystem: ingestion of
// external content into the long-term store, similarity queries over it, and
// synthesis of query results into summaries. Knowledge entries share the
// long-term vector space with consolidated memories and are distinguished by
// their kind metadata.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/logging"
	"github.com/hupe1980/cogmesh/model"
)

// MetaKind marks a record's origin; knowledge entries carry KindKnowledge.
const (
	MetaKind      = "kind"
	KindKnowledge = "knowledge"
	KindSynthesis = "synthesis"
)

// Publisher is the slice of the event bus the knowledge base needs.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload core.Payload, optFns ...func(o *bus.PublishOptions)) (string, error)
}

// Options configure the knowledge base.
type Options struct {
	// TopK is the default query result count.
	TopK int
	// Model writes synthesis summaries. Nil selects a deterministic
	// concatenation.
	Model model.Model
	// Logger receives subsystem diagnostics.
	Logger logging.Logger
}

// Base is the knowledge subsystem.
type Base struct {
	opts     Options
	storage  core.Storage
	embedder core.Embedder
	events   Publisher
	logger   logging.Logger
}

// New creates a knowledge base.
func New(storage core.Storage, embedder core.Embedder, events Publisher, optFns ...func(o *Options)) *Base {
	opts := Options{TopK: 5, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Base{opts: opts, storage: storage, embedder: embedder, events: events, logger: opts.Logger}
}

// Ingest embeds content and stores it as a long-term knowledge entry.
func (b *Base) Ingest(ctx context.Context, content string, md map[string]string, cctx core.Context) (string, error) {
	if content == "" {
		return "", &core.ValidationError{Field: "content", Reason: "must not be empty"}
	}

	vec, err := b.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed content: %w", err)
	}

	meta := make(map[string]string, len(md)+1)
	for k, v := range md {
		meta[k] = v
	}
	if _, ok := meta[MetaKind]; !ok {
		meta[MetaKind] = KindKnowledge
	}

	rec := core.MemoryRecord{
		ID:        core.NewID(),
		Content:   content,
		Embedding: vec,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
		Tier:      core.TierLongTerm,
		Status:    core.RecordActive,
	}
	if err := b.storage.Store(ctx, core.TierLongTerm, rec.ID, vec, rec); err != nil {
		return "", fmt.Errorf("persist knowledge: %w", err)
	}

	b.publish(ctx, core.EventKnowledgeIngested, core.MemoryEventPayload{MemoryID: rec.ID, Tier: core.TierLongTerm}, cctx)
	return rec.ID, nil
}

// Query returns the knowledge entries most similar to q.
func (b *Base) Query(ctx context.Context, q string, limit int, cctx core.Context) ([]core.SearchHit, error) {
	if q == "" {
		return nil, &core.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = b.opts.TopK
	}

	vec, err := b.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	// Over-fetch: the long-term space also holds consolidated memories.
	hits, err := b.storage.Search(ctx, core.TierLongTerm, vec, limit*4)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := make([]core.SearchHit, 0, limit)
	for _, h := range hits {
		kind := h.Payload.Metadata[MetaKind]
		if kind != KindKnowledge && kind != KindSynthesis {
			continue
		}
		out = append(out, h)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Relate links two knowledge entries in the relationship graph.
func (b *Base) Relate(ctx context.Context, src, dst, relType string) error {
	return b.storage.AddRelationship(ctx, src, dst, relType, nil)
}

// Synthesize combines the entries matching a topic into one summary, stores
// the summary as derived knowledge, and returns it.
func (b *Base) Synthesize(ctx context.Context, topic string, cctx core.Context) (string, error) {
	hits, err := b.Query(ctx, topic, b.opts.TopK, cctx)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", fmt.Errorf("synthesize %q: %w", topic, core.ErrNotFound)
	}

	summary, err := b.compose(ctx, topic, hits)
	if err != nil {
		return "", err
	}

	id, err := b.Ingest(ctx, summary, map[string]string{
		MetaKind: KindSynthesis,
		"topic":  topic,
	}, cctx)
	if err != nil {
		return "", err
	}
	for _, h := range hits {
		if err := b.storage.AddRelationship(ctx, id, h.ID, "derived_from", nil); err != nil {
			b.logger.Warn("synthesis lineage edge not stored", "source_id", h.ID, "error", err.Error())
		}
	}

	b.publish(ctx, core.EventKnowledgeSynthesized, core.MemoryEventPayload{MemoryID: id, Count: len(hits)}, cctx)
	return summary, nil
}

func (b *Base) compose(ctx context.Context, topic string, hits []core.SearchHit) (string, error) {
	if b.opts.Model != nil {
		var sb strings.Builder
		for i, h := range hits {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, h.Payload.Content)
		}
		resp, err := b.opts.Model.Complete(ctx, model.Request{
			System: "Synthesize the provided entries into one concise summary.",
			Prompt: fmt.Sprintf("Topic: %s\nEntries:\n%s", topic, sb.String()),
		})
		if err != nil {
			return "", fmt.Errorf("model completion: %w", err)
		}
		return resp.Text, nil
	}

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Payload.Content)
	}
	return fmt.Sprintf("synthesis of %s: %s", topic, strings.Join(parts, " | ")), nil
}

func (b *Base) publish(ctx context.Context, eventType string, payload core.Payload, cctx core.Context) {
	if b.events == nil {
		return
	}
	if _, err := b.events.Publish(ctx, eventType, payload, func(o *bus.PublishOptions) {
		o.CorrelationID = cctx.RequestID
		o.Source = "knowledge"
	}); err != nil {
		b.logger.Warn("event publish failed", "event_type", eventType, "error", err.Error())
	}
}
