package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/logging"
)

// Publisher is the slice of the event bus the memory subsystem needs.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload core.Payload, optFns ...func(o *bus.PublishOptions)) (string, error)
}

// Options configure the memory store.
type Options struct {
	// CacheSize bounds the short-term cache entry count.
	CacheSize int
	// AgeThreshold is the minimum age before a short-term record is
	// considered for consolidation.
	AgeThreshold time.Duration
	// ImportanceThreshold separates promotion from eviction. Records
	// scoring above it become long-term memories.
	ImportanceThreshold float64
	// BatchSize caps how many records one consolidation pass processes.
	BatchSize int
	// RetrieveLimit is the default result count when a query sets none.
	RetrieveLimit int
	// NudgeBuffer sizes the channel feeding the consolidation worker.
	NudgeBuffer int
	// Logger receives subsystem diagnostics.
	Logger logging.Logger
}

// ConsolidationStats summarizes one consolidation pass.
type ConsolidationStats struct {
	Scanned  int
	Promoted int
	Evicted  int
	Failed   int
}

// Store is the tiered memory subsystem.
type Store struct {
	opts     Options
	storage  core.Storage
	embedder core.Embedder
	events   Publisher
	logger   logging.Logger

	cache *lru.Cache[string, core.MemoryRecord]

	nudge chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup

	consolidateMu sync.Mutex
}

// New creates a memory store and starts its consolidation worker. Call Close
// to stop the worker.
func New(storage core.Storage, embedder core.Embedder, events Publisher, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		CacheSize:           1024,
		AgeThreshold:        24 * time.Hour,
		ImportanceThreshold: 0.3,
		BatchSize:           5,
		RetrieveLimit:       5,
		NudgeBuffer:         16,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	cache, err := lru.New[string, core.MemoryRecord](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	s := &Store{
		opts:     opts,
		storage:  storage,
		embedder: embedder,
		events:   events,
		logger:   opts.Logger,
		cache:    cache,
		nudge:    make(chan struct{}, opts.NudgeBuffer),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s, nil
}

// worker is the single consolidation goroutine. Store operations nudge it;
// it never blocks callers.
func (s *Store) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.nudge:
			if _, err := s.Consolidate(context.Background()); err != nil {
				s.logger.Warn("consolidation pass failed", "error", err.Error())
			}
		}
	}
}

// Close stops the consolidation worker. In-flight passes finish.
func (s *Store) Close() error {
	close(s.done)
	s.wg.Wait()
	return nil
}

// Store persists a record. A missing id, timestamp, tier or status is filled
// in; a missing embedding is computed. Context identifiers are merged into
// the record metadata before persisting. Short-term records additionally
// enter the cache, and the consolidation worker is nudged without blocking.
func (s *Store) Store(ctx context.Context, rec core.MemoryRecord, cctx core.Context) (string, error) {
	if rec.Content == "" {
		return "", &core.ValidationError{Field: "content", Reason: "must not be empty"}
	}

	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = core.NewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Tier == "" {
		rec.Tier = core.TierShortTerm
	}
	if rec.Status == "" {
		rec.Status = core.RecordActive
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]string)
	}
	mergeContext(rec.Metadata, cctx)

	if rec.Embedding == nil {
		vec, err := s.embedder.Embed(ctx, rec.Content)
		if err != nil {
			return "", fmt.Errorf("embed content: %w", err)
		}
		rec.Embedding = vec
	}

	if err := s.storage.Store(ctx, rec.Tier, rec.ID, rec.Embedding, rec); err != nil {
		return "", fmt.Errorf("persist record: %w", err)
	}
	if rec.Tier == core.TierShortTerm {
		s.cache.Add(rec.ID, rec)
	}

	s.publish(ctx, core.EventMemoryStored, core.MemoryEventPayload{MemoryID: rec.ID, Tier: rec.Tier}, cctx)

	select {
	case s.nudge <- struct{}{}:
	default:
	}
	return rec.ID, nil
}

// mergeContext folds the caller identity into record metadata without
// overwriting explicit entries.
func mergeContext(md map[string]string, cctx core.Context) {
	set := func(key, value string) {
		if value == "" {
			return
		}
		if _, ok := md[key]; !ok {
			md[key] = value
		}
	}
	set("user_id", cctx.UserID)
	set("session_id", cctx.SessionID)
	set("request_id", cctx.RequestID)
}

// Retrieve resolves a query in stages: exact id (cache, then storage), cache
// predicate scan, vector similarity. Results carry stored graph edges when
// the query asks for them.
func (s *Store) Retrieve(ctx context.Context, q core.MemoryQuery, cctx core.Context) ([]core.MemoryRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.opts.RetrieveLimit
	}

	if q.ID != "" {
		rec, err := s.byID(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		out := []core.MemoryRecord{rec}
		if err := s.enrich(ctx, q, out); err != nil {
			return nil, err
		}
		s.publish(ctx, core.EventMemoryRetrieved, core.MemoryEventPayload{Count: 1}, cctx)
		return out, nil
	}

	out := s.scanCache(q, limit)
	if len(out) == 0 && q.Content != "" {
		var err error
		out, err = s.similar(ctx, q, limit)
		if err != nil {
			return nil, err
		}
	}
	if err := s.enrich(ctx, q, out); err != nil {
		return nil, err
	}
	s.publish(ctx, core.EventMemoryRetrieved, core.MemoryEventPayload{Count: len(out)}, cctx)
	return out, nil
}

func (s *Store) byID(ctx context.Context, id string) (core.MemoryRecord, error) {
	if rec, ok := s.cache.Get(id); ok {
		return rec.Clone(), nil
	}
	rec, err := s.storage.Get(ctx, id)
	if err != nil {
		return core.MemoryRecord{}, err
	}
	// Forgotten records stay persisted but are invisible to retrieval.
	if rec.Status == core.RecordForgotten {
		return core.MemoryRecord{}, core.ErrNotFound
	}
	return rec, nil
}

// scanCache matches short-term entries against the query predicate: every
// metadata pair must match and, when set, the content substring must occur.
func (s *Store) scanCache(q core.MemoryQuery, limit int) []core.MemoryRecord {
	if q.Tier == core.TierLongTerm {
		return nil
	}
	var out []core.MemoryRecord
	for _, id := range s.cache.Keys() {
		rec, ok := s.cache.Peek(id)
		if !ok || rec.Status != core.RecordActive {
			continue
		}
		if !matches(rec, q) {
			continue
		}
		out = append(out, rec.Clone())
		if len(out) >= limit {
			break
		}
	}
	return out
}

func matches(rec core.MemoryRecord, q core.MemoryQuery) bool {
	if len(q.Metadata) == 0 && q.Content == "" {
		return false
	}
	for k, v := range q.Metadata {
		if rec.Metadata[k] != v {
			return false
		}
	}
	if q.Content != "" && !strings.Contains(strings.ToLower(rec.Content), strings.ToLower(q.Content)) {
		return false
	}
	return true
}

// similar embeds the query content and searches the storage backend. The
// default tier is long-term; the cache scan already covers short-term.
func (s *Store) similar(ctx context.Context, q core.MemoryQuery, limit int) ([]core.MemoryRecord, error) {
	vec, err := s.embedder.Embed(ctx, q.Content)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	tier := q.Tier
	if tier == "" {
		tier = core.TierLongTerm
	}
	hits, err := s.storage.Search(ctx, tier, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	out := make([]core.MemoryRecord, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Payload)
	}
	return out, nil
}

func (s *Store) enrich(ctx context.Context, q core.MemoryQuery, recs []core.MemoryRecord) error {
	if !q.IncludeRelationships {
		return nil
	}
	for i := range recs {
		rels, err := s.storage.Relationships(ctx, recs[i].ID)
		if err != nil {
			return fmt.Errorf("load relationships: %w", err)
		}
		recs[i].Relationships = rels
	}
	return nil
}

// Update merges metadata into an existing record.
func (s *Store) Update(ctx context.Context, id string, md map[string]string, cctx core.Context) error {
	if err := s.storage.UpdateMetadata(ctx, id, md); err != nil {
		return err
	}
	if rec, ok := s.cache.Get(id); ok {
		rec = rec.Clone()
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			rec.Metadata[k] = v
		}
		s.cache.Add(id, rec)
	}
	s.publish(ctx, core.EventMemoryUpdated, core.MemoryEventPayload{MemoryID: id}, cctx)
	return nil
}

// Forget soft-deletes a record: it leaves the cache and its durable status
// flips to forgotten, excluding it from retrieval while keeping the row.
func (s *Store) Forget(ctx context.Context, id string, cctx core.Context) error {
	if err := s.storage.UpdateStatus(ctx, id, core.RecordForgotten); err != nil {
		return err
	}
	s.cache.Remove(id)
	s.publish(ctx, core.EventMemoryForgotten, core.MemoryEventPayload{MemoryID: id}, cctx)
	return nil
}

// Associate records a directed relationship between two memories.
func (s *Store) Associate(ctx context.Context, src, dst, relType string, cctx core.Context) error {
	if err := s.storage.AddRelationship(ctx, src, dst, relType, nil); err != nil {
		return err
	}
	s.publish(ctx, core.EventMemoryAssociated, core.MemoryEventPayload{MemoryID: src}, cctx)
	return nil
}

// Consolidate runs one pass over the short-term cache. Entries past the age
// threshold are promoted into new long-term records when important enough,
// otherwise evicted from the cache. At most BatchSize entries are processed;
// per-entry failures are logged and the pass continues.
func (s *Store) Consolidate(ctx context.Context) (ConsolidationStats, error) {
	s.consolidateMu.Lock()
	defer s.consolidateMu.Unlock()

	start := time.Now()
	now := time.Now().UTC()
	var stats ConsolidationStats

	for _, id := range s.cache.Keys() {
		if stats.Scanned >= s.opts.BatchSize {
			break
		}
		rec, ok := s.cache.Peek(id)
		if !ok || rec.Age(now) < s.opts.AgeThreshold {
			continue
		}
		stats.Scanned++

		if rec.Importance() > s.opts.ImportanceThreshold {
			if err := s.promote(ctx, rec, now); err != nil {
				stats.Failed++
				s.logger.Warn("promotion failed", "memory_id", id, "error", err.Error())
				continue
			}
			stats.Promoted++
		} else {
			s.publish(ctx, core.EventMemoryEvicted, core.MemoryEventPayload{MemoryID: id, Tier: core.TierShortTerm}, core.SystemContext("consolidation"))
			stats.Evicted++
		}
		s.cache.Remove(id)
	}

	logging.LogConsolidation(s.logger, stats.Scanned, stats.Promoted, stats.Evicted, stats.Failed, time.Since(start))
	return stats, nil
}

// promote writes a new long-term record pointing back at its short-term
// source.
func (s *Store) promote(ctx context.Context, rec core.MemoryRecord, now time.Time) error {
	promoted := rec.Clone()
	promoted.ID = core.NewID()
	promoted.Tier = core.TierLongTerm
	promoted.Status = core.RecordActive
	if promoted.Metadata == nil {
		promoted.Metadata = make(map[string]string)
	}
	promoted.Metadata[core.MetaOriginalID] = rec.ID
	promoted.Metadata[core.MetaConsolidatedAt] = now.Format(time.RFC3339)

	if err := s.storage.Store(ctx, core.TierLongTerm, promoted.ID, promoted.Embedding, promoted); err != nil {
		return err
	}
	s.publish(ctx, core.EventMemoryConsolidated, core.MemoryEventPayload{
		MemoryID:   promoted.ID,
		OriginalID: rec.ID,
		Tier:       core.TierLongTerm,
	}, core.SystemContext("consolidation"))
	return nil
}

// CacheLen reports the current short-term cache size.
func (s *Store) CacheLen() int { return s.cache.Len() }

// publish announces a state change. Event delivery is best effort; a failed
// publish never fails the memory operation that caused it.
func (s *Store) publish(ctx context.Context, eventType string, payload core.Payload, cctx core.Context) {
	if s.events == nil {
		return
	}
	_, err := s.events.Publish(ctx, eventType, payload, func(o *bus.PublishOptions) {
		o.CorrelationID = cctx.RequestID
		o.Source = "memory"
	})
	if err != nil {
		s.logger.Warn("event publish failed", "event_type", eventType, "error", err.Error())
	}
}
