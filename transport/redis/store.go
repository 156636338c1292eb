package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/cogmesh/core"
)

// StoreOptions configure the Redis event store.
type StoreOptions struct {
	// Prefix namespaces all keys. Defaults to "cogmesh".
	Prefix string
	// HistoryCap bounds retained events per type and globally.
	HistoryCap int64
	// TTL expires individual event records. History indexes are trimmed by
	// rank, event bodies age out by TTL.
	TTL time.Duration
}

// Store persists events in Redis: one string key per event body, sorted-set
// indexes for per-type history, global history, correlation groups and the
// priority queue. It satisfies the bus's EventStore contract and can share a
// client with the Transport so one connection carries both pub/sub and
// persistence.
type Store struct {
	client *redis.Client
	opts   StoreOptions
}

// NewStore creates a Redis event store on an existing client.
func NewStore(client *redis.Client, optFns ...func(o *StoreOptions)) *Store {
	opts := StoreOptions{Prefix: "cogmesh", HistoryCap: 1000, TTL: 24 * time.Hour}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = 1000
	}
	return &Store{client: client, opts: opts}
}

func (s *Store) eventKey(id string) string { return fmt.Sprintf("%s:event:%s", s.opts.Prefix, id) }

func (s *Store) historyKey(eventType string) string {
	return fmt.Sprintf("%s:history:%s", s.opts.Prefix, eventType)
}

func (s *Store) globalKey() string { return s.opts.Prefix + ":history:all" }

func (s *Store) correlationKey(id string) string {
	return fmt.Sprintf("%s:correlation:%s", s.opts.Prefix, id)
}

func (s *Store) priorityKey() string { return s.opts.Prefix + ":priority" }

// Append persists a new event and registers it in all indexes, trimming the
// oldest history entries past the cap.
func (s *Store) Append(ctx context.Context, e core.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	created := float64(e.CreatedAt.UnixNano())

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.eventKey(e.ID), data, s.opts.TTL)
	pipe.ZAdd(ctx, s.historyKey(e.Type), redis.Z{Score: created, Member: e.ID})
	pipe.ZAdd(ctx, s.globalKey(), redis.Z{Score: created, Member: e.ID})
	pipe.ZAdd(ctx, s.correlationKey(e.CorrelationID), redis.Z{Score: created, Member: e.ID})
	pipe.Expire(ctx, s.correlationKey(e.CorrelationID), s.opts.TTL)
	if e.Priority > core.PriorityNormal {
		pipe.ZAdd(ctx, s.priorityKey(), redis.Z{Score: e.PriorityScore(), Member: e.ID})
	}
	pipe.ZRemRangeByRank(ctx, s.historyKey(e.Type), 0, -(s.opts.HistoryCap + 1))
	pipe.ZRemRangeByRank(ctx, s.globalKey(), 0, -(s.opts.HistoryCap + 1))
	_, err = pipe.Exec(ctx)
	return err
}

// Update overwrites an event body, keeping its remaining TTL.
func (s *Store) Update(ctx context.Context, e core.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.eventKey(e.ID), data, redis.KeepTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNotFound
	}
	return nil
}

// Get fetches one event by id.
func (s *Store) Get(ctx context.Context, id string) (core.Event, error) {
	data, err := s.client.Get(ctx, s.eventKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Event{}, core.ErrNotFound
	}
	if err != nil {
		return core.Event{}, err
	}
	var e core.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return core.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, nil
}

// ByCorrelation returns a correlation group ordered by ascending creation
// time. Events whose bodies already expired are skipped.
func (s *Store) ByCorrelation(ctx context.Context, correlationID string) ([]core.Event, error) {
	ids, err := s.client.ZRange(ctx, s.correlationKey(correlationID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, ids)
}

// Recent returns up to limit events of a type, newest first.
func (s *Store) Recent(ctx context.Context, eventType string, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.client.ZRevRange(ctx, s.historyKey(eventType), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, ids)
}

// PopPriority atomically removes and returns up to n ids from the priority
// queue, most urgent first.
func (s *Store) PopPriority(ctx context.Context, n int) ([]core.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZPopMin(ctx, s.priorityKey(), int64(n)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(zs))
	for _, z := range zs {
		if id, ok := z.Member.(string); ok {
			ids = append(ids, id)
		}
	}
	return s.fetch(ctx, ids)
}

// fetch resolves event bodies for a list of ids, skipping expired ones.
func (s *Store) fetch(ctx context.Context, ids []string) ([]core.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.eventKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]core.Event, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var e core.Event
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
