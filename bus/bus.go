package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/logging"
	"github.com/hupe1980/cogmesh/transport"
)

// Callback handles an event delivered on a subscribed channel. Callbacks run
// in isolation: a panic or slow callback never affects other callbacks or the
// event's lifecycle.
type Callback func(ctx context.Context, e core.Event)

// Subscription identifies one registered callback so it can be removed later.
type Subscription struct {
	Channel string
	ID      string
}

// Options configure the event bus.
type Options struct {
	// Store persists events and indexes. Defaults to an in-memory store.
	Store EventStore
	// Transport carries serialized events between publisher and delivery
	// loop. Defaults to the in-process loopback transport.
	Transport core.Transport
	// Logger receives bus diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Source labels events published without an explicit source.
	Source string
}

// PublishOptions configure a single Publish call.
type PublishOptions struct {
	// Priority ranks the event in the priority index. Defaults to normal.
	Priority core.Priority
	// CorrelationID groups this event with causally related ones. Defaults
	// to the new event's own id.
	CorrelationID string
	// Source overrides the bus-level source label.
	Source string
}

// Health is a point-in-time snapshot of bus counters.
type Health struct {
	Published     int64     `json:"published"`
	Delivered     int64     `json:"delivered"`
	Failed        int64     `json:"failed"`
	Subscriptions int       `json:"subscriptions"`
	LastError     string    `json:"last_error,omitempty"`
	LastEventAt   time.Time `json:"last_event_at"`
}

// Bus is the event bus. Create one with New, run its delivery loop with Run,
// and stop it by cancelling the Run context and calling Close.
type Bus struct {
	opts      Options
	store     EventStore
	transport core.Transport
	logger    logging.Logger

	mu   sync.RWMutex
	subs map[string]map[string]Callback

	clockMu   sync.Mutex
	corrClock map[string]time.Time

	statMu      sync.Mutex
	published   int64
	delivered   int64
	failed      int64
	lastError   string
	lastEventAt time.Time
}

// New creates an event bus. With no options it is fully self-contained:
// in-memory store, in-process transport, no logging.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Source: "system"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = NewInMemoryStore()
	}
	if opts.Transport == nil {
		opts.Transport = transport.NewInProcess(0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Bus{
		opts:      opts,
		store:     opts.Store,
		transport: opts.Transport,
		logger:    opts.Logger,
		subs:      make(map[string]map[string]Callback),
		corrClock: make(map[string]time.Time),
	}
}

// Publish creates an event of the given type, persists it, and hands it to
// the transport. The returned id can be used with GetEvent. The event is
// durable once Publish returns without error; a *core.TransportError means
// the event was persisted but delivery is not guaranteed.
func (b *Bus) Publish(ctx context.Context, eventType string, payload core.Payload, optFns ...func(o *PublishOptions)) (string, error) {
	if eventType == "" {
		return "", &core.ValidationError{Field: "type", Reason: "must not be empty"}
	}
	pub := PublishOptions{Priority: core.PriorityNormal, Source: b.opts.Source}
	for _, fn := range optFns {
		fn(&pub)
	}

	e := core.NewEvent(eventType, payload, pub.Priority, pub.CorrelationID, pub.Source)
	e.CreatedAt = b.clampCorrelation(e.CorrelationID, e.CreatedAt)

	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	if err := b.store.Append(ctx, e); err != nil {
		return "", fmt.Errorf("persist event: %w", err)
	}
	b.recordPublished()

	start := time.Now()
	if err := b.transport.Publish(ctx, eventType, data); err != nil {
		terr := &core.TransportError{Op: "publish", Err: err}
		b.recordError(terr)
		logging.LogPublish(b.logger, eventType, e.Priority.String(), time.Since(start), terr)
		return e.ID, terr
	}
	logging.LogPublish(b.logger, eventType, e.Priority.String(), time.Since(start), nil)
	return e.ID, nil
}

// clampCorrelation keeps creation timestamps non-decreasing within one
// correlation group.
func (b *Bus) clampCorrelation(correlationID string, createdAt time.Time) time.Time {
	b.clockMu.Lock()
	defer b.clockMu.Unlock()
	if last, ok := b.corrClock[correlationID]; ok && createdAt.Before(last) {
		createdAt = last
	}
	b.corrClock[correlationID] = createdAt
	return createdAt
}

// Subscribe registers a callback for a channel and returns a handle for
// Unsubscribe. The first subscription on a channel opens it on the transport.
func (b *Bus) Subscribe(channel string, cb Callback) (Subscription, error) {
	if channel == "" {
		return Subscription{}, &core.ValidationError{Field: "channel", Reason: "must not be empty"}
	}
	if cb == nil {
		return Subscription{}, &core.ValidationError{Field: "callback", Reason: "must not be nil"}
	}
	sub := Subscription{Channel: channel, ID: core.NewID()}

	b.mu.Lock()
	first := len(b.subs[channel]) == 0
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[string]Callback)
	}
	b.subs[channel][sub.ID] = cb
	b.mu.Unlock()

	if first {
		if err := b.transport.Subscribe(channel); err != nil {
			b.mu.Lock()
			delete(b.subs[channel], sub.ID)
			b.mu.Unlock()
			return Subscription{}, &core.TransportError{Op: "subscribe", Err: err}
		}
	}
	b.logger.Debug("subscribed", "channel", channel, "subscription_id", sub.ID)
	return sub, nil
}

// Unsubscribe removes one callback. Removing the last callback on a channel
// closes it on the transport.
func (b *Bus) Unsubscribe(sub Subscription) error {
	b.mu.Lock()
	cbs, ok := b.subs[sub.Channel]
	if ok {
		delete(cbs, sub.ID)
		if len(cbs) == 0 {
			delete(b.subs, sub.Channel)
		}
	}
	last := ok && len(cbs) == 0
	b.mu.Unlock()

	if last {
		if err := b.transport.Unsubscribe(sub.Channel); err != nil {
			return &core.TransportError{Op: "unsubscribe", Err: err}
		}
	}
	return nil
}

// UnsubscribeAll removes every callback on a channel and closes it on the
// transport.
func (b *Bus) UnsubscribeAll(channel string) error {
	b.mu.Lock()
	_, ok := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()

	if ok {
		if err := b.transport.Unsubscribe(channel); err != nil {
			return &core.TransportError{Op: "unsubscribe", Err: err}
		}
	}
	return nil
}

// GetEvent returns a retained event by id.
func (b *Bus) GetEvent(ctx context.Context, id string) (core.Event, error) {
	return b.store.Get(ctx, id)
}

// GetRelatedEvents returns all retained events in a correlation group,
// ordered by ascending creation time.
func (b *Bus) GetRelatedEvents(ctx context.Context, correlationID string) ([]core.Event, error) {
	return b.store.ByCorrelation(ctx, correlationID)
}

// GetRecentEvents returns up to limit retained events of a type, newest
// first. A non-positive limit defaults to 100.
func (b *Bus) GetRecentEvents(ctx context.Context, eventType string, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return b.store.Recent(ctx, eventType, limit)
}

// DrainPriority removes and returns up to n events from the priority index,
// most urgent first. It is a secondary pull-style index for consumers that
// poll; subscription delivery does not go through it.
func (b *Bus) DrainPriority(ctx context.Context, n int) ([]core.Event, error) {
	return b.store.PopPriority(ctx, n)
}

// Run consumes the transport's message stream and delivers events to
// subscribed callbacks until ctx is cancelled or the transport closes.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.transport.Messages():
			if !ok {
				return nil
			}
			b.deliver(ctx, msg)
		}
	}
}

// deliver drives one event through processing to a terminal status.
func (b *Bus) deliver(ctx context.Context, msg core.Message) {
	var e core.Event
	if err := json.Unmarshal(msg.Data, &e); err != nil {
		b.failUnparseable(ctx, msg, err)
		return
	}

	e.Status = core.StatusProcessing
	if err := b.store.Update(ctx, e); err != nil {
		// A foreign publisher on a shared transport; keep delivering anyway.
		b.logger.Debug("event not in local store", "event_id", e.ID, "error", err.Error())
	}

	b.mu.RLock()
	cbs := make([]Callback, 0, len(b.subs[msg.Channel]))
	for _, cb := range b.subs[msg.Channel] {
		cbs = append(cbs, cb)
	}
	b.mu.RUnlock()

	for _, cb := range cbs {
		b.invoke(ctx, cb, e)
	}

	now := time.Now().UTC()
	e.Status = core.StatusCompleted
	e.ProcessedAt = &now
	if err := b.store.Update(ctx, e); err == nil || errors.Is(err, core.ErrNotFound) {
		b.recordDelivered()
	}
}

// invoke runs one callback, containing any panic.
func (b *Bus) invoke(ctx context.Context, cb Callback, e core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.recordError(fmt.Errorf("callback panic: %v", r))
			b.logger.Error("callback panicked", "event_id", e.ID, "event_type", e.Type, "panic", fmt.Sprint(r))
		}
	}()
	cb(ctx, e)
}

// failUnparseable marks an undecodable message failed if its event id can
// still be recovered.
func (b *Bus) failUnparseable(ctx context.Context, msg core.Message, cause error) {
	b.recordError(cause)
	b.logger.Error("undecodable event", "channel", msg.Channel, "error", cause.Error())

	var header struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(msg.Data, &header) != nil || header.ID == "" {
		return
	}
	e, err := b.store.Get(ctx, header.ID)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	e.Status = core.StatusFailed
	e.ProcessedAt = &now
	e.Error = fmt.Sprintf("parse: %v", cause)
	_ = b.store.Update(ctx, e)
}

// Health returns a snapshot of bus counters.
func (b *Bus) Health() Health {
	b.mu.RLock()
	subs := 0
	for _, cbs := range b.subs {
		subs += len(cbs)
	}
	b.mu.RUnlock()

	b.statMu.Lock()
	defer b.statMu.Unlock()
	return Health{
		Published:     b.published,
		Delivered:     b.delivered,
		Failed:        b.failed,
		Subscriptions: subs,
		LastError:     b.lastError,
		LastEventAt:   b.lastEventAt,
	}
}

// Close shuts down the transport, which ends Run.
func (b *Bus) Close() error {
	return b.transport.Close()
}

func (b *Bus) recordPublished() {
	b.statMu.Lock()
	b.published++
	b.lastEventAt = time.Now().UTC()
	b.statMu.Unlock()
}

func (b *Bus) recordDelivered() {
	b.statMu.Lock()
	b.delivered++
	b.statMu.Unlock()
}

func (b *Bus) recordError(err error) {
	b.statMu.Lock()
	b.failed++
	b.lastError = err.Error()
	b.statMu.Unlock()
}
