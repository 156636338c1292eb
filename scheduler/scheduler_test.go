package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/memory"
)

type fakeConsolidator struct {
	mu      sync.Mutex
	calls   int
	stats   memory.ConsolidationStats
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeConsolidator) Consolidate(context.Context) (memory.ConsolidationStats, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	started := f.started
	f.mu.Unlock()
	if started != nil {
		close(started)
		f.mu.Lock()
		f.started = nil
		f.mu.Unlock()
	}
	if block != nil {
		<-block
	}
	return f.stats, f.err
}

func (f *fakeConsolidator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type capturePublisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *capturePublisher) Publish(_ context.Context, eventType string, payload core.Payload, optFns ...func(o *bus.PublishOptions)) (string, error) {
	var opts bus.PublishOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	e := core.NewEvent(eventType, payload, opts.Priority, opts.CorrelationID, opts.Source)
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return e.ID, nil
}

func (c *capturePublisher) byType(eventType string) []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestRunOnce_PublishesSummary(t *testing.T) {
	fc := &fakeConsolidator{stats: memory.ConsolidationStats{Scanned: 4, Promoted: 2, Evicted: 1, Failed: 1}}
	pub := &capturePublisher{}
	s := New(fc, pub)

	stats, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Promoted)
	assert.Equal(t, StateIdle, s.State())

	events := pub.byType(core.EventConsolidationCompleted)
	require.Len(t, events, 1)
	assert.Equal(t, "scheduler", events[0].Source)
	p, ok := events[0].Payload.(core.ConsolidationPayload)
	require.True(t, ok)
	assert.Equal(t, 4, p.Scanned)
	assert.Equal(t, 1, p.Failed)
}

func TestRunOnce_ErrorLatches(t *testing.T) {
	cause := errors.New("storage down")
	fc := &fakeConsolidator{err: cause}
	pub := &capturePublisher{}
	s := New(fc, pub)

	_, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, cause, s.LastError())
	assert.Empty(t, pub.byType(core.EventConsolidationCompleted))

	// Latched: the next tick is a skip, not a retry.
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fc.callCount())

	s.Reset()
	assert.Equal(t, StateIdle, s.State())
	assert.NoError(t, s.LastError())

	fc.err = nil
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fc.callCount())
}

func TestRunOnce_ErrorBackoffExpires(t *testing.T) {
	cause := errors.New("storage down")
	fc := &fakeConsolidator{err: cause}
	pub := &capturePublisher{}
	s := New(fc, pub, func(o *Options) {
		o.ErrorBackoff = 20 * time.Millisecond
	})

	_, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Equal(t, StateError, s.State())

	// Inside the backoff window ticks are still skipped.
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fc.callCount())

	time.Sleep(30 * time.Millisecond)

	// The latch expires on its own; no Reset needed.
	fc.mu.Lock()
	fc.err = nil
	fc.mu.Unlock()
	stats, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 2, fc.callCount())
	assert.Equal(t, StateIdle, s.State())
	assert.NoError(t, s.LastError())
	require.Len(t, pub.byType(core.EventConsolidationCompleted), 1)
}

func TestRunOnce_SkipsOverlap(t *testing.T) {
	fc := &fakeConsolidator{block: make(chan struct{}), started: make(chan struct{})}
	pub := &capturePublisher{}
	s := New(fc, pub)

	go func() { _, _ = s.RunOnce(context.Background()) }()
	<-fc.started
	assert.Equal(t, StateRunning, s.State())

	stats, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats)
	assert.Equal(t, 1, fc.callCount())

	close(fc.block)
}

func TestStartStop_Ticks(t *testing.T) {
	fc := &fakeConsolidator{}
	pub := &capturePublisher{}
	s := New(fc, pub, func(o *Options) {
		o.Interval = 10 * time.Millisecond
	})

	require.NoError(t, s.Start())
	deadline := time.Now().Add(2 * time.Second)
	for fc.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Greater(t, fc.callCount(), 0, "scheduler never ticked")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "error", StateError.String())
}
