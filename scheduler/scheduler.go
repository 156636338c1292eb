package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/logging"
	"github.com/hupe1980/cogmesh/memory"
)

// Consolidator runs one consolidation pass over short-term memory.
type Consolidator interface {
	Consolidate(ctx context.Context) (memory.ConsolidationStats, error)
}

// Publisher is the slice of the event bus the scheduler needs.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload core.Payload, optFns ...func(o *bus.PublishOptions)) (string, error)
}

// State is the scheduler run state.
type State int32

const (
	// StateIdle means no pass is running and the next tick will fire.
	StateIdle State = iota
	// StateRunning means a pass is in flight; overlapping ticks are skipped.
	StateRunning
	// StateError means a pass failed; ticks are skipped until the error
	// backoff elapses or Reset is called.
	StateError
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Options configure the scheduler.
type Options struct {
	// Interval between consolidation passes.
	Interval time.Duration
	// PassTimeout bounds a single consolidation pass.
	PassTimeout time.Duration
	// ErrorBackoff is how long ticks stay suppressed after a failed pass
	// before the scheduler tries again on its own. Defaults to twice the
	// interval.
	ErrorBackoff time.Duration
	// Logger receives structured scheduler logs.
	Logger logging.Logger
}

// Scheduler owns the consolidation cadence.
type Scheduler struct {
	opts   Options
	mem    Consolidator
	events Publisher
	logger logging.Logger

	cron      *cron.Cron
	state     atomic.Int32
	erroredAt atomic.Int64 // unix nanos of the last failed pass

	lastErr atomic.Value // errBox
}

// errBox wraps an error so a cleared value can be stored atomically.
type errBox struct{ err error }

// New creates a scheduler around mem, publishing pass summaries on events.
func New(mem Consolidator, events Publisher, optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Interval:    time.Hour,
		PassTimeout: 5 * time.Minute,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = 5 * time.Minute
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 2 * opts.Interval
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Scheduler{
		opts:   opts,
		mem:    mem,
		events: events,
		logger: opts.Logger,
		cron:   cron.New(),
	}
}

// Start begins periodic ticks. It returns immediately; passes run on the
// cron goroutine.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.opts.Interval)
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PassTimeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("Consolidation scheduler started", "interval", s.opts.Interval.String())
	return nil
}

// Stop halts ticking and waits for an in-flight pass to finish, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Consolidation scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single consolidation pass if the scheduler is idle.
// A pass already in flight causes a skip with a nil error and zero stats,
// as does a latched error whose backoff has not yet elapsed.
func (s *Scheduler) RunOnce(ctx context.Context) (memory.ConsolidationStats, error) {
	if !s.acquire() {
		s.logger.Debug("Skipping consolidation tick", "state", s.State().String())
		return memory.ConsolidationStats{}, nil
	}

	stats, err := s.mem.Consolidate(ctx)
	if err != nil {
		s.lastErr.Store(errBox{err: err})
		s.erroredAt.Store(time.Now().UnixNano())
		s.state.Store(int32(StateError))
		s.logger.Error("Consolidation pass failed", "error", err)
		return stats, err
	}

	s.lastErr.Store(errBox{})
	s.state.Store(int32(StateIdle))
	s.publish(ctx, stats)
	return stats, nil
}

// acquire claims the running state. After a failure the scheduler stays
// latched for ErrorBackoff; once that elapses the next tick runs again.
func (s *Scheduler) acquire() bool {
	if s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return true
	}
	if State(s.state.Load()) != StateError {
		return false
	}
	erroredAt := time.Unix(0, s.erroredAt.Load())
	if time.Since(erroredAt) < s.opts.ErrorBackoff {
		return false
	}
	return s.state.CompareAndSwap(int32(StateError), int32(StateRunning))
}

// Reset clears a latched error immediately, without waiting for the backoff.
// It is a no-op while a pass is running.
func (s *Scheduler) Reset() {
	if s.state.CompareAndSwap(int32(StateError), int32(StateIdle)) {
		s.lastErr.Store(errBox{})
		s.logger.Info("Consolidation scheduler reset")
	}
}

// State returns the current run state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastError returns the error that latched the scheduler, if any.
func (s *Scheduler) LastError() error {
	v := s.lastErr.Load()
	if v == nil {
		return nil
	}
	return v.(errBox).err
}

func (s *Scheduler) publish(ctx context.Context, stats memory.ConsolidationStats) {
	cctx := core.SystemContext("consolidation")
	_, err := s.events.Publish(ctx, core.EventConsolidationCompleted, core.ConsolidationPayload{
		Scanned:  stats.Scanned,
		Promoted: stats.Promoted,
		Evicted:  stats.Evicted,
		Failed:   stats.Failed,
	}, func(o *bus.PublishOptions) {
		o.CorrelationID = cctx.RequestID
		o.Source = "scheduler"
	})
	if err != nil {
		s.logger.Warn("Failed to publish consolidation summary", "error", err)
	}
}
