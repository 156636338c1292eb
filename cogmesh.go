// Package cogmesh provides a high-level façade over the event bus, tiered
// memory, reasoning and knowledge subsystems. Most applications interact
// with this package by:
//  1. Creating a Mesh via New() (optionally overriding default in-memory
//     storage, the embedder or the model)
//  2. Calling Start() to run event delivery, task dispatch and the
//     consolidation scheduler
//  3. Using the convenience operations (Remember, Recall, Infer, Plan,
//     Ingest, Synthesize) or submitting tasks asynchronously via Submit
//
// All defaults are safe for local development and testing; production
// deployments typically supply the sqlite storage backend, the Redis
// transport and a structured logger.
package cogmesh

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/config"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/dispatcher"
	"github.com/hupe1980/cogmesh/embedding"
	"github.com/hupe1980/cogmesh/knowledge"
	"github.com/hupe1980/cogmesh/logging"
	"github.com/hupe1980/cogmesh/memory"
	"github.com/hupe1980/cogmesh/model"
	"github.com/hupe1980/cogmesh/reasoning"
	"github.com/hupe1980/cogmesh/scheduler"
	"github.com/hupe1980/cogmesh/storage"
)

// Options configure the Mesh instance.
type Options struct {
	// Storage backs memory and knowledge. Defaults to in-memory.
	Storage core.Storage
	// Embedder produces content vectors. Defaults to the deterministic
	// hash embedder.
	Embedder core.Embedder
	// Transport carries events. Defaults to the in-process loopback.
	Transport core.Transport
	// EventStore persists event history. Defaults to in-memory.
	EventStore bus.EventStore
	// Model powers inference and synthesis. Nil selects the deterministic
	// built-in compositions.
	Model model.Model

	// Memory tuning.
	CacheSize           int
	RetrieveLimit       int
	AgeThreshold        time.Duration
	ImportanceThreshold float64
	ConsolidationBatch  int

	// Dispatcher tuning.
	QueueCapacity int
	Overflow      dispatcher.OverflowPolicy
	Workers       int

	// ConsolidationInterval is the scheduler cadence.
	ConsolidationInterval time.Duration

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the underlying subsystems.
type Mesh struct {
	opts Options

	bus        *bus.Bus
	memory     *memory.Store
	reasoning  *reasoning.Engine
	knowledge  *knowledge.Base
	dispatcher *dispatcher.Dispatcher
	scheduler  *scheduler.Scheduler
	logger     logging.Logger

	cancel context.CancelFunc
}

// New creates a Mesh with optional overrides. Any unset collaborator is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		CacheSize:             1024,
		RetrieveLimit:         5,
		AgeThreshold:          24 * time.Hour,
		ImportanceThreshold:   0.3,
		ConsolidationBatch:    5,
		QueueCapacity:         256,
		Overflow:              dispatcher.OverflowReject,
		Workers:               1,
		ConsolidationInterval: time.Hour,
		Logger:                logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewInMemory()
	}
	if opts.Embedder == nil {
		opts.Embedder = embedding.NewHash()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	// Embedding failures degrade to zero vectors instead of failing stores.
	opts.Embedder = embedding.NewGraceful(opts.Embedder, opts.Logger)

	b := bus.New(func(o *bus.Options) {
		o.Store = opts.EventStore
		o.Transport = opts.Transport
		o.Logger = opts.Logger
	})

	mem, err := memory.New(opts.Storage, opts.Embedder, b, func(o *memory.Options) {
		o.CacheSize = opts.CacheSize
		o.RetrieveLimit = opts.RetrieveLimit
		o.AgeThreshold = opts.AgeThreshold
		o.ImportanceThreshold = opts.ImportanceThreshold
		o.BatchSize = opts.ConsolidationBatch
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}

	eng := reasoning.New(mem, b, func(o *reasoning.Options) {
		o.Model = opts.Model
		o.Logger = opts.Logger
	})

	kb := knowledge.New(opts.Storage, opts.Embedder, b, func(o *knowledge.Options) {
		o.Model = opts.Model
		o.Logger = opts.Logger
	})

	disp := dispatcher.New(b, func(o *dispatcher.Options) {
		o.QueueCapacity = opts.QueueCapacity
		o.Overflow = opts.Overflow
		o.Workers = opts.Workers
		o.Logger = opts.Logger
	})

	sched := scheduler.New(mem, b, func(o *scheduler.Options) {
		o.Interval = opts.ConsolidationInterval
		o.Logger = opts.Logger
	})

	m := &Mesh{
		opts:       opts,
		bus:        b,
		memory:     mem,
		reasoning:  eng,
		knowledge:  kb,
		dispatcher: disp,
		scheduler:  sched,
		logger:     opts.Logger,
	}
	m.registerHandlers()

	return m, nil
}

// FromConfig creates a Mesh from a loaded configuration. Collaborators a
// config file cannot express (storage backends, transports, models) are
// still supplied through option overrides, which win over config values.
func FromConfig(cfg config.Config, optFns ...func(o *Options)) (*Mesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := func(o *Options) {
		o.EventStore = bus.NewInMemoryStore(func(so *bus.InMemoryStoreOptions) {
			so.HistoryCap = cfg.Bus.HistoryCap
		})
		o.CacheSize = cfg.Memory.CacheSize
		o.RetrieveLimit = cfg.Memory.RetrieveLimit
		o.AgeThreshold = cfg.Consolidation.AgeThreshold.Std()
		o.ImportanceThreshold = cfg.Consolidation.ImportanceThreshold
		o.ConsolidationBatch = cfg.Consolidation.BatchSize
		o.QueueCapacity = cfg.Dispatcher.QueueCapacity
		o.Overflow = overflowPolicy(cfg.Dispatcher.OverflowPolicy)
		o.Workers = cfg.Dispatcher.Workers
		o.ConsolidationInterval = cfg.Consolidation.Interval.Std()
	}
	return New(append([]func(o *Options){base}, optFns...)...)
}

func overflowPolicy(name string) dispatcher.OverflowPolicy {
	switch name {
	case "drop_oldest":
		return dispatcher.OverflowDropOldest
	case "block":
		return dispatcher.OverflowBlock
	default:
		return dispatcher.OverflowReject
	}
}

// Start runs event delivery, the task dispatcher and the consolidation
// scheduler until Close is called or ctx is done.
func (m *Mesh) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	go func() { _ = m.bus.Run(runCtx) }()
	go func() { _ = m.dispatcher.Run(runCtx) }()

	if err := m.scheduler.Start(); err != nil {
		cancel()
		return err
	}
	return nil
}

// Close stops the scheduler, the run loops, the memory worker and the bus.
func (m *Mesh) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.scheduler.Stop(ctx)

	if m.cancel != nil {
		m.cancel()
	}
	if cerr := m.memory.Close(); err == nil {
		err = cerr
	}
	if cerr := m.bus.Close(); err == nil {
		err = cerr
	}
	return err
}

// Bus exposes the event bus for subscriptions and event queries.
func (m *Mesh) Bus() *bus.Bus { return m.bus }

// Memory exposes the tiered memory store.
func (m *Mesh) Memory() *memory.Store { return m.memory }

// Reasoning exposes the reasoning engine.
func (m *Mesh) Reasoning() *reasoning.Engine { return m.reasoning }

// Knowledge exposes the knowledge base.
func (m *Mesh) Knowledge() *knowledge.Base { return m.knowledge }

// Dispatcher exposes the task dispatcher.
func (m *Mesh) Dispatcher() *dispatcher.Dispatcher { return m.dispatcher }

// Scheduler exposes the consolidation scheduler.
func (m *Mesh) Scheduler() *scheduler.Scheduler { return m.scheduler }

// Remember stores content as a short-term memory and returns its id.
func (m *Mesh) Remember(ctx context.Context, content string, cctx core.Context) (string, error) {
	return m.memory.Store(ctx, core.MemoryRecord{Content: content}, cctx)
}

// Recall retrieves memories similar to query.
func (m *Mesh) Recall(ctx context.Context, query string, cctx core.Context) ([]core.MemoryRecord, error) {
	return m.memory.Retrieve(ctx, core.MemoryQuery{Content: query}, cctx)
}

// Infer answers a query over stored memories.
func (m *Mesh) Infer(ctx context.Context, query string, cctx core.Context) (core.Inference, error) {
	return m.reasoning.Infer(ctx, query, cctx)
}

// Plan decomposes a goal into validated actions.
func (m *Mesh) Plan(ctx context.Context, goal string, cctx core.Context) (core.Plan, error) {
	return m.reasoning.Plan(ctx, goal, cctx)
}

// Ingest adds external content to the knowledge base.
func (m *Mesh) Ingest(ctx context.Context, content string, md map[string]string, cctx core.Context) (string, error) {
	return m.knowledge.Ingest(ctx, content, md, cctx)
}

// Synthesize summarizes the knowledge matching a topic.
func (m *Mesh) Synthesize(ctx context.Context, topic string, cctx core.Context) (string, error) {
	return m.knowledge.Synthesize(ctx, topic, cctx)
}

// Submit publishes a task for asynchronous dispatch and returns the event id.
// The outcome arrives as a task.complete or task.error event correlated with
// the task's request id.
func (m *Mesh) Submit(ctx context.Context, task core.Task, priority core.Priority) (string, error) {
	return m.bus.Publish(ctx, core.EventTaskNew, core.TaskEventPayload{Task: task}, func(o *bus.PublishOptions) {
		o.Priority = priority
		o.CorrelationID = task.Context.RequestID
	})
}
