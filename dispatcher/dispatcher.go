package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/cogmesh/bus"
	"github.com/hupe1980/cogmesh/core"
	"github.com/hupe1980/cogmesh/logging"
)

// Handler executes one task and returns its result. Handlers must be safe
// for concurrent use; the dispatcher may invoke them from multiple workers.
type Handler func(ctx context.Context, task core.Task) (any, error)

// Bus is the slice of the event bus the dispatcher needs.
type Bus interface {
	Publish(ctx context.Context, eventType string, payload core.Payload, optFns ...func(o *bus.PublishOptions)) (string, error)
	Subscribe(channel string, cb bus.Callback) (bus.Subscription, error)
	Unsubscribe(sub bus.Subscription) error
}

// OverflowPolicy selects what happens when the async queue is full.
type OverflowPolicy int

const (
	// OverflowReject drops the incoming task and counts it.
	OverflowReject OverflowPolicy = iota
	// OverflowDropOldest evicts the oldest queued task to make room.
	OverflowDropOldest
	// OverflowBlock waits for queue space until the context is done.
	OverflowBlock
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowBlock:
		return "block"
	default:
		return "reject"
	}
}

// Options configure the dispatcher.
type Options struct {
	// QueueCapacity bounds the async task queue fed by task.new events.
	QueueCapacity int
	// Overflow selects the behavior when the queue is full.
	Overflow OverflowPolicy
	// Workers is the number of goroutines draining the async queue.
	Workers int
	// Logger receives structured dispatch logs.
	Logger logging.Logger
}

// TypeStats are per task type dispatch counters.
type TypeStats struct {
	Dispatched int64
	Failed     int64
}

// Health is a point in time snapshot of dispatcher activity.
type Health struct {
	Dispatched int64
	Completed  int64
	Failed     int64
	Dropped    int64
	QueueDepth int
	PerType    map[core.TaskType]TypeStats
}

// Dispatcher routes tasks to registered handlers and reports outcomes on the
// event bus.
type Dispatcher struct {
	opts   Options
	events Bus
	logger logging.Logger

	mu       sync.RWMutex
	handlers map[core.TaskType]Handler

	queue chan core.Task

	statMu     sync.Mutex
	dispatched int64
	completed  int64
	failed     int64
	dropped    int64
	perType    map[core.TaskType]TypeStats
}

// New creates a dispatcher publishing outcomes on events.
func New(events Bus, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		QueueCapacity: 256,
		Overflow:      OverflowReject,
		Workers:       1,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Dispatcher{
		opts:     opts,
		events:   events,
		logger:   opts.Logger,
		handlers: make(map[core.TaskType]Handler),
		queue:    make(chan core.Task, opts.QueueCapacity),
		perType:  make(map[core.TaskType]TypeStats),
	}
}

// Register installs the handler for a task type, replacing any previous one.
func (d *Dispatcher) Register(taskType core.TaskType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[taskType] = h
}

// Dispatch routes one task synchronously. Handler failures and panics are
// published as task.error events and returned to the caller wrapped in a
// HandlerExecutionError; successes are published as task.complete events.
func (d *Dispatcher) Dispatch(ctx context.Context, task core.Task) (result any, err error) {
	start := time.Now()
	defer func() {
		logging.LogDispatch(d.logger, string(task.Type), time.Since(start), err)
	}()

	d.mu.RLock()
	h, ok := d.handlers[task.Type]
	d.mu.RUnlock()
	if !ok {
		err = &core.UnknownTaskTypeError{Type: task.Type}
		d.recordFailure(ctx, task, err)
		return nil, err
	}

	result, err = d.invoke(ctx, h, task)
	if err != nil {
		err = &core.HandlerExecutionError{TaskType: task.Type, Err: err}
		d.recordFailure(ctx, task, err)
		return nil, err
	}

	d.recordSuccess(task)
	d.publish(ctx, core.EventTaskComplete, core.TaskResultPayload{
		TaskType: string(task.Type),
		Result:   result,
		Context:  task.Context,
	}, task.Context)
	return result, nil
}

// invoke runs the handler with panic containment.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, task core.Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, task)
}

// Run consumes task.new events until ctx is done. Arriving tasks are queued
// per the overflow policy and drained by worker goroutines; outcomes surface
// as task.complete and task.error events rather than returned errors.
func (d *Dispatcher) Run(ctx context.Context) error {
	sub, err := d.events.Subscribe(core.EventTaskNew, func(cbCtx context.Context, e core.Event) {
		p, ok := e.Payload.(core.TaskEventPayload)
		if !ok {
			d.logger.Warn("Ignoring task.new event with unexpected payload",
				"event_id", e.ID, "payload", fmt.Sprintf("%T", e.Payload))
			return
		}
		d.enqueue(cbCtx, p.Task)
	})
	if err != nil {
		return err
	}
	defer func() { _ = d.events.Unsubscribe(sub) }()

	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-d.queue:
					_, _ = d.Dispatch(ctx, task)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// enqueue admits a task to the async queue per the overflow policy.
func (d *Dispatcher) enqueue(ctx context.Context, task core.Task) {
	switch d.opts.Overflow {
	case OverflowBlock:
		select {
		case d.queue <- task:
		case <-ctx.Done():
			d.recordDropped(task)
		}
	case OverflowDropOldest:
		for {
			select {
			case d.queue <- task:
				return
			default:
			}
			select {
			case old := <-d.queue:
				d.recordDropped(old)
			default:
			}
		}
	default: // OverflowReject
		select {
		case d.queue <- task:
		default:
			d.recordDropped(task)
		}
	}
}

// publish is best effort; a bus failure must not fail the dispatch itself.
func (d *Dispatcher) publish(ctx context.Context, eventType string, payload core.Payload, cctx core.Context) {
	_, err := d.events.Publish(ctx, eventType, payload, func(o *bus.PublishOptions) {
		o.CorrelationID = cctx.RequestID
		o.Source = "dispatcher"
	})
	if err != nil {
		d.logger.Warn("Failed to publish dispatch outcome", "type", eventType, "error", err)
	}
}

func (d *Dispatcher) recordSuccess(task core.Task) {
	d.statMu.Lock()
	defer d.statMu.Unlock()
	d.dispatched++
	d.completed++
	st := d.perType[task.Type]
	st.Dispatched++
	d.perType[task.Type] = st
}

func (d *Dispatcher) recordFailure(ctx context.Context, task core.Task, cause error) {
	d.statMu.Lock()
	d.dispatched++
	d.failed++
	st := d.perType[task.Type]
	st.Dispatched++
	st.Failed++
	d.perType[task.Type] = st
	d.statMu.Unlock()

	d.publish(ctx, core.EventTaskError, core.ErrorPayload{
		Error:   cause.Error(),
		Context: task.Context,
	}, task.Context)
}

func (d *Dispatcher) recordDropped(task core.Task) {
	d.statMu.Lock()
	d.dropped++
	d.statMu.Unlock()
	d.logger.Warn("Task dropped by full queue",
		"task_type", string(task.Type), "policy", d.opts.Overflow.String())
}

// Health returns a snapshot of dispatch counters and queue depth.
func (d *Dispatcher) Health() Health {
	d.statMu.Lock()
	defer d.statMu.Unlock()
	perType := make(map[core.TaskType]TypeStats, len(d.perType))
	for k, v := range d.perType {
		perType[k] = v
	}
	return Health{
		Dispatched: d.dispatched,
		Completed:  d.completed,
		Failed:     d.failed,
		Dropped:    d.dropped,
		QueueDepth: len(d.queue),
		PerType:    perType,
	}
}
