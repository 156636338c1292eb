package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/cogmesh/core"
)

// InProcess is a loopback Transport delivering published messages straight
// into its own Messages channel. Delivery is per-process only; publishes to
// channels with no subscription are dropped, matching pub/sub semantics.
// Safe for concurrent use.
type InProcess struct {
	mu        sync.RWMutex
	channels  map[string]struct{}
	msgs      chan core.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewInProcess constructs an in-process transport with the given inbound
// buffer size (a non-positive size falls back to 256).
func NewInProcess(bufferSize int) *InProcess {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &InProcess{
		channels: make(map[string]struct{}),
		msgs:     make(chan core.Message, bufferSize),
		done:     make(chan struct{}),
	}
}

// Publish delivers data to the inbound stream if the channel has a
// subscription. Blocks only while the inbound buffer is full, and respects
// context cancellation and Close. The read lock is held across the send so
// Close cannot close the stream under an in-flight publish.
func (t *InProcess) Publish(ctx context.Context, channel string, data []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	select {
	case <-t.done:
		return fmt.Errorf("transport closed")
	default:
	}
	if _, subscribed := t.channels[channel]; !subscribed {
		return nil
	}
	select {
	case t.msgs <- core.Message{Channel: channel, Data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return fmt.Errorf("transport closed")
	}
}

// Subscribe registers interest in a channel. Idempotent.
func (t *InProcess) Subscribe(channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
		return fmt.Errorf("transport closed")
	default:
	}
	t.channels[channel] = struct{}{}
	return nil
}

// Unsubscribe removes interest in a channel. Unsubscribing an unknown channel
// is a no-op.
func (t *InProcess) Unsubscribe(channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.channels, channel)
	return nil
}

// Messages returns the inbound delivery stream.
func (t *InProcess) Messages() <-chan core.Message { return t.msgs }

// Close shuts the transport down and closes the Messages channel. Blocked
// publishers are released first; the stream is closed only once no publish
// holds the lock, so Close never races a send. Subsequent publishes fail.
func (t *InProcess) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		defer t.mu.Unlock()
		close(t.msgs)
	})
	return nil
}
