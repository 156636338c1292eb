// Package redis backs the bus with Redis: pub/sub as the core.Transport and
// sorted-set indexes as the event store, enabling multiple cogmesh processes
// to share one logical bus. Delivery is at-least-once from the bus's
// perspective: Redis fans a published message out to every connected
// subscriber of the channel.
package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/cogmesh/core"
)

// Options configure the Redis transport.
type Options struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password authenticates the connection if set.
	Password string
	// DB selects the logical Redis database.
	DB int
	// BufferSize sets the inbound message channel buffer.
	BufferSize int
}

// Transport is a core.Transport backed by Redis pub/sub.
type Transport struct {
	client *redis.Client
	pubsub *redis.PubSub
	msgs   chan core.Message

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Redis transport and starts its inbound pump. The pump runs
// until Close is called.
func New(optFns ...func(o *Options)) *Transport {
	opts := Options{Addr: "localhost:6379", BufferSize: 256}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	return NewFromClient(client, opts.BufferSize)
}

// NewFromClient creates a Redis transport from an existing client, useful
// when the caller already manages connection pooling.
func NewFromClient(client *redis.Client, bufferSize int) *Transport {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	t := &Transport{
		client: client,
		pubsub: client.Subscribe(context.Background()),
		msgs:   make(chan core.Message, bufferSize),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.pump()
	return t
}

// pump forwards Redis deliveries into the transport's message stream.
func (t *Transport) pump() {
	defer t.wg.Done()
	ch := t.pubsub.Channel()
	for {
		select {
		case <-t.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case t.msgs <- core.Message{Channel: msg.Channel, Data: []byte(msg.Payload)}:
			case <-t.done:
				return
			}
		}
	}
}

// Publish sends data on a channel. Errors surface as-is so the bus can wrap
// them into a TransportError.
func (t *Transport) Publish(ctx context.Context, channel string, data []byte) error {
	return t.client.Publish(ctx, channel, data).Err()
}

// Subscribe registers interest in a channel.
func (t *Transport) Subscribe(channel string) error {
	return t.pubsub.Subscribe(context.Background(), channel)
}

// Unsubscribe removes interest in a channel.
func (t *Transport) Unsubscribe(channel string) error {
	return t.pubsub.Unsubscribe(context.Background(), channel)
}

// Messages returns the inbound delivery stream.
func (t *Transport) Messages() <-chan core.Message { return t.msgs }

// Close stops the pump and closes the pub/sub connection and message stream.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	err := t.pubsub.Close()
	t.wg.Wait()
	close(t.msgs)
	return err
}

// Client exposes the underlying Redis client for callers that co-locate the
// event store on the same connection.
func (t *Transport) Client() *redis.Client { return t.client }
