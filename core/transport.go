package core

import "context"

// Message is one raw inbound transport delivery.
type Message struct {
	Channel string
	Data    []byte
}

// Transport is a channel-addressed pub/sub fabric with at-least-once
// delivery. The bus is its only intended consumer: it publishes serialized
// events and drains Messages in its delivery loop. Subscribe/Unsubscribe
// manage which channels the transport listens on; duplicate subscriptions to
// one channel are idempotent.
type Transport interface {
	Publish(ctx context.Context, channel string, data []byte) error
	Subscribe(channel string) error
	Unsubscribe(channel string) error
	// Messages returns the stream of inbound deliveries. The channel is
	// closed by Close.
	Messages() <-chan Message
	Close() error
}
