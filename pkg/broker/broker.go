package broker

import "context"

// Handler processes a single delivery. Returning nil acknowledges the message;
// returning an error leaves it for redelivery (see implementation policy).
// Handlers are invoked at-least-once and possibly out of send order, so they
// must be idempotent.
type Handler func(ctx context.Context, body []byte) error

// Channel is a durable topic-exchange message channel. Topics are dot-separated
// strings; queues are named, durable, and double as consumer-group identity.
type Channel interface {
	// Publish serializes the payload as JSON and routes it to every queue
	// bound to a pattern matching the topic. It fails only on broker
	// connectivity problems, never on slow or absent consumers.
	Publish(ctx context.Context, topic string, payload interface{}) error

	// Listen declares the durable queue, binds it to the topic, and consumes
	// messages one at a time, acknowledging only when the handler returns nil.
	Listen(topic, queue string, handler Handler) error

	Close() error
}
