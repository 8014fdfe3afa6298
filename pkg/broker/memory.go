package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MemoryChannel is an in-process Channel used by tests and local development.
// Delivery is synchronous and mirrors the RabbitMQ policy: a failed handler is
// retried once, then the message is moved to the queue's dead-letter slice.
type MemoryChannel struct {
	mu       sync.Mutex
	bindings []memoryBinding
	dead     map[string][][]byte
}

type memoryBinding struct {
	pattern string
	queue   string
	handler Handler
}

// NewMemoryChannel builds an empty in-memory channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{dead: make(map[string][][]byte)}
}

// Publish delivers the payload to every queue bound to a matching pattern.
func (m *MemoryChannel) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}

	m.mu.Lock()
	bindings := make([]memoryBinding, len(m.bindings))
	copy(bindings, m.bindings)
	m.mu.Unlock()

	for _, b := range bindings {
		if !matchTopic(b.pattern, topic) {
			continue
		}
		if err := b.handler(ctx, body); err != nil {
			if err := b.handler(ctx, body); err != nil {
				m.mu.Lock()
				m.dead[b.queue] = append(m.dead[b.queue], body)
				m.mu.Unlock()
			}
		}
	}
	return nil
}

// Listen binds a handler to the topic pattern. Duplicate (pattern, queue)
// bindings replace the previous handler, matching durable-queue semantics.
func (m *MemoryChannel) Listen(topic, queue string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.bindings {
		if b.pattern == topic && b.queue == queue {
			m.bindings[i].handler = handler
			return nil
		}
	}
	m.bindings = append(m.bindings, memoryBinding{pattern: topic, queue: queue, handler: handler})
	return nil
}

// DeadLetters returns messages that exhausted their redelivery budget.
func (m *MemoryChannel) DeadLetters(queue string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dead[queue]
}

// Ping always succeeds for the in-memory channel.
func (m *MemoryChannel) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryChannel) Close() error { return nil }

// matchTopic implements AMQP-style topic matching: "*" matches exactly one
// dot-separated segment, "#" matches zero or more.
func matchTopic(pattern, topic string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(topic, "."))
}

func matchSegments(pattern, topic []string) bool {
	if len(pattern) == 0 {
		return len(topic) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(topic); i++ {
			if matchSegments(pattern[1:], topic[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(topic) > 0 && matchSegments(pattern[1:], topic[1:])
	default:
		return len(topic) > 0 && pattern[0] == topic[0] && matchSegments(pattern[1:], topic[1:])
	}
}
