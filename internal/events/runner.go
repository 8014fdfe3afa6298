package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/learnsphere/enrollment-api/pkg/broker"
)

// Listener binds one topic to one durable queue. Handle must be idempotent:
// delivery is at-least-once and unordered across queues.
type Listener interface {
	Topic() string
	Queue() string
	Handle(ctx context.Context, body []byte) error
}

// Metrics is the slice of instrumentation the event layer uses.
type Metrics interface {
	RecordEventPublished(topic string)
	RecordEventConsumed(queue string)
	RecordEventFailure(queue string)
}

// Runner wires listeners onto the channel. Queue names are prefixed with the
// service's consumer-group prefix so each service owns its own queues.
type Runner struct {
	ch        broker.Channel
	prefix    string
	metrics   Metrics
	logger    *zap.Logger
	listeners []Listener
}

// NewRunner constructs a Runner. metrics may be nil.
func NewRunner(ch broker.Channel, prefix string, metrics Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{ch: ch, prefix: prefix, metrics: metrics, logger: logger}
}

// Register adds listeners to be started.
func (r *Runner) Register(listeners ...Listener) {
	r.listeners = append(r.listeners, listeners...)
}

// Start begins consumption for every registered listener.
func (r *Runner) Start() error {
	for _, l := range r.listeners {
		queue := l.Queue()
		if r.prefix != "" {
			queue = r.prefix + "." + queue
		}
		if err := r.ch.Listen(l.Topic(), queue, r.instrument(queue, l.Handle)); err != nil {
			return fmt.Errorf("start listener for %s: %w", l.Topic(), err)
		}
		r.logger.Info("listener started", zap.String("topic", l.Topic()), zap.String("queue", queue))
	}
	return nil
}

func (r *Runner) instrument(queue string, handle broker.Handler) broker.Handler {
	if r.metrics == nil {
		return handle
	}
	return func(ctx context.Context, body []byte) error {
		if err := handle(ctx, body); err != nil {
			r.metrics.RecordEventFailure(queue)
			return err
		}
		r.metrics.RecordEventConsumed(queue)
		return nil
	}
}
