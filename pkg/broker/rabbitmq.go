package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQ implements Channel over a durable topic exchange.
//
// Redelivery policy: every work queue is declared with a dead-letter exchange.
// A failed delivery is requeued once; if it fails again after redelivery it is
// routed to "<queue>.dead" for operator inspection instead of looping forever.
type RabbitMQ struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	exchange string
	logger   *zap.Logger

	mu sync.Mutex
}

// NewRabbitMQ dials the broker and declares the topic exchange plus its
// dead-letter companion.
func NewRabbitMQ(url, exchange string, logger *zap.Logger) (*RabbitMQ, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	if err := pub.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := pub.ExchangeDeclare(exchange+".dlx", "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare dead-letter exchange: %w", err)
	}

	return &RabbitMQ{conn: conn, pub: pub, exchange: exchange, logger: logger}, nil
}

// Publish routes a persistent JSON message to the topic exchange.
func (b *RabbitMQ) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.pub.PublishWithContext(ctx, b.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Listen binds a durable queue to the topic and starts a consumption loop on a
// dedicated AMQP channel. Messages are processed one at a time per queue.
func (b *RabbitMQ) Listen(topic, queue string, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel for %s: %w", queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos for %s: %w", queue, err)
	}

	deadQueue := queue + ".dead"
	if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue %s: %w", deadQueue, err)
	}
	if err := ch.QueueBind(deadQueue, queue, b.exchange+".dlx", false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue %s: %w", deadQueue, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    b.exchange + ".dlx",
		"x-dead-letter-routing-key": queue,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, topic, b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, topic, err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go b.consume(queue, deliveries, handler)
	return nil
}

func (b *RabbitMQ) consume(queue string, deliveries <-chan amqp.Delivery, handler Handler) {
	for msg := range deliveries {
		if err := handler(context.Background(), msg.Body); err != nil {
			if msg.Redelivered {
				// Second failure: park it on the dead-letter queue.
				b.logger.Error("message dead-lettered",
					zap.String("queue", queue),
					zap.String("topic", msg.RoutingKey),
					zap.Error(err))
				_ = msg.Nack(false, false)
			} else {
				b.logger.Warn("message handling failed, requeueing",
					zap.String("queue", queue),
					zap.String("topic", msg.RoutingKey),
					zap.Error(err))
				_ = msg.Nack(false, true)
			}
			continue
		}
		_ = msg.Ack(false)
	}
	b.logger.Info("consumer loop ended", zap.String("queue", queue))
}

// Ping reports broker connectivity for readiness checks.
func (b *RabbitMQ) Ping(ctx context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return fmt.Errorf("broker connection closed")
	}
	return nil
}

// Close tears down the publish channel and the connection.
func (b *RabbitMQ) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		_ = b.pub.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
