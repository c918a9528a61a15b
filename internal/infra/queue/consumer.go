package queue

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/infra/config"
)

// Consumer wraps a single RabbitMQ connection/channel pair declared against
// one topic exchange, one durable work queue bound to it, and a dead-letter
// exchange used as the closest faithful mapping of a renewable lease onto a
// broker with no native lease renewal: a nacked message is requeued with a
// per-message TTL, so a worker that dies mid-job doesn't hold the job
// forever.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.QueueConfig
}

var _ ports.Queue = (*Consumer)(nil)

const deadLetterExchange = "turbobackend.jobs.dlx"

func NewConsumer(cfg config.QueueConfig) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(deadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	retryQueue := cfg.Queue + ".retry"

	_, err = ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": retryQueue,
	})
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}
	_, err = ch.QueueDeclare(retryQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    cfg.Exchange,
		"x-dead-letter-routing-key": cfg.RoutingKey,
		"x-message-ttl":             cfg.DeadLetterTTL.Milliseconds(),
	})
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare retry queue: %w", err)
	}

	if err := ch.QueueBind(retryQueue, retryQueue, deadLetterExchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind retry queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{conn: conn, channel: ch, cfg: cfg}, nil
}

// Consume registers a consumer on the work queue and invokes handler for
// every delivery, with manual ack/nack left to the caller.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, delivery ports.Delivery) error) error {
	msgs, err := c.channel.Consume(c.cfg.Queue, "turbobackend-worker", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("queue consumer started", "queue", c.cfg.Queue)
	for {
		select {
		case <-ctx.Done():
			slog.Info("queue consumer shutting down")
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			delivery := ports.Delivery{
				JobName: msg.RoutingKey,
				Body:    msg.Body,
				Attempt: deliveryCount(msg),
				Ack:     func() { _ = msg.Ack(false) },
				Nack:    func(requeue bool) { _ = msg.Nack(false, requeue) },
			}
			if err := handler(ctx, delivery); err != nil {
				slog.Error("delivery handler error", "routing_key", msg.RoutingKey, "err", err)
			}
		}
	}
}

func deliveryCount(msg amqp.Delivery) int {
	if msg.Headers == nil {
		return 1
	}
	if v, ok := msg.Headers["x-delivery-count"]; ok {
		if n, ok := v.(int32); ok {
			return int(n) + 1
		}
	}
	return 1
}

// Purge discards every pending message on the work queue without
// consuming it. Used to wipe stale jobs on a non-production shutdown so a
// restarted dev/staging worker doesn't immediately replay them.
func (c *Consumer) Purge() error {
	n, err := c.channel.QueuePurge(c.cfg.Queue, false)
	if err != nil {
		return fmt.Errorf("failed to purge queue %s: %w", c.cfg.Queue, err)
	}
	slog.Info("queue purged", "queue", c.cfg.Queue, "messages_discarded", n)
	return nil
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			slog.Error("error closing rabbitmq channel", "err", err)
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
