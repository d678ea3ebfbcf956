package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/goliatone/go-receipts/core"
)

const defaultExchange = "receipts.notifications"

// Publisher emits notification jobs to a RabbitMQ topic exchange, one
// routing key per hook. Publishes run in confirm mode and block until
// the broker acks, so an error or nack surfaces to the emitter, which
// owns the retry and drop policy.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   core.Logger
}

type Config struct {
	URL      string
	Exchange string
	Logger   core.Logger
}

func NewPublisher(cfg Config) (*Publisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("amqp: broker url is required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %q: %w", exchange, err)
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		logger:   cfg.Logger,
	}, nil
}

var _ core.NotificationPublisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, job core.NotificationJob) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("amqp: publisher is not configured")
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp: open channel: %w", err)
	}
	defer ch.Close()
	// Confirm mode is per channel, so every publish channel opts in
	// before sending.
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("amqp: enable confirm mode: %w", err)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("amqp: encode notification: %w", err)
	}
	key := routingKey(job.Hook)
	confirmation, err := ch.PublishWithDeferredConfirmWithContext(
		ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     uuid.NewString(),
			CorrelationId: job.Hook + "::" + job.Message.ID,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp: publish notification: %w", err)
	}
	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqp: await publish confirmation: %w", err)
	}
	if !acked {
		return fmt.Errorf("amqp: broker rejected notification for %q", key)
	}
	if p.logger != nil {
		p.logger.WithContext(ctx).Info("notification published",
			"exchange", p.exchange, "routing_key", key, "message_id", job.Message.ID)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

func routingKey(hookName string) string {
	hookName = strings.TrimSpace(hookName)
	if hookName == "" {
		hookName = "unknown"
	}
	return "receipts.notification." + hookName
}
