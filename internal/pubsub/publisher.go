package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

var ErrNack = errors.New("publish not acknowledged by broker")

type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// NopPublisher drops everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Envelope) error { return nil }
func (NopPublisher) Close() error                                     { return nil }

type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *log.Logger
}

// NewAMQPPublisher declares exchange as a durable topic exchange on conn.
// The publisher owns conn and closes it on Close.
func NewAMQPPublisher(conn *amqp091.Connection, exchange string, logger *log.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		log:      logger,
	}, nil
}

// Publish sends env in confirm mode and waits for the broker to ack it.
func (p *AMQPPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	msg, err := newPublishing(env)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("confirm mode: %w", err)
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("publish %s: %w", key, ErrNack)
	}

	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

func newPublishing(env Envelope) (amqp091.Publishing, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal envelope: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.Meta.ID,
		Type:         env.Meta.Type,
		AppId:        env.Meta.Producer,
		Timestamp:    env.Meta.Time,
		Body:         body,
	}
	if env.Meta.CorrelationID != nil {
		msg.CorrelationId = *env.Meta.CorrelationID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	return msg, nil
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*AMQPPublisher)(nil)
)
