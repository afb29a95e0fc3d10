package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/JonMunkholm/storesync/internal/core"
)

// AMQPConfig configures the RabbitMQ sink.
type AMQPConfig struct {
	URL      string
	Exchange string
}

func (c AMQPConfig) Validate() error {
	if c.URL == "" {
		return errors.New("amqp url is required")
	}
	if c.Exchange == "" {
		return errors.New("amqp exchange is required")
	}
	return nil
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPSink publishes to a topic exchange with routing key sync.<entity>.
type AMQPSink struct {
	conn     *amqp091.Connection
	ch       publisher
	exchange string
}

// NewAMQPSink dials the broker and declares the exchange.
func NewAMQPSink(cfg AMQPConfig) (*AMQPSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

func routingKey(entity string) string {
	return "sync." + entity
}

func (s *AMQPSink) Notify(ctx context.Context, n core.Notification) error {
	body, err := encode(n)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    n.BatchID,
		Body:         body,
	}
	if err := s.ch.PublishWithContext(ctx, s.exchange, routingKey(n.Entity), false, false, msg); err != nil {
		return fmt.Errorf("amqp publish %s: %w", routingKey(n.Entity), err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
