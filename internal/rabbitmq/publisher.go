package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher fans events out on a topic exchange, routed by event type.
type Publisher struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	log      *logger.Logger
}

func NewPublisher(cfg config.RabbitMQConfig, log *logger.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	log.Info("RABBITMQ", fmt.Sprintf("Connected, publishing to exchange %s", cfg.Exchange))
	p := NewPublisherWithChannel(ch, cfg.Exchange, log)
	p.conn = conn
	return p, nil
}

func NewPublisherWithChannel(ch Channel, exchange string, log *logger.Logger) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, log: log}
}

func (p *Publisher) Publish(ctx context.Context, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		event.Type, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			CorrelationId: event.Key(),
			Type:          event.Type,
			Body:          body,
			Timestamp:     event.Timestamp,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.log.Debug("RABBITMQ", fmt.Sprintf("Published %s with key %s", event.Type, event.Key()))
	return nil
}

func (p *Publisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
