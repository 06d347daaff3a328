package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
)

const (
	TopicPaymentSuccess    = "payment-success"
	TopicPaymentRefunded   = "payment-refunded"
	TopicOrderEvents       = "order-events"
	TopicSessionEvents     = "session-events"
	TopicReservationEvents = "reservation-events"
	TopicRestaurantEvents  = "restaurant-events"
)

type Producer struct {
	producer sarama.SyncProducer
	mockMode bool
	log      *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	if cfg.MockMode {
		log.LogKafka("MOCK_MODE", "producer", "Running in mock mode - no actual Kafka connection")
		return &Producer{mockMode: true, log: log}, nil
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.LogKafka("CONNECTED", "producer", fmt.Sprintf("Connected to Kafka brokers: %v", cfg.Brokers))
	return NewProducerWithClient(producer, log), nil
}

// NewProducerWithClient wraps an existing sync producer.
func NewProducerWithClient(producer sarama.SyncProducer, log *logger.Logger) *Producer {
	return &Producer{producer: producer, log: log}
}

// Publish sends the event keyed by its table so every event of one table
// lands on the same partition.
func (p *Producer) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := TopicForEvent(event.Type)

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", topic, fmt.Sprintf("Mock publishing event: %s for key: %s", event.Type, event.Key()))
		p.log.LogKafka("MOCK_DATA", topic, string(data))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: msg})

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to send message to topic %s: %v", topic, err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.LogKafka("PUBLISHED", topic, fmt.Sprintf("Message sent to partition %d at offset %d for %s", partition, offset, event.Type))
	return nil
}

func TopicForEvent(eventType string) string {
	switch eventType {
	case models.EventPaymentSuccess:
		return TopicPaymentSuccess
	case models.EventPaymentRefunded:
		return TopicPaymentRefunded
	case models.EventOrderCreated, models.EventOrderReady, models.EventOrderCancelled:
		return TopicOrderEvents
	case models.EventSessionOpened, models.EventSessionClosed:
		return TopicSessionEvents
	case models.EventReservationConfirmed, models.EventReservationNoShow:
		return TopicReservationEvents
	default:
		return TopicRestaurantEvents
	}
}

func (p *Producer) Close() error {
	if p.mockMode {
		p.log.LogKafka("MOCK_CLOSE", "producer", "Mock producer closed")
		return nil
	}

	if p.producer != nil {
		p.log.LogKafka("CLOSING", "producer", "Closing Kafka producer connection")
		return p.producer.Close()
	}
	return nil
}

// headerCarrier adapts producer and consumer record headers to the otel
// propagation carrier.
type headerCarrier struct {
	msg     *sarama.ProducerMessage
	headers []*sarama.RecordHeader
}

func (c headerCarrier) Get(key string) string {
	if c.msg != nil {
		for _, h := range c.msg.Headers {
			if string(h.Key) == key {
				return string(h.Value)
			}
		}
		return ""
	}
	for _, h := range c.headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	if c.msg == nil {
		return
	}
	for i, h := range c.msg.Headers {
		if string(h.Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	var keys []string
	if c.msg != nil {
		for _, h := range c.msg.Headers {
			keys = append(keys, string(h.Key))
		}
		return keys
	}
	for _, h := range c.headers {
		if h != nil {
			keys = append(keys, string(h.Key))
		}
	}
	return keys
}
