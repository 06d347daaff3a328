package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
)

// TransferHandler processes one bank-transfer notification relayed over Kafka.
type TransferHandler func(ctx context.Context, n *models.BankTransferNotification) error

type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	log      *logger.Logger
}

func NewConsumer(cfg config.KafkaConfig, log *logger.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.LogKafka("CONNECTED", cfg.WebhookTopic, fmt.Sprintf("Consumer group %s joined", cfg.GroupID))
	return &Consumer{consumer: group, topics: []string{cfg.WebhookTopic}, log: log}, nil
}

// ConsumeTransfers blocks until ctx is cancelled or the group fails.
func (c *Consumer) ConsumeTransfers(ctx context.Context, handler TransferHandler) error {
	h := NewTransferConsumerHandler(handler, c.log)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumer.Consume(ctx, c.topics, h); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				c.log.Error("KAFKA", fmt.Sprintf("Error consuming messages: %v", err))
				return err
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

type TransferConsumerHandler struct {
	handler TransferHandler
	log     *logger.Logger
}

func NewTransferConsumerHandler(handler TransferHandler, log *logger.Logger) *TransferConsumerHandler {
	return &TransferConsumerHandler{handler: handler, log: log}
}

func (h *TransferConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *TransferConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks malformed messages so they are not redelivered. A handler
// failure ends the claim without marking that message or any later one, so the
// committed offset stays before it and the group redelivers it after rejoining.
func (h *TransferConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var n models.BankTransferNotification
		if err := json.Unmarshal(message.Value, &n); err != nil {
			h.log.Warn("KAFKA", fmt.Sprintf("Skipping malformed message at %s/%d/%d: %v",
				message.Topic, message.Partition, message.Offset, err))
			session.MarkMessage(message, "")
			continue
		}

		ctx := otel.GetTextMapPropagator().Extract(session.Context(), headerCarrier{headers: message.Headers})
		if err := h.handler(ctx, &n); err != nil {
			h.log.Error("KAFKA", fmt.Sprintf("Failed to handle transfer %d at %s/%d/%d: %v",
				n.ID, message.Topic, message.Partition, message.Offset, err))
			return fmt.Errorf("transfer %d at offset %d: %w", n.ID, message.Offset, err)
		}

		h.log.LogKafka("CONSUMED", message.Topic, fmt.Sprintf("Transfer %d processed", n.ID))
		session.MarkMessage(message, "")
	}

	return nil
}
