package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads order lifecycle events from one or more topics.
type Consumer struct {
	reader MessageReader
	logger *logger.Logger
}

// NewConsumer joins groupID on topics.
func NewConsumer(brokers, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

func NewConsumerWithReader(reader MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, logger: log}
}

// Start hands each decoded event to handler until ctx is done. Undecodable messages are skipped.
func (c *Consumer) Start(ctx context.Context, handler func(models.OrderEvent)) error {
	c.logger.Info("KAFKA", "Order event consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read kafka message: %w", err)
		}

		var event models.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Skipping undecodable message on %s at offset %d: %v", msg.Topic, msg.Offset, err))
			continue
		}

		c.logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("%s event for order %s", event.Type, event.OrderID))
		handler(event)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
