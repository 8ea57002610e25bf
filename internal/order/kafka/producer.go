package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/models"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer streams order lifecycle events, one topic per event type, keyed by order id.
type Producer struct {
	Writer      MessageWriter
	TopicPrefix string
	Logger      *logger.Logger
}

func NewProducer(brokers []string, topicPrefix string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{Writer: writer, TopicPrefix: topicPrefix, Logger: log}
}

// Topic returns e.g. servicetracker.order.status_changed.
func Topic(prefix string, eventType models.OrderEventType) string {
	return fmt.Sprintf("%s.order.%s", prefix, eventType)
}

// Topics lists every topic the producer may write to.
func Topics(prefix string) []string {
	types := []models.OrderEventType{
		models.OrderEventCreated,
		models.OrderEventStatusChanged,
		models.OrderEventUpdated,
		models.OrderEventArchived,
		models.OrderEventDeleted,
	}
	topics := make([]string, len(types))
	for i, t := range types {
		topics[i] = Topic(prefix, t)
	}
	return topics
}

// PublishOrderEvent streams the event to its topic.
func (p *Producer) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	topic := Topic(p.TopicPrefix, event.Type)
	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.OrderID),
		Value: msgBytes,
		Time:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("order %s", event.OrderID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
