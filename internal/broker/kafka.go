package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// headerEventType lets consumers filter without decoding the payload
const headerEventType = "event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes domain events to one topic, keyed so that events for the
// same order land on the same partition.
type Producer struct {
	writer messageWriter
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           time.Second,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: writer, logger: util.GetLogger()}
}

// Publish marshals event and writes it under key
func (p *Producer) Publish(ctx context.Context, key, eventType string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(eventType)}},
		Time:    time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s to kafka: %w", eventType, err)
	}

	p.logger.Debug("Published event", zap.String("key", key), zap.String("type", eventType))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic as part of a consumer group
type Consumer struct {
	reader messageReader
	topic  string
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{reader: reader, topic: topic, logger: util.GetLogger()}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches and handles messages until ctx is done. A message
// whose handler fails is logged and committed so it cannot wedge the partition.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Consumer stopped", zap.String("topic", c.topic))
				return ctx.Err()
			}
			c.logger.Error("Error fetching message", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Warn("Dropping message after handler error",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.String("type", eventType(msg)),
				zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == headerEventType {
			return string(h.Value)
		}
	}
	return ""
}
