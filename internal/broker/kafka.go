package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"earnings-service/internal/util"

	"github.com/googleapis/gax-go/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformed marks a message that cannot be decoded
var ErrMalformed = errors.New("malformed message")

type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a new Kafka producer. Messages are partitioned by key
// so one designer's events stay ordered.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{writer: writer, logger: util.Named("kafka-producer")}
}

// PublishEvent publishes an event to Kafka
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-class", Value: []byte(eventClass(event))},
		},
	}

	err = p.writer.WriteMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.Debug("Published event",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
		zap.String("class", eventClass(event)))
	return nil
}

func eventClass(event interface{}) string {
	t := reflect.TypeOf(event)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader is the part of kafka.Reader the consumer needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer represents a Kafka consumer
type Consumer struct {
	reader  messageReader
	topic   string
	backoff gax.Backoff
	logger  *zap.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return newConsumer(reader, topic, gax.Backoff{Initial: time.Second, Max: time.Minute, Multiplier: 2})
}

func newConsumer(reader messageReader, topic string, backoff gax.Backoff) *Consumer {
	return &Consumer{
		reader:  reader,
		topic:   topic,
		backoff: backoff,
		logger:  util.Named("kafka-consumer").With(zap.String("topic", topic)),
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming starts consuming messages with a handler. A failing message
// is retried with capped backoff until it succeeds or ctx ends; its offset is
// committed only after success. Malformed messages are committed and skipped.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			c.logger.Error("Error fetching message", zap.Error(err))
			if err := gax.Sleep(ctx, time.Second); err != nil {
				return ctx.Err()
			}
			continue
		}

		if err := c.handleUntilDone(ctx, handler, msg); err != nil {
			// ctx ended: leave the offset uncommitted so the message is redelivered
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

// handleUntilDone returns nil once msg may be committed, or ctx's error
func (c *Consumer) handleUntilDone(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	bo := c.backoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrMalformed) {
			c.logger.Error("Skipping malformed message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pause := bo.Pause()
		c.logger.Warn("Error handling message, will retry",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", pause),
			zap.Error(err))
		if err := gax.Sleep(ctx, pause); err != nil {
			return ctx.Err()
		}
	}
}
