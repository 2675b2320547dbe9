package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds broker and topic settings
type KafkaConfig struct {
	Brokers       []string
	SnapshotTopic string
	CommandTopic  string
	GroupID       string
}

// ParseBrokers splits a comma-separated broker list
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// KafkaProducer writes keyed messages to a single topic
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a producer for the snapshot topic. Messages with
// the same key land on the same partition.
func NewKafkaProducer(cfg KafkaConfig, logger zerolog.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: no brokers configured")
	}
	if cfg.SnapshotTopic == "" {
		return nil, fmt.Errorf("kafka producer: no topic configured")
	}

	log := logger.With().Str("component", "kafka-producer").Str("topic", cfg.SnapshotTopic).Logger()
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.SnapshotTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			ErrorLogger:  kafkaLogger(log),
		},
	}, nil
}

func (p *KafkaProducer) Produce(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close flushes pending writes
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer reads the command topic as part of a consumer group
type KafkaConsumer struct {
	reader messageReader
}

// NewKafkaConsumer creates a group reader for the command topic
func NewKafkaConsumer(cfg KafkaConfig, logger zerolog.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}
	if cfg.CommandTopic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer: topic and group id are required")
	}

	log := logger.With().Str("component", "kafka-consumer").Str("topic", cfg.CommandTopic).Logger()
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.CommandTopic,
			MinBytes:    1,
			MaxBytes:    1 << 20,
			MaxWait:     time.Second,
			ErrorLogger: kafkaLogger(log),
		}),
	}, nil
}

// Consume reads the next message and commits it
func (c *KafkaConsumer) Consume(ctx context.Context) (Message, error) {
	m, err := c.reader.ReadMessage(ctx)
	if errors.Is(err, io.EOF) {
		// The reader reports io.EOF once closed
		return Message{}, ErrClosed
	}
	if err != nil {
		return Message{}, fmt.Errorf("failed to read message: %w", err)
	}
	return Message{Key: string(m.Key), Value: m.Value}, nil
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func kafkaLogger(logger zerolog.Logger) kafka.LoggerFunc {
	return func(msg string, args ...interface{}) {
		logger.Error().Msgf(msg, args...)
	}
}
