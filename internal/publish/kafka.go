package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/model"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes events to one topic keyed by room, so a room's
// quotes stay on one partition.
type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewKafka creates a publisher backed by a kafka.Writer.
func NewKafka(cfg config.KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	topic := cfg.Topic
	if topic == "" {
		topic = config.DefaultKafkaTopic
	}
	batch := cfg.BatchTimeout
	if batch <= 0 {
		batch = config.DefaultKafkaBatchTimeout
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           batch,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaWithWriter(w, logger)
}

// NewKafkaWithWriter wraps an existing writer.
func NewKafkaWithWriter(w MessageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		writer: w,
		logger: logger.With("component", "publisher", "backend", "kafka"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev model.QuoteEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.Room),
		Value: payload,
		Time:  ev.PublishedAt,
		Headers: []kafka.Header{
			{Key: "ticker", Value: []byte(ev.Ticker)},
			{Key: "source", Value: []byte(ev.Source)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", ev.Room, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
