// Package publish delivers quote events to the pub/sub transport that fans
// them out to connected viewers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/model"
)

// Publisher sends quote events to a room's topic.
type Publisher interface {
	Publish(ctx context.Context, ev model.QuoteEvent) error
	Close() error
}

// Encode renders an event in its wire format.
func Encode(ev model.QuoteEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode quote event: %w", err)
	}
	return data, nil
}

// Decode parses an event from its wire format.
func Decode(data []byte) (model.QuoteEvent, error) {
	var ev model.QuoteEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.QuoteEvent{}, fmt.Errorf("decode quote event: %w", err)
	}
	return ev, nil
}

// New builds the publisher selected by cfg.Backend.
func New(ctx context.Context, cfg config.PublisherConfig, logger *slog.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.PublisherLog:
		return NewLog(logger), nil
	case config.PublisherRedis:
		p, err := NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.PublisherKafka:
		return NewKafka(cfg.Kafka, logger), nil
	case config.PublisherNATS:
		p, err := NewNATS(cfg.NATS, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported publisher backend %q", cfg.Backend)
	}
}
