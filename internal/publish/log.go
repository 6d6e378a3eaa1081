package publish

import (
	"context"
	"log/slog"

	"github.com/rickgao/quote-relay/internal/model"
)

// LogPublisher writes each event as a debug log line.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLog creates a LogPublisher.
func NewLog(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "publisher", "backend", "log")}
}

func (p *LogPublisher) Publish(ctx context.Context, ev model.QuoteEvent) error {
	p.logger.DebugContext(ctx, "quote",
		"room", ev.Room,
		"ticker", ev.Ticker,
		"source", ev.Source,
		"price", ev.Price,
		"realtime", ev.Realtime,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
