package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/model"
)

// Conn is the part of *nats.Conn used here.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

var _ Publisher = (*NATSPublisher)(nil)

// NATSPublisher publishes each event on "<prefix><room>".
type NATSPublisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
}

// NewNATS connects to NATS.
func NewNATS(cfg config.NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "publisher", "backend", "nats")

	nc, err := nats.Connect(cfg.URL,
		nats.Name("quoteworker"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return NewNATSWithConn(nc, cfg, logger), nil
}

// NewNATSWithConn wraps an existing connection.
func NewNATSWithConn(conn Conn, cfg config.NATSConfig, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = config.DefaultNATSSubjectPrefix
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With("component", "publisher", "backend", "nats"),
	}
}

// Subject returns the subject for room. Whitespace, '*' and '>' are not
// valid in a subject token and become '_'.
func (p *NATSPublisher) Subject(room string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '*', '>':
			return '_'
		}
		return r
	}, room)
	return p.prefix + clean
}

func (p *NATSPublisher) Publish(_ context.Context, ev model.QuoteEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(ev.Room), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", ev.Room, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
