package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/model"
)

// SnapshotKeyPrefix prefixes the latest-quote key of each ticker.
const SnapshotKeyPrefix = "quote:"

var _ Publisher = (*RedisPublisher)(nil)

// RedisPublisher publishes each event on "<prefix><room>" and stores the
// latest quote per ticker so late joiners can read a snapshot.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // 0 = no expiry
	logger *slog.Logger
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(client, cfg, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, cfg config.RedisConfig, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = config.DefaultRedisChannelPrefix
	}
	return &RedisPublisher{
		client: client,
		prefix: prefix,
		ttl:    cfg.SnapshotTTL,
		logger: logger.With("component", "publisher", "backend", "redis"),
	}
}

// Channel returns the pub/sub channel for room.
func (p *RedisPublisher) Channel(room string) string {
	return p.prefix + room
}

func (p *RedisPublisher) Publish(ctx context.Context, ev model.QuoteEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, p.Channel(ev.Room), payload)
	pipe.Set(ctx, SnapshotKeyPrefix+ev.Ticker, payload, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Room, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
