package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/quote-relay/internal/config"
)

// OpenFunc opens a connection pool.
type OpenFunc func(ctx context.Context) (*pgxpool.Pool, error)

// Opener returns an OpenFunc for cfg, or nil when no database is configured.
func Opener(cfg config.DBConfig) OpenFunc {
	if !cfg.Enabled() {
		return nil
	}
	return func(ctx context.Context) (*pgxpool.Pool, error) {
		return Connect(ctx, cfg)
	}
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
