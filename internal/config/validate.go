package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Validate checks that all required fields are set and values are valid.
func (c *WorkerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Provider.RestURL == "" {
		return errors.New("provider.rest_url is required")
	}
	if c.Provider.WSURL == "" {
		return errors.New("provider.ws_url is required")
	}
	if c.Provider.Login == "" {
		return errors.New("provider.login is required")
	}
	if c.Provider.Password == "" {
		return errors.New("provider.password is required")
	}

	if c.Database.Reference.Enabled() {
		if err := c.Database.Reference.validate("database.reference"); err != nil {
			return err
		}
	}

	if err := c.Engine.validate(); err != nil {
		return err
	}

	if err := c.Publisher.validate(); err != nil {
		return err
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port must be between 0 and 65535, got %d", c.Server.GRPCPort)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (e *EngineConfig) validate() error {
	if e.PollInterval <= 0 {
		return errors.New("engine.poll_interval must be > 0")
	}
	if e.ErrorBackoff < e.PollInterval {
		return fmt.Errorf("engine.error_backoff (%s) cannot be shorter than poll_interval (%s)", e.ErrorBackoff, e.PollInterval)
	}
	if e.CallTimeout <= 0 {
		return errors.New("engine.call_timeout must be > 0")
	}
	if e.Concurrency < 1 {
		return errors.New("engine.concurrency must be >= 1")
	}
	if e.MaxActivationRetries < 1 {
		return errors.New("engine.max_activation_retries must be >= 1")
	}

	switch e.Mode {
	case ModeProduction:
		if e.AllowSynthetic {
			return errors.New("engine.allow_synthetic cannot be enabled in production mode")
		}
	case ModeDemo:
	default:
		return fmt.Errorf("engine.mode must be %q or %q, got %q", ModeProduction, ModeDemo, e.Mode)
	}

	for sym, p := range e.BasePrices {
		if p <= 0 {
			return fmt.Errorf("engine.base_prices.%s must be > 0", sym)
		}
	}

	if _, err := time.LoadLocation(e.ExchangeTimezone); err != nil {
		return fmt.Errorf("engine.exchange_timezone: %w", err)
	}

	return nil
}

func (p *PublisherConfig) validate() error {
	switch p.Backend {
	case PublisherLog:
	case PublisherRedis:
		if p.Redis.Addr == "" {
			return errors.New("publisher.redis.addr is required")
		}
	case PublisherKafka:
		if len(p.Kafka.Brokers) == 0 {
			return errors.New("publisher.kafka.brokers cannot be empty")
		}
	case PublisherNATS:
		if p.NATS.URL == "" {
			return errors.New("publisher.nats.url is required")
		}
	default:
		return fmt.Errorf("publisher.backend %q is not supported", p.Backend)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
