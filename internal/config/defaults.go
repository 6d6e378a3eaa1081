package config

import (
	"strings"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultInstanceID           = "quoteworker"
	DefaultAPITimeout           = 10 * time.Second
	DefaultMaxRetries           = 2
	DefaultPingTimeout          = 60 * time.Second
	DefaultTickMaxAge           = 10 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultPollInterval         = 2 * time.Second
	DefaultErrorBackoff         = 30 * time.Second
	DefaultCallTimeout          = 3 * time.Second
	DefaultStopTimeout          = 5 * time.Second
	DefaultConcurrency          = 16
	DefaultMaxActivationRetries = 3
	DefaultExchangeTimezone     = "America/Sao_Paulo"
	DefaultPublisherBackend     = PublisherLog
	DefaultRedisChannelPrefix   = "quotes."
	DefaultRedisSnapshotTTL     = time.Hour
	DefaultKafkaTopic           = "quotes"
	DefaultKafkaBatchTimeout    = 10 * time.Millisecond
	DefaultNATSSubjectPrefix    = "quotes."
	DefaultHTTPPort             = 8080
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// DefaultSymbols is the eagerly-activated set used when none is configured.
var DefaultSymbols = []string{
	"VALE3", "PETR4", "ITUB4", "BBDC4", "ABEV3",
	"MGLU3", "WEGE3", "RENT3", "LREN3",
}

// DefaultBasePrices are the synthetic-tier reference prices used in demo mode.
var DefaultBasePrices = map[string]float64{
	"VALE3": 53.41, "PETR4": 32.53, "ITUB4": 34.92, "BBDC4": 15.46,
	"ABEV3": 12.37, "PRJO3": 4.85, "MGLU3": 8.90, "WEGE3": 45.60,
	"RENT3": 58.30, "LREN3": 18.70,
}

func (c *WorkerConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Provider defaults
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultAPITimeout
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = DefaultMaxRetries
	}
	if c.Provider.PingTimeout == 0 {
		c.Provider.PingTimeout = DefaultPingTimeout
	}
	if c.Provider.TickMaxAge == 0 {
		c.Provider.TickMaxAge = DefaultTickMaxAge
	}
	if c.Provider.ReconnectMax == 0 {
		c.Provider.ReconnectMax = DefaultReconnectMaxDelay
	}

	// Database defaults
	if c.Database.Reference.Enabled() {
		applyDBDefaults(&c.Database.Reference)
	}

	// Engine defaults
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = DefaultPollInterval
	}
	if c.Engine.ErrorBackoff == 0 {
		c.Engine.ErrorBackoff = DefaultErrorBackoff
	}
	if c.Engine.CallTimeout == 0 {
		c.Engine.CallTimeout = DefaultCallTimeout
	}
	if c.Engine.StopTimeout == 0 {
		c.Engine.StopTimeout = DefaultStopTimeout
	}
	if c.Engine.Concurrency == 0 {
		c.Engine.Concurrency = DefaultConcurrency
	}
	if c.Engine.MaxActivationRetries == 0 {
		c.Engine.MaxActivationRetries = DefaultMaxActivationRetries
	}
	if c.Engine.DefaultSymbols == nil {
		c.Engine.DefaultSymbols = append([]string(nil), DefaultSymbols...)
	}
	if c.Engine.Mode == "" {
		c.Engine.Mode = ModeProduction
	}
	if c.Engine.AllowSynthetic && c.Engine.BasePrices == nil {
		c.Engine.BasePrices = make(map[string]float64, len(DefaultBasePrices))
		for k, v := range DefaultBasePrices {
			c.Engine.BasePrices[k] = v
		}
	}
	if c.Engine.ExchangeTimezone == "" {
		c.Engine.ExchangeTimezone = DefaultExchangeTimezone
	}

	// Publisher defaults
	if c.Publisher.Backend == "" {
		c.Publisher.Backend = DefaultPublisherBackend
	}
	c.Publisher.Backend = strings.ToLower(c.Publisher.Backend)
	if c.Publisher.Redis.ChannelPrefix == "" {
		c.Publisher.Redis.ChannelPrefix = DefaultRedisChannelPrefix
	}
	if c.Publisher.Redis.SnapshotTTL == 0 {
		c.Publisher.Redis.SnapshotTTL = DefaultRedisSnapshotTTL
	}
	if c.Publisher.Kafka.Topic == "" {
		c.Publisher.Kafka.Topic = DefaultKafkaTopic
	}
	if c.Publisher.Kafka.BatchTimeout == 0 {
		c.Publisher.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if c.Publisher.NATS.SubjectPrefix == "" {
		c.Publisher.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}

	// Server defaults
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
