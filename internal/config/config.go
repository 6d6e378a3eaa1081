package config

import "time"

// Mode values for EngineConfig.Mode.
const (
	ModeProduction = "production"
	ModeDemo       = "demo"
)

// Publisher backends.
const (
	PublisherLog   = "log"
	PublisherRedis = "redis"
	PublisherKafka = "kafka"
	PublisherNATS  = "nats"
)

// WorkerConfig is the root configuration for a quote worker instance.
type WorkerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Provider  ProviderConfig  `yaml:"provider"`
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Publisher PublisherConfig `yaml:"publisher"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this worker.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ProviderConfig holds market-data provider settings.
type ProviderConfig struct {
	RestURL      string        `yaml:"rest_url"`
	WSURL        string        `yaml:"ws_url"`
	Login        string        `yaml:"login"`
	Password     string        `yaml:"password"`
	Server       string        `yaml:"server"` // Broker server name sent with credentials
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	TickMaxAge   time.Duration `yaml:"tick_max_age"`
	ReconnectMax time.Duration `yaml:"reconnect_max_delay"`
}

// DatabaseConfig holds the reference-data store connection.
// Note: the store only provides display metadata; an empty host disables it.
type DatabaseConfig struct {
	Reference DBConfig `yaml:"reference"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database host is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// EngineConfig holds quote engine settings.
type EngineConfig struct {
	PollInterval         time.Duration      `yaml:"poll_interval"`
	ErrorBackoff         time.Duration      `yaml:"error_backoff"`
	CallTimeout          time.Duration      `yaml:"call_timeout"`
	StopTimeout          time.Duration      `yaml:"stop_timeout"`
	Concurrency          int                `yaml:"concurrency"`
	MaxActivationRetries int                `yaml:"max_activation_retries"`
	DefaultSymbols       []string           `yaml:"default_symbols"`
	Mode                 string             `yaml:"mode"`
	AllowSynthetic       bool               `yaml:"allow_synthetic"`
	BasePrices           map[string]float64 `yaml:"base_prices"`
	ExchangeTimezone     string             `yaml:"exchange_timezone"`
}

// PublisherConfig selects and configures the pub/sub transport.
type PublisherConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
	Kafka   KafkaConfig `yaml:"kafka"`
	NATS    NATSConfig  `yaml:"nats"`
}

// RedisConfig holds Redis publisher settings.
type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	SnapshotTTL   time.Duration `yaml:"snapshot_ttl"`
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// NATSConfig holds NATS publisher settings.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ServerConfig holds the status endpoints.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
	GRPCPort int `yaml:"grpc_port"` // 0 disables the gRPC health service
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
