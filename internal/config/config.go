package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// PushSecret guards POST /internal/push. Empty disables the endpoint.
	PushSecret string `mapstructure:"push_secret" yaml:"push_secret"`

	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
}

// GatewayConfig tunes per-connection behaviour.
type GatewayConfig struct {
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendQueue         int           `mapstructure:"send_queue" yaml:"send_queue"`
	PingInterval      time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	InboundRate       float64       `mapstructure:"inbound_rate" yaml:"inbound_rate"`
	InboundBurst      int           `mapstructure:"inbound_burst" yaml:"inbound_burst"`
	EnforceMembership bool          `mapstructure:"enforce_membership" yaml:"enforce_membership"`
}

// StoreConfig selects the chat/message store adapter.
// Driver is one of "none", "sqlite", "mongo".
type StoreConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// RedisConfig configures the presence mirror. Empty Addr disables it.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr" yaml:"addr"`
	Password    string        `mapstructure:"password" yaml:"password"`
	DB          int           `mapstructure:"db" yaml:"db"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`
}

// NATSConfig configures push ingress over NATS. Empty URL disables it.
type NATSConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	PushSubject string `mapstructure:"push_subject" yaml:"push_subject"`
	Queue       string `mapstructure:"queue" yaml:"queue"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":3000",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		AllowedOrigins:    []string{"*"},
		JWTSecret:         "change-me",
		Gateway: GatewayConfig{
			MaxMessageBytes: 64 << 10,
			SendQueue:       32,
			PingInterval:    25 * time.Second,
			InboundRate:     20,
			InboundBurst:    40,
		},
		Store: StoreConfig{
			Driver:        "none",
			SQLitePath:    "chatrelay.db",
			MongoDatabase: "chat",
		},
		Redis: RedisConfig{
			PresenceTTL: time.Minute,
		},
		NATS: NATSConfig{
			PushSubject: "chatrelay.push",
			Queue:       "chatrelay",
		},
	}
}

// UpdateFrom overwrites non-zero top-level values from other config into receiver.
// Used to apply command-line overrides on top of the loaded file and environment.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
}
