package config

import (
	"fmt"
	"time"
)

// State backends.
const (
	StateMemory = "memory"
	StateRedis  = "redis"
)

// Fan-out buses.
const (
	BusLocal = "local"
	BusRedis = "redis"
	BusNATS  = "nats"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// RateLimit is the number of inbound messages allowed per connection per minute (0 disables).
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JoinTimeout         time.Duration `mapstructure:"join_timeout" yaml:"join_timeout"`
	CollaboratorTimeout time.Duration `mapstructure:"collaborator_timeout" yaml:"collaborator_timeout"`
	MaxViolations       int           `mapstructure:"max_violations" yaml:"max_violations"`

	StateBackend  string `mapstructure:"state_backend" yaml:"state_backend"`
	Bus           string `mapstructure:"bus" yaml:"bus"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`

	NotifyWebhookURL string `mapstructure:"notify_webhook_url" yaml:"notify_webhook_url"`

	ModerationBlocklist []string `mapstructure:"moderation_blocklist" yaml:"moderation_blocklist"`
	ModerationMaxLength int      `mapstructure:"moderation_max_length" yaml:"moderation_max_length"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                ":8080",
		ReadHeaderTimeout:   5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		LogLevel:            "info",
		LogFormat:           "console",
		MaxMessageBytes:     64 << 10,
		RateLimit:           120,
		JWTSecret:           "change-me",
		JWTIssuer:           "storyhub",
		DatabasePath:        "storyhub.db",
		JoinTimeout:         5 * time.Second,
		CollaboratorTimeout: 5 * time.Second,
		MaxViolations:       5,
		StateBackend:        StateMemory,
		Bus:                 BusLocal,
		RedisAddr:           "localhost:6379",
		RedisPrefix:         "storyhub:",
		NATSURL:             "nats://localhost:4222",
		ModerationMaxLength: 2000,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
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
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.RateLimit != 0 {
		c.RateLimit = other.RateLimit
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JoinTimeout != 0 {
		c.JoinTimeout = other.JoinTimeout
	}
	if other.CollaboratorTimeout != 0 {
		c.CollaboratorTimeout = other.CollaboratorTimeout
	}
	if other.MaxViolations != 0 {
		c.MaxViolations = other.MaxViolations
	}
	if other.StateBackend != "" {
		c.StateBackend = other.StateBackend
	}
	if other.Bus != "" {
		c.Bus = other.Bus
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	if other.RedisPassword != "" {
		c.RedisPassword = other.RedisPassword
	}
	if other.RedisDB != 0 {
		c.RedisDB = other.RedisDB
	}
	if other.RedisPrefix != "" {
		c.RedisPrefix = other.RedisPrefix
	}
	if other.NATSURL != "" {
		c.NATSURL = other.NATSURL
	}
	if other.NotifyWebhookURL != "" {
		c.NotifyWebhookURL = other.NotifyWebhookURL
	}
	if len(other.ModerationBlocklist) > 0 {
		c.ModerationBlocklist = other.ModerationBlocklist
	}
	if other.ModerationMaxLength != 0 {
		c.ModerationMaxLength = other.ModerationMaxLength
	}
}

// Validate rejects unknown backend names.
func (c Config) Validate() error {
	switch c.StateBackend {
	case StateMemory, StateRedis:
	default:
		return fmt.Errorf("unknown state_backend %q", c.StateBackend)
	}
	switch c.Bus {
	case BusLocal, BusRedis, BusNATS:
	default:
		return fmt.Errorf("unknown bus %q", c.Bus)
	}
	if c.Bus == BusLocal && c.StateBackend == StateRedis {
		return fmt.Errorf("state_backend %q needs a shared bus, got %q", c.StateBackend, c.Bus)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	return nil
}
