package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every server environment variable
const Prefix = "BINGO"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds the server settings. Database settings come from dbconfig.
type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty       bool          `envconfig:"LOG_PRETTY" default:"true"`
	AdminKey        string        `envconfig:"ADMIN_KEY" required:"true"`
	Store           string        `envconfig:"STORE" default:"memory"`
	NATSURL         string        `envconfig:"NATS_URL"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	FreeCenter      bool          `envconfig:"FREE_CENTER" default:"true"`
	RateLimit       int           `envconfig:"RATE_LIMIT" default:"20"`
	RateWindow      time.Duration `envconfig:"RATE_WINDOW" default:"1s"`
	MaxMessageSize  int64         `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads BINGO_* environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.AdminKey == "" {
		return fmt.Errorf("%s_ADMIN_KEY is required", Prefix)
	}
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store %q, want %s or %s", c.Store, StoreMemory, StorePostgres)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return ":" + c.Port
}
