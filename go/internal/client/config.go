package client

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the CLI client's YAML configuration
type Config struct {
	ServerURL      string        `yaml:"server_url"`
	GameID         string        `yaml:"game_id"`
	PlayerID       string        `yaml:"player_id"`
	AdminKey       string        `yaml:"admin_key"`
	QueuePath      string        `yaml:"queue_path"`
	LogLevel       string        `yaml:"log_level"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	Backoff        Backoff       `yaml:"backoff"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConnConfig("")
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:8080"
	}
	if c.QueuePath == "" {
		c.QueuePath = "bingo-queue.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = def.Backoff.Base
	}
	if c.Backoff.Cap <= 0 {
		c.Backoff.Cap = def.Backoff.Cap
	}
	if c.Backoff.MaxAttempts <= 0 {
		c.Backoff.MaxAttempts = def.Backoff.MaxAttempts
	}
}

// WebSocketURL builds the /ws/game handshake URL from the server URL
func (c *Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server_url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server_url scheme %q", u.Scheme)
	}
	if c.GameID == "" {
		return "", fmt.Errorf("game_id is required")
	}

	q := url.Values{}
	q.Set("game_id", c.GameID)
	switch {
	case c.AdminKey != "":
		q.Set("admin_key", c.AdminKey)
	case c.PlayerID != "":
		q.Set("player_id", c.PlayerID)
	default:
		return "", fmt.Errorf("player_id or admin_key is required")
	}

	u.Path = "/ws/game"
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Config) ConnConfig() (ConnConfig, error) {
	wsURL, err := c.WebSocketURL()
	if err != nil {
		return ConnConfig{}, err
	}
	return ConnConfig{
		URL:            wsURL,
		ConnectTimeout: c.ConnectTimeout,
		RequestTimeout: c.RequestTimeout,
		Backoff:        c.Backoff,
	}, nil
}
