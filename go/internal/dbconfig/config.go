package dbconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds Postgres connection and pool settings, read from DB_* variables
type Config struct {
	Host           string        `envconfig:"HOST" default:"localhost"`
	Port           int           `envconfig:"PORT" default:"5432"`
	User           string        `envconfig:"USER" default:"postgres"`
	Password       string        `envconfig:"PASSWORD" default:"postgres"`
	Database       string        `envconfig:"NAME" default:"bingo"`
	SSLMode        string        `envconfig:"SSLMODE" default:"disable"`
	MaxConns       int32         `envconfig:"MAX_CONNS" default:"10"`
	MinConns       int32         `envconfig:"MIN_CONNS" default:"1"`
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`
}

func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("DB", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read database config: %w", err)
	}
	if cfg.MinConns > cfg.MaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.MinConns, cfg.MaxConns)
	}
	return cfg, nil
}

// DSN returns the plain connection URL understood by both pgx and lib/pq
func (c Config) DSN() string {
	return c.url(nil).String()
}

// PoolDSN adds the pgxpool tuning parameters to DSN
func (c Config) PoolDSN() string {
	q := url.Values{}
	q.Set("pool_max_conns", strconv.Itoa(int(c.MaxConns)))
	q.Set("pool_min_conns", strconv.Itoa(int(c.MinConns)))
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	return c.url(q).String()
}

func (c Config) url(extra url.Values) *url.URL {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	for k, v := range extra {
		q[k] = v
	}
	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
}
