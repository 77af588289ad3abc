// Package config loads node configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends a node can keep its view in.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all node configuration.
type Config struct {
	ChainID     string `env:"TRUEMARKET_CHAIN_ID,required"`
	MarketChain string `env:"TRUEMARKET_MARKET_CHAIN,required"`
	Application string `env:"TRUEMARKET_APPLICATION_ID" envDefault:"truemarket"`

	// View store
	StoreBackend string `env:"TRUEMARKET_STORE_BACKEND" envDefault:"memory"`
	SQLiteDSN    string `env:"TRUEMARKET_SQLITE_DSN" envDefault:"file:truemarket.db?_pragma=journal_mode(WAL)"`
	PostgresDSN  string `env:"TRUEMARKET_POSTGRES_DSN"`
	RedisAddr    string `env:"TRUEMARKET_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB      int    `env:"TRUEMARKET_REDIS_DB" envDefault:"0"`

	// NATS
	NATSURL        string        `env:"TRUEMARKET_NATS_URL" envDefault:"nats://localhost:4222"`
	StreamMaxAge   time.Duration `env:"TRUEMARKET_STREAM_MAX_AGE" envDefault:"168h"`
	InboxChanSize  int           `env:"TRUEMARKET_INBOX_CHAN_SIZE" envDefault:"256"`
	ShutdownPeriod time.Duration `env:"TRUEMARKET_SHUTDOWN_PERIOD" envDefault:"5s"`

	// Block log worker
	BlockChanSize     int           `env:"TRUEMARKET_BLOCK_CHAN_SIZE" envDefault:"1024"`
	BlockBatchSize    int           `env:"TRUEMARKET_BLOCK_BATCH_SIZE" envDefault:"50"`
	BlockFlushTimeout time.Duration `env:"TRUEMARKET_BLOCK_FLUSH_TIMEOUT" envDefault:"10ms"`

	// gRPC/HTTP/Metrics
	GRPCAddr    string `env:"TRUEMARKET_GRPC_ADDR" envDefault:":9090"`
	HTTPAddr    string `env:"TRUEMARKET_HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"TRUEMARKET_METRICS_ADDR" envDefault:":9091"`

	LogLevel  string `env:"TRUEMARKET_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TRUEMARKET_LOG_FORMAT" envDefault:"json"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv applies a .env file on top of the environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads an optional .env file, parses the environment and validates.
func Load(dotenv string) (Config, error) {
	var cfg Config
	if err := LoadDotEnv(dotenv); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Chain ids end up in NATS subjects and consumer names.
var subjectSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks the configuration for invalid combinations.
func (c Config) Validate() error {
	var errs []error

	for name, id := range map[string]string{
		"TRUEMARKET_CHAIN_ID":     c.ChainID,
		"TRUEMARKET_MARKET_CHAIN": c.MarketChain,
	} {
		if !subjectSafe.MatchString(id) {
			errs = append(errs, fmt.Errorf("%s %q must match %s", name, id, subjectSafe))
		}
	}
	if strings.TrimSpace(c.Application) == "" {
		errs = append(errs, errors.New("TRUEMARKET_APPLICATION_ID is required"))
	}

	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("TRUEMARKET_LOG_FORMAT %q must be json or console", c.LogFormat))
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLiteDSN == "" {
			errs = append(errs, errors.New("TRUEMARKET_SQLITE_DSN is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("TRUEMARKET_POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("TRUEMARKET_REDIS_ADDR is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TRUEMARKET_STORE_BACKEND %q", c.StoreBackend))
	}

	if c.BlockBatchSize <= 0 {
		errs = append(errs, errors.New("TRUEMARKET_BLOCK_BATCH_SIZE must be positive"))
	}
	if c.BlockChanSize < 0 || c.InboxChanSize < 0 {
		errs = append(errs, errors.New("channel sizes must not be negative"))
	}

	return errors.Join(errs...)
}

// SQLBacked reports whether the view store lives in a SQL database, which is
// also where the block log goes.
func (c Config) SQLBacked() bool {
	return c.StoreBackend == BackendSQLite || c.StoreBackend == BackendPostgres
}
