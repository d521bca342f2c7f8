// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port            string        `env:"PORT"              envDefault:"8080"`
	StorageDriver   string        `env:"STORAGE_DRIVER"    envDefault:"postgres"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	SQLitePath      string        `env:"SQLITE_PATH"       envDefault:"ticket-inventory.db"`
	RedisURL        string        `env:"REDIS_URL"`
	HoldDuration    time.Duration `env:"HOLD_DURATION"     envDefault:"15m"`
	ReaperInterval  time.Duration `env:"REAPER_INTERVAL"   envDefault:"30s"`
	ReaperBatchSize int           `env:"REAPER_BATCH_SIZE" envDefault:"100"`
	CORSOrigins     []string      `env:"CORS_ORIGINS"      envDefault:"http://localhost:3000" envSeparator:","`
	LogLevel        string        `env:"LOG_LEVEL"         envDefault:"info"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED"   envDefault:"true"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.HoldDuration < 0 {
		return fmt.Errorf("HOLD_DURATION must not be negative")
	}
	if c.ReaperInterval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL must be positive")
	}
	if c.ReaperBatchSize <= 0 {
		return fmt.Errorf("REAPER_BATCH_SIZE must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Level returns the configured log level. Validate has already checked it.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (c Config) Addr() string {
	return ":" + c.Port
}
