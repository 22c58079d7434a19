// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Shivanand-hulikatti/activity-registration/internal/database"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the full process configuration.
type Config struct {
	Port            string        `env:"PORT"             envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
	StoreDriver     string        `env:"STORE_DRIVER"     envDefault:"memory"`
	SQLitePath      string        `env:"SQLITE_PATH"      envDefault:"activities.db"`
	ResendAPIKey    string        `env:"RESEND_API_KEY"`
	MailFrom        string        `env:"MAIL_FROM"        envDefault:"Members <noreply@example.org>"`
	NotifyQueueSize int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Database database.Config
}

// Load parses the environment into a Config and validates it.
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

// Validate rejects unknown drivers and nonsensical sizes.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.NotifyQueueSize < 1 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive, got %d", c.NotifyQueueSize)
	}
	return nil
}

// EmailEnabled reports whether outbound email notifications are configured.
func (c Config) EmailEnabled() bool {
	return c.ResendAPIKey != ""
}
