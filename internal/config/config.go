// Package config defines the service configuration and how it is loaded.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/db"
)

type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// LogLevel is one of debug, info, warn, error. LogFormat is json or text.
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	DatabaseDriver string `koanf:"database_driver"`
	DatabaseDSN    string `koanf:"database_dsn"`

	// CORSAllowedOrigins lists the admin UI origins. Empty allows any origin.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RandomSeeding shuffles each category before placement instead of using registration order.
	RandomSeeding bool `koanf:"random_seeding"`

	// Standings export to S3-compatible storage. Disabled while ExportBucket is empty.
	ExportBucket          string `koanf:"export_bucket"`
	ExportEndpoint        string `koanf:"export_endpoint"`
	ExportRegion          string `koanf:"export_region"`
	ExportAccessKeyID     string `koanf:"export_access_key_id"`
	ExportSecretAccessKey string `koanf:"export_secret_access_key"`
	ExportPrefix          string `koanf:"export_prefix"`
	ExportPublicURL       string `koanf:"export_public_url"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

func New() *Config {
	return &Config{
		Addr:            ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		DatabaseDriver:  db.DriverSQLite,
		DatabaseDSN:     "dojo_brackets.db?_journal_mode=WAL&_foreign_keys=on",
		ExportRegion:    "auto",
		ExportPrefix:    "standings/",
		ShutdownTimeout: 10 * time.Second,
	}
}

func (c *Config) ExportEnabled() bool {
	return c.ExportBucket != ""
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("%w: log_format must be json or text", ErrInvalidConfig)
	}
	if c.DatabaseDriver != db.DriverSQLite && c.DatabaseDriver != db.DriverPostgres {
		return fmt.Errorf("%w: unsupported database_driver %q", ErrInvalidConfig, c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("%w: database_dsn must not be empty", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
