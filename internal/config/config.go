// Package config loads the server configuration from a YAML file with
// ITEMDECK_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Collection CollectionConfig `mapstructure:"collection"`
	Mechanics  MechanicsConfig  `mapstructure:"mechanics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address       string        `mapstructure:"address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig configures the optional postgres pool. With Enabled
// false the server runs without result storage.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// CollectionConfig selects where the card pool comes from.
type CollectionConfig struct {
	// Source is one of "sample", "file" or "postgres".
	Source string `mapstructure:"source"`
	// Path is the collection file for the file source.
	Path string `mapstructure:"path"`
	// LowerIsBetter lists field keys where smaller values win comparisons.
	LowerIsBetter []string `mapstructure:"lower_is_better"`
}

// MechanicsConfig seeds the mechanic host.
type MechanicsConfig struct {
	// Initial names a mechanic to activate at startup; empty starts idle.
	Initial string `mapstructure:"initial"`
	// Settings holds per-mechanic setting overrides applied before the
	// first activation, keyed by mechanic id.
	Settings map[string]map[string]interface{} `mapstructure:"settings"`
}

// Load reads the configuration file at path, applies defaults and
// ITEMDECK_ environment overrides, and validates the result. An empty
// path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ITEMDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_grace", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)

	v.SetDefault("collection.source", "sample")
	v.SetDefault("collection.path", "")

	v.SetDefault("mechanics.initial", "")
}

func (c *Config) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q is not one of json, console", c.Logging.Format)
	}

	switch c.Collection.Source {
	case "sample":
	case "file":
		if c.Collection.Path == "" {
			return fmt.Errorf("collection.path is required for the file source")
		}
	case "postgres":
		if !c.Database.Enabled {
			return fmt.Errorf("collection.source postgres requires database.enabled")
		}
	default:
		return fmt.Errorf("collection.source %q is not one of sample, file, postgres", c.Collection.Source)
	}

	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when the database is enabled")
	}
	return nil
}
