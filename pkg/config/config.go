// Package config loads and validates the dittometa service configuration
// from file, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete dittometa configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOMETA_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Store
// section contains one type-specific subsection per implementation and only
// the subsection matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains service-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Store specifies the metadata store type and type-specific settings
	Store StoreConfig `mapstructure:"store"`

	// Engine contains file-metadata engine tunables
	Engine EngineConfig `mapstructure:"engine"`

	// Metrics controls the Prometheus metrics endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains service-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// StoreConfig specifies metadata store configuration.
//
// The Type field determines which store implementation is used. Only the
// corresponding type-specific subsection is decoded.
type StoreConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// EngineConfig contains file-metadata engine tunables.
type EngineConfig struct {
	// NodeID seeds the ID generator; must be unique per instance
	NodeID int64 `mapstructure:"node_id" validate:"gte=0,lte=1023"`

	// MinReplication is the replica threshold a committed trailing block
	// must exceed for a file to be finalized
	MinReplication uint16 `mapstructure:"min_replication" validate:"lte=2047"`

	// NumCommittedAllowed is how many trailing blocks may still be
	// committed (not complete) when a file is finalized
	NumCommittedAllowed int `mapstructure:"num_committed_allowed" validate:"gte=0"`

	// DefaultReplication is the replication factor applied when file
	// creation does not specify one
	DefaultReplication uint16 `mapstructure:"default_replication" validate:"lte=2047"`

	// DefaultBlockSize is the preferred block size applied when file
	// creation does not specify one
	DefaultBlockSize uint64 `mapstructure:"default_block_size"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on
	Enabled bool `mapstructure:"enabled"`

	// Listen is the address the metrics endpoint binds to
	Listen string `mapstructure:"listen"`
}

// Load loads configuration from file, environment, and defaults.
//
// Pass an empty configPath to use the default location
// ($XDG_CONFIG_HOME/dittometa/config.yaml).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOMETA_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is only an error when a path was given explicitly.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configPath == "" {
			return nil
		}
		if configPath != "" && os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", configPath)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the default configuration directory.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dittometa")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittometa")
}

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}

	if cfg.Engine.MinReplication == 0 {
		cfg.Engine.MinReplication = 1
	}
	if cfg.Engine.NumCommittedAllowed == 0 {
		cfg.Engine.NumCommittedAllowed = 1
	}
	if cfg.Engine.DefaultReplication == 0 {
		cfg.Engine.DefaultReplication = 3
	}
	if cfg.Engine.DefaultBlockSize == 0 {
		cfg.Engine.DefaultBlockSize = 128 << 20
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
}
