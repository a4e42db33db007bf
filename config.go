package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"rakuda/server/storage"
)

// Config represents the server configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Reports  ReportsConfig  `toml:"reports"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port        int    `toml:"port"`
	BindAddress string `toml:"bind_address"` // Address to bind to (default: 0.0.0.0 for all interfaces)
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	Driver              string `toml:"driver"` // "sqlite" or "postgres"
	Path                string `toml:"path"`   // SQLite file path; empty = platform default
	DSN                 string `toml:"dsn"`    // Postgres connection string
	MaxOpenConns        int    `toml:"max_open_conns"`
	MaxIdleConns        int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSecs int    `toml:"conn_max_lifetime_secs"`
}

// ReportsConfig tunes the report pipeline
type ReportsConfig struct {
	OutputDir                string `toml:"output_dir"` // Where generated files land; empty = <db dir>/reports
	RetentionDays            int    `toml:"retention_days"`
	SchedulerIntervalSeconds int    `toml:"scheduler_interval_seconds"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8085,
			BindAddress: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "", // Empty = platform default
		},
		Reports: ReportsConfig{
			OutputDir:                "",
			RetentionDays:            30,
			SchedulerIntervalSeconds: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a TOML file with environment
// variable overrides. A missing file is not an error; defaults apply.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	if val := os.Getenv("RAKUDA_PORT"); val != "" {
		var port int
		if _, err := fmt.Sscanf(val, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if val := os.Getenv("RAKUDA_BIND_ADDRESS"); val != "" {
		cfg.Server.BindAddress = val
	}
	if val := os.Getenv("RAKUDA_DB_DRIVER"); val != "" {
		cfg.Database.Driver = strings.ToLower(val)
	}
	if val := os.Getenv("RAKUDA_DB_PATH"); val != "" {
		cfg.Database.Path = val
	}
	if val := os.Getenv("RAKUDA_DB_DSN"); val != "" {
		cfg.Database.DSN = val
	}
	if val := os.Getenv("RAKUDA_REPORTS_DIR"); val != "" {
		cfg.Reports.OutputDir = val
	}
	if val := os.Getenv("RAKUDA_RETENTION_DAYS"); val != "" {
		var days int
		if _, err := fmt.Sscanf(val, "%d", &days); err == nil {
			cfg.Reports.RetentionDays = days
		}
	}
	if val := os.Getenv("RAKUDA_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}

	return cfg, nil
}

// ReportsOutputDir resolves the report output directory, defaulting to
// a reports/ directory next to the database.
func (c *Config) ReportsOutputDir() string {
	if c.Reports.OutputDir != "" {
		return c.Reports.OutputDir
	}
	dbPath := c.Database.Path
	if dbPath == "" {
		dbPath = storage.GetDefaultDBPath()
	}
	return filepath.Join(filepath.Dir(dbPath), "reports")
}

// StorageConfig converts the database section to the storage factory config.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:              c.Database.Driver,
		Path:                c.Database.Path,
		DSN:                 c.Database.DSN,
		MaxOpenConns:        c.Database.MaxOpenConns,
		MaxIdleConns:        c.Database.MaxIdleConns,
		ConnMaxLifetimeSecs: c.Database.ConnMaxLifetimeSecs,
	}
}

// WriteDefaultConfig writes a default configuration file
func WriteDefaultConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(DefaultConfig())
}
