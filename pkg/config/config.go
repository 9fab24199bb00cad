// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package config loads the YAML file describing which backend holds the tree
// and how the tree type is shaped.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/sqlstore"
)

// Supported backend drivers.
const (
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the top-level configuration file.
type Config struct {
	Driver string `yaml:"driver"`
	// Path is the database file for bolt and sqlite. Empty opens a temporary
	// bolt database and an in-memory sqlite database.
	Path string `yaml:"path,omitempty"`
	// DSN is the connection string for postgres.
	DSN     string           `yaml:"dsn,omitempty"`
	Tree    TreeConfig       `yaml:"tree"`
	Columns sqlstore.Columns `yaml:"columns,omitempty"`
	Log     LogConfig        `yaml:"log"`
}

// TreeConfig describes the tree type.
type TreeConfig struct {
	ScopeFields  []string `yaml:"scope_fields,omitempty"`
	OrderField   string   `yaml:"order_field,omitempty"`
	SoftDelete   bool     `yaml:"soft_delete"`
	StrictChecks bool     `yaml:"strict_checks"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns a configuration for a bolt database in the working directory.
func Default() Config {
	return Config{
		Driver: DriverBolt,
		Path:   "nestedset.db",
		Tree: TreeConfig{
			OrderField: "lft",
		},
		Columns: sqlstore.DefaultColumns(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrCreate loads path, writing Default there first when it does not exist.
func LoadOrCreate(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Write(path, Default()); err != nil {
			return Config{}, err
		}
	}
	return Load(path)
}

// Write stores cfg as YAML, creating the parent directory if needed.
func Write(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create the config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal the config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks driver-specific requirements and the log settings.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverBolt, DriverSQLite:
	case DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("driver %q requires a dsn", c.Driver)
		}
	default:
		return fmt.Errorf("unknown driver %q (want %s, %s or %s)", c.Driver, DriverBolt, DriverSQLite, DriverPostgres)
	}

	seen := make(map[string]bool, len(c.Tree.ScopeFields))
	for _, f := range c.Tree.ScopeFields {
		if f == "" {
			return fmt.Errorf("scope field names cannot be empty")
		}
		if seen[f] {
			return fmt.Errorf("duplicate scope field %q", f)
		}
		seen[f] = true
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// SQLDriver returns the database/sql driver name for the sql backends.
func (c Config) SQLDriver() string {
	if c.Driver == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLDataSource returns the connection string for the sql backends.
func (c Config) SQLDataSource() string {
	switch {
	case c.Driver == DriverPostgres:
		return c.DSN
	case c.Path == "":
		return ":memory:"
	default:
		return c.Path
	}
}

// ParseLevel maps a level name onto slog. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
