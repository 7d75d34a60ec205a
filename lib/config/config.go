// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Deltaforge daemon.
type Config struct {
	// Paths configures file and socket locations.
	Paths PathsConfig `yaml:"paths"`

	// Store configures the snapshot store.
	Store StoreConfig `yaml:"store"`

	// Cache configures the in-memory delta cache.
	Cache CacheConfig `yaml:"cache"`

	// Log configures daemon logging.
	Log LogConfig `yaml:"log"`
}

// PathsConfig configures file and socket locations.
type PathsConfig struct {
	// Root is the base directory for Deltaforge data.
	Root string `yaml:"root"`

	// Database is the SQLite snapshot database path.
	// Default: ${DELTAFORGE_ROOT}/snapshots.db
	Database string `yaml:"database"`

	// Socket is the Unix socket the daemon listens on.
	// Default: ${DELTAFORGE_ROOT}/deltaforged.sock
	Socket string `yaml:"socket"`
}

// StoreConfig configures the snapshot store.
type StoreConfig struct {
	// PoolSize is the number of SQLite connections.
	// Default: 4
	PoolSize int `yaml:"pool_size"`

	// MaxRetainedSnapshots bounds how many snapshot versions are
	// kept. Zero means unbounded. The latest snapshot is never
	// pruned regardless of this bound.
	MaxRetainedSnapshots int `yaml:"max_retained_snapshots"`

	// PruneInterval is how often retention pruning runs, as a Go
	// duration string. Default: 1m. Ignored when
	// MaxRetainedSnapshots is zero.
	PruneInterval string `yaml:"prune_interval"`
}

// CacheConfig configures the in-memory delta cache.
type CacheConfig struct {
	// MaxEntries bounds the number of cached deltas. Zero means
	// unbounded. Default: 64.
	MaxEntries int `yaml:"max_entries"`

	// MaxBytes bounds the total cached patch bytes. Zero means
	// unbounded. Default: 256 MiB.
	MaxBytes int64 `yaml:"max_bytes"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	// Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file; they are not a substitute
// for it — the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "deltaforge")

	return &Config{
		Paths: PathsConfig{
			Root:     defaultRoot,
			Database: filepath.Join(defaultRoot, "snapshots.db"),
			Socket:   filepath.Join(defaultRoot, "deltaforged.sock"),
		},
		Store: StoreConfig{
			PoolSize:             4,
			MaxRetainedSnapshots: 0,
			PruneInterval:        "1m",
		},
		Cache: CacheConfig{
			MaxEntries: 64,
			MaxBytes:   256 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the DELTAFORGE_CONFIG environment
// variable. There are no fallbacks — if DELTAFORGE_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("DELTAFORGE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DELTAFORGE_CONFIG environment variable not set; " +
			"set it to the path of your deltaforge.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DELTAFORGE_ROOT": c.Paths.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DELTAFORGE_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ParsePruneInterval parses the configured prune interval.
func (c *StoreConfig) ParsePruneInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.PruneInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid store.prune_interval %q: %w", c.PruneInterval, err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("store.prune_interval must be positive, got %s", interval)
	}
	return interval, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.Database == "" {
		errs = append(errs, fmt.Errorf("paths.database is required"))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, fmt.Errorf("paths.socket is required"))
	}

	if c.Store.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("store.pool_size must be positive, got %d", c.Store.PoolSize))
	}
	if c.Store.MaxRetainedSnapshots < 0 {
		errs = append(errs, fmt.Errorf("store.max_retained_snapshots must be >= 0, got %d", c.Store.MaxRetainedSnapshots))
	}
	if c.Store.MaxRetainedSnapshots > 0 {
		if _, err := c.Store.ParsePruneInterval(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must be >= 0, got %d", c.Cache.MaxEntries))
	}
	if c.Cache.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("cache.max_bytes must be >= 0, got %d", c.Cache.MaxBytes))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level: %s", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format: %s", c.Log.Format))
	}

	return errors.Join(errs...)
}
