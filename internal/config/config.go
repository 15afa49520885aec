// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

// Package config loads galacticfy settings from a YAML file and command-line
// flags. Flags explicitly set on the command line win over the file; the file
// wins over flag defaults.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Default values.
const (
	DefaultLogFormat           = "json"
	DefaultLogLevel            = "info"
	DefaultMetricsAddr         = "127.0.0.1:9110"
	DefaultRole                = "default"
	DefaultAssignmentCacheSize = 10_000
	DefaultConnectRetries      = 8
	DefaultConnectTimeout      = 30 * time.Second
)

// DatabaseURLEnv is consulted when no database_url is configured.
const DatabaseURLEnv = "DATABASE_URL"

// Config holds the process settings shared by every subcommand.
type Config struct {
	DatabaseURL         string        `koanf:"database_url"`
	LogFormat           string        `koanf:"log_format"`
	LogLevel            string        `koanf:"log_level"`
	MetricsAddr         string        `koanf:"metrics_addr"`
	DefaultRole         string        `koanf:"default_role"`
	AssignmentCacheSize int           `koanf:"assignment_cache_size"`
	SeedFile            string        `koanf:"seed_file"`
	ConnectRetries      uint64        `koanf:"connect_retries"`
	ConnectTimeout      time.Duration `koanf:"connect_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogFormat:           DefaultLogFormat,
		LogLevel:            DefaultLogLevel,
		MetricsAddr:         DefaultMetricsAddr,
		DefaultRole:         DefaultRole,
		AssignmentCacheSize: DefaultAssignmentCacheSize,
		ConnectRetries:      DefaultConnectRetries,
		ConnectTimeout:      DefaultConnectTimeout,
	}
}

// keys lists every configuration key a flag may set.
var keys = map[string]bool{
	"database_url":          true,
	"log_format":            true,
	"log_level":             true,
	"metrics_addr":          true,
	"default_role":          true,
	"assignment_cache_size": true,
	"seed_file":             true,
	"connect_retries":       true,
	"connect_timeout":       true,
}

// RegisterFlags adds a flag per key to fs, named with dashes instead of
// underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", "", "PostgreSQL connection URL (default: $"+DatabaseURLEnv+")")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("default-role", d.DefaultRole, "role applied to principals without an assignment")
	fs.Int("assignment-cache-size", d.AssignmentCacheSize, "number of assignments kept in memory")
	fs.String("seed-file", "", "roles file applied by seed")
	fs.Uint64("connect-retries", d.ConnectRetries, "database connection attempts before giving up")
	fs.Duration("connect-timeout", d.ConnectTimeout, "overall deadline for the first database connection")
}

// Load reads path (if non-empty), overlays the flags in fs (if non-nil) and
// fills DatabaseURL from getenv when still blank. The result is validated.
func Load(path string, fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.In("config").Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !keys[key] {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}

	if cfg.DatabaseURL == "" && getenv != nil {
		cfg.DatabaseURL = getenv(DatabaseURLEnv)
	}
	cfg.DefaultRole = strings.ToLower(strings.TrimSpace(cfg.DefaultRole))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func invalid(key, format string, args ...any) error {
	return oops.In("config").Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// Validate checks that the configuration is usable. A missing database URL
// is not an error here; commands that need the database report it.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.DefaultRole == "" {
		return invalid("default_role", "default_role cannot be empty")
	}
	if strings.ContainsAny(c.DefaultRole, " \t\n") {
		return invalid("default_role", "default_role cannot contain whitespace, got %q", c.DefaultRole)
	}
	if c.AssignmentCacheSize <= 0 {
		return invalid("assignment_cache_size", "assignment_cache_size must be positive, got %d", c.AssignmentCacheSize)
	}
	if c.ConnectRetries == 0 {
		return invalid("connect_retries", "connect_retries must be at least 1")
	}
	if c.ConnectTimeout < 0 {
		return invalid("connect_timeout", "connect_timeout cannot be negative, got %s", c.ConnectTimeout)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, invalid("log_level", "log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return level, nil
}
