// Package config defines service configuration and its layered loader.
//
// Conventions:
// - New() returns defaults; Load(ctx) layers a YAML file and env on top.
// - Validation failures wrap ErrInvalidConfig; source failures wrap ErrLoadConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store backends accepted by StoreBackend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RosterPath is a CSV file path or http(s) URL with id,name,section columns.
	RosterPath string `koanf:"roster_path"`

	// StoreBackend is one of memory, file, redis.
	StoreBackend string `koanf:"store_backend"`

	// StorePath is the JSON document used by the file backend.
	StorePath string `koanf:"store_path"`

	// RedisURL is used by the redis backend, e.g. redis://localhost:6379/0.
	RedisURL string `koanf:"redis_url"`

	// RedisKeyPrefix namespaces keys when the Redis database is shared.
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// Timezone is an IANA name (or "Local") that anchors spotlight weeks.
	Timezone string `koanf:"timezone"`

	// MaxRequestBytes caps JSON request bodies.
	MaxRequestBytes int64 `koanf:"max_request_bytes"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		RosterPath:      "students.csv",
		StoreBackend:    BackendFile,
		StorePath:       "ladder-state.json",
		RedisURL:        "redis://localhost:6379/0",
		Timezone:        "Local",
		MaxRequestBytes: 1 << 16,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks the fields that cannot be defaulted at use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.RosterPath) == "" {
		return fmt.Errorf("%w: roster_path must not be empty", ErrInvalidConfig)
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("%w: store_path is required for the file backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("%w: redis_url is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("%w: max_request_bytes must be positive", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
