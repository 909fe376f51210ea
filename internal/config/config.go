// Package config loads server configuration from an optional YAML file
// layered under MEMVAULT_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the server configuration.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `koanf:"addr"`

	// HeartbeatInterval is the fixed interval between session.heartbeat
	// events on an attached push stream.
	HeartbeatInterval time.Duration `koanf:"heartbeat-interval"`

	// SessionTTL is the inactivity threshold after which a session with no
	// attached stream is reaped. It doubles as the re-attach grace window
	// after a stream disconnect.
	SessionTTL time.Duration `koanf:"session-ttl"`

	// ReapInterval is how often the registry sweeps for stale sessions.
	ReapInterval time.Duration `koanf:"reap-interval"`

	// QueueCapacity bounds each session's notification queue. When full,
	// the oldest undelivered notification is dropped.
	QueueCapacity int `koanf:"queue-capacity"`

	LogLevel    string `koanf:"log-level"`
	Development bool   `koanf:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:              ":8080",
		HeartbeatInterval: 30 * time.Second,
		SessionTTL:        5 * time.Minute,
		ReapInterval:      time.Minute,
		QueueCapacity:     100,
		LogLevel:          "info",
	}
}

// Load reads configuration from the given YAML file (may be empty) and then
// applies MEMVAULT_-prefixed environment variables on top. Environment
// variable names map to keys by lowercasing and replacing underscores with
// dashes, e.g. MEMVAULT_HEARTBEAT_INTERVAL -> heartbeat-interval.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider("MEMVAULT_", ".", func(key string) string {
		key = strings.TrimPrefix(key, "MEMVAULT_")
		return strings.ReplaceAll(strings.ToLower(key), "_", "-")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat-interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session-ttl must be positive, got %s", c.SessionTTL)
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("reap-interval must be positive, got %s", c.ReapInterval)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue-capacity must be positive, got %d", c.QueueCapacity)
	}
	return nil
}
