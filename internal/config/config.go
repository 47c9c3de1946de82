package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jkbms/goclient/internal/protocol"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig holds the previously connected peripheral's identity, if
// any, so the Session can attempt a reconnect-to-previous before
// falling back to an interactive device request.
type DeviceConfig struct {
	PreviousID   string `yaml:"previous_id"`
	PreviousName string `yaml:"previous_name"`
}

// TimeoutsConfig overrides the protocol's own built-in timing. A zero
// value leaves the protocol's default constant in effect.
type TimeoutsConfig struct {
	Inactivity      time.Duration `yaml:"inactivity"`
	ConnectPrevious time.Duration `yaml:"connect_previous"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "jkbms")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. Device is left
// empty: with no previous identity recorded, Connect always falls back
// to an interactive device request.
func Default() *Config {
	return &Config{
		Timeouts: TimeoutsConfig{
			Inactivity:      30 * time.Second,
			ConnectPrevious: 5 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML, creating its parent directory if
// necessary. Used to persist the previous device identity after a
// successful connect so the next run can reconnect without prompting.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if (c.Device.PreviousID == "") != (c.Device.PreviousName == "") {
		return fmt.Errorf("device.previous_id and device.previous_name must both be set or both be empty")
	}

	if c.Timeouts.Inactivity < 0 {
		return fmt.Errorf("timeouts.inactivity must not be negative")
	}

	if c.Timeouts.ConnectPrevious < 0 {
		return fmt.Errorf("timeouts.connect_previous must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Previous returns the recorded previous device identity, or nil if
// none is recorded.
func (c *Config) Previous() *protocol.DeviceIdentity {
	if c.Device.PreviousID == "" {
		return nil
	}
	return &protocol.DeviceIdentity{ID: c.Device.PreviousID, Name: c.Device.PreviousName}
}

// RecordPrevious stamps identity as the previous device for future
// reconnect attempts.
func (c *Config) RecordPrevious(identity protocol.DeviceIdentity) {
	c.Device.PreviousID = identity.ID
	c.Device.PreviousName = identity.Name
}
