// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the connector configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assets    AssetsConfig    `yaml:"assets"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Control   ControlConfig   `yaml:"control"`
}

// ServerConfig represents the game server connection configuration.
type ServerConfig struct {
	URL           string `yaml:"url" default:"https://amogus-party.duckdns.org" validate:"required,url"`
	JoinTimeoutMs int    `yaml:"join_timeout_ms" default:"10000" validate:"gte=1000"`
}

// AssetsConfig represents the remote audio asset source.
type AssetsConfig struct {
	BaseURL string `yaml:"base_url" default:"https://raw.githubusercontent.com/siacavazzi/amogus_assets/main/audio" validate:"required,url"`
}

// PlaybackConfig represents playback behavior.
type PlaybackConfig struct {
	Volume              int `yaml:"volume" default:"30" validate:"gte=0,lte=100"`
	CommandTimeoutMs    int `yaml:"command_timeout_ms" default:"5000" validate:"gte=100,lte=30000"`
	LoopDefaultDuration int `yaml:"loop_default_duration_sec" default:"60" validate:"gte=1"`
}

// DiscoveryConfig represents speaker discovery behavior.
type DiscoveryConfig struct {
	TimeoutSec     int  `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
	IncludeBedroom bool `yaml:"include_bedroom"`
}

// ReconnectConfig represents the reconnection backoff behavior.
type ReconnectConfig struct {
	InitialDelayMs int `yaml:"initial_delay_ms" default:"1000" validate:"gte=100"`
	MaxDelayMs     int `yaml:"max_delay_ms" default:"30000" validate:"gte=100"`
}

// ControlConfig represents the device control adapter configuration.
// Settings are decoded by the selected adapter.
type ControlConfig struct {
	Type     string         `yaml:"type" default:"sonos" validate:"required,oneof=sonos"`
	Settings map[string]any `yaml:"settings"`
}

// Load loads configuration from a YAML file. A missing file is not an
// error; defaults alone make a valid configuration. Environment
// variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// Run on defaults.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SONOS_CONNECTOR_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("SONOS_CONNECTOR_ASSET_BASE_URL"); v != "" {
		c.Assets.BaseURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Reconnect.MaxDelayMs < c.Reconnect.InitialDelayMs {
		return errors.Newf("reconnect max_delay_ms (%d) must be at least initial_delay_ms (%d)",
			c.Reconnect.MaxDelayMs, c.Reconnect.InitialDelayMs)
	}
	return nil
}

// CommandTimeout returns the per-device command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Playback.CommandTimeoutMs) * time.Millisecond
}

// JoinTimeout returns how long to wait for the room-join ack.
func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.Server.JoinTimeoutMs) * time.Millisecond
}

// DiscoveryTimeout returns the mDNS browse window.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSec) * time.Second
}

// LoopDefaultDuration returns the auto-stop window for loops whose
// event carries no duration.
func (c *Config) LoopDefaultDuration() time.Duration {
	return time.Duration(c.Playback.LoopDefaultDuration) * time.Second
}

// ReconnectInitialDelay returns the first retry delay.
func (c *Config) ReconnectInitialDelay() time.Duration {
	return time.Duration(c.Reconnect.InitialDelayMs) * time.Millisecond
}

// ReconnectMaxDelay returns the backoff cap.
func (c *Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelayMs) * time.Millisecond
}
