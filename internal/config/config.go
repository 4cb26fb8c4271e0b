// Package config loads the voicemask daemon configuration from TOML with
// environment overrides for device selection.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables overriding the configured device ids.
const (
	EnvInputDevice  = "VOICEMASK_INPUT_DEVICE"
	EnvOutputDevice = "VOICEMASK_OUTPUT_DEVICE"
)

// AudioConfig fixes the stream format and device selection.
type AudioConfig struct {
	SampleRate   float64 `toml:"sample_rate"`
	BlockSize    int     `toml:"block_size"`
	RingCapacity int     `toml:"ring_capacity"`
	InputDevice  string  `toml:"input_device"`
	OutputDevice string  `toml:"output_device"`
}

// ProfilesConfig selects the startup profile and optional user profile file.
type ProfilesConfig struct {
	Default          string `toml:"default"`
	UserProfilesPath string `toml:"user_profiles_path"`
}

// WatermarkConfig pins the watermark session key. Zero means a random key
// per session.
type WatermarkConfig struct {
	Key uint64 `toml:"key"`
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// MetricsConfig names the Prometheus namespace.
type MetricsConfig struct {
	Namespace string `toml:"namespace"`
}

// Config is the root configuration.
type Config struct {
	Audio     AudioConfig     `toml:"audio"`
	Profiles  ProfilesConfig  `toml:"profiles"`
	Watermark WatermarkConfig `toml:"watermark"`
	Logging   LoggingConfig   `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// Default returns the stock configuration: 44.1 kHz, 1024-sample blocks,
// default devices.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:   44100,
			BlockSize:    1024,
			RingCapacity: 8,
		},
		Profiles: ProfilesConfig{Default: "original"},
		Logging:  LoggingConfig{Level: "info"},
		Metrics:  MetricsConfig{Namespace: "voicemask"},
	}
}

// Load reads a TOML file over the defaults and applies environment
// overrides. An empty path returns defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv(EnvInputDevice); v != "" {
		cfg.Audio.InputDevice = v
	}
	if v := os.Getenv(EnvOutputDevice); v != "" {
		cfg.Audio.OutputDevice = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: sample rate must be positive: %f", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("config: block size must be positive: %d", c.Audio.BlockSize)
	}
	if c.Audio.RingCapacity <= 0 {
		return fmt.Errorf("config: ring capacity must be positive: %d", c.Audio.RingCapacity)
	}
	if c.Profiles.Default == "" {
		return fmt.Errorf("config: default profile id must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	if c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics namespace must not be empty")
	}
	return nil
}
