// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the top-level static configuration.
// Maps to the `netscope:` root key in YAML.
type Config struct {
	Control  ControlConfig  `mapstructure:"control"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// CaptureConfig contains capture handle settings shared by all sessions.
type CaptureConfig struct {
	Handle      string `mapstructure:"handle"`   // pcap | afpacket
	SnapLen     int    `mapstructure:"snap_len"` // Bytes per frame
	Promiscuous bool   `mapstructure:"promiscuous"`
	ReadTimeout string `mapstructure:"read_timeout"` // e.g. "500ms"
}

// ReadTimeoutDuration returns the parsed read timeout.
// Call ValidateAndApplyDefaults first; the value is validated there.
func (c CaptureConfig) ReadTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// DeliveryConfig contains record delivery settings.
type DeliveryConfig struct {
	Capacity int `mapstructure:"capacity"` // Bounded buffer size, drop-oldest on overflow
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// configRoot is the top-level wrapper matching the YAML structure `netscope: ...`.
type configRoot struct {
	Netscope Config `mapstructure:"netscope"`
}

// Load loads configuration from file.
// The YAML file uses `netscope:` as root key; env vars use the NETSCOPE_ prefix
// (e.g., NETSCOPE_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variable overrides. No explicit env prefix: the `netscope.`
	// key prefix maps to `NETSCOPE_` via the key replacer
	// (e.g., key "netscope.log.level" → env "NETSCOPE_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Netscope

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration used when no config file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		// Defaults always unmarshal; a failure here is a programming error.
		panic(fmt.Sprintf("default config unmarshal: %v", err))
	}
	cfg := root.Netscope
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return &cfg
}

// setDefaults sets default values for configuration.
// All keys use the "netscope." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("netscope.control.socket", "/var/run/netscope.sock")
	v.SetDefault("netscope.control.pid_file", "/var/run/netscope.pid")

	// Capture defaults
	v.SetDefault("netscope.capture.handle", "pcap")
	v.SetDefault("netscope.capture.snap_len", 65535)
	v.SetDefault("netscope.capture.promiscuous", true)
	v.SetDefault("netscope.capture.read_timeout", "500ms")

	// Delivery defaults
	v.SetDefault("netscope.delivery.capacity", 1000)

	// Metrics defaults
	v.SetDefault("netscope.metrics.enabled", true)
	v.SetDefault("netscope.metrics.listen", ":9091")
	v.SetDefault("netscope.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("netscope.log.level", "info")
	v.SetDefault("netscope.log.format", "json")
	v.SetDefault("netscope.log.outputs.file.enabled", false)
	v.SetDefault("netscope.log.outputs.file.path", "/var/log/netscope/netscope.log")
	v.SetDefault("netscope.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("netscope.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("netscope.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("netscope.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Capture validation ──
	if cfg.Capture.Handle != "pcap" && cfg.Capture.Handle != "afpacket" {
		return fmt.Errorf("invalid capture handle: %s (must be pcap/afpacket)", cfg.Capture.Handle)
	}
	if cfg.Capture.SnapLen <= 0 {
		cfg.Capture.SnapLen = 65535
	}
	if cfg.Capture.ReadTimeout == "" {
		cfg.Capture.ReadTimeout = "500ms"
	}
	if d, err := time.ParseDuration(cfg.Capture.ReadTimeout); err != nil {
		return fmt.Errorf("invalid capture read_timeout: %s: %w", cfg.Capture.ReadTimeout, err)
	} else if d <= 0 {
		return fmt.Errorf("capture read_timeout must be positive, got %s", cfg.Capture.ReadTimeout)
	}

	// ── Delivery validation ──
	if cfg.Delivery.Capacity <= 0 {
		cfg.Delivery.Capacity = 1000
	}

	// ── Control validation ──
	if cfg.Control.Socket == "" {
		return fmt.Errorf("control.socket must not be empty")
	}

	return nil
}
