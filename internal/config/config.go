// Package config manages commwatch daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete commwatch configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	SMTP    SMTPConfig    `koanf:"smtp"`
	Viz     VizConfig     `koanf:"viz"`
	Sink    SinkConfig    `koanf:"sink"`
	Subs    SubsConfig    `koanf:"subs"`
	Monitor MonitorConfig `koanf:"monitor"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint
	// (e.g., ":9100"). Empty disables the endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// SMTPConfig points the email sink at the outbound forwarder.
type SMTPConfig struct {
	// Host is the forwarder host.
	Host string `koanf:"host"`
	// Port is 25 for plain local submission or 587 for STARTTLS.
	Port int `koanf:"port"`
	// User and Pass authenticate on port 587. Empty skips auth.
	User string `koanf:"user"`
	Pass string `koanf:"pass"`
	// From is the envelope and header sender.
	From string `koanf:"from"`
}

// VizConfig points at the mission visualization site.
type VizConfig struct {
	// BaseURL is the site root used for push notification deep links.
	// Empty disables the links.
	BaseURL string `koanf:"base_url"`
	// NotifyURL receives the best-effort state change POSTs. Empty
	// disables the sidechannel.
	NotifyURL string `koanf:"notify_url"`
}

// SinkConfig holds the shared sink adapter settings.
type SinkConfig struct {
	// Timeout bounds one send attempt.
	Timeout time.Duration `koanf:"timeout"`
	// NtfyServer overrides the public push instance.
	NtfyServer string `koanf:"ntfy_server"`
	// RockblockURL overrides the public satellite-text gateway.
	RockblockURL string `koanf:"rockblock_url"`
}

// SubsConfig names the subscription layers. The mission layer path is
// derived from the mission directory at runtime; Base and Group are
// installation-wide.
type SubsConfig struct {
	// Base is the basestation-wide layer path. Empty skips the layer.
	Base string `koanf:"base"`
	// Group is the glider-group layer path. Empty skips the layer.
	Group string `koanf:"group"`
	// File is the per-mission layer's file name inside the mission
	// directory.
	File string `koanf:"file"`
	// AllowOverride permits later layers to replace scalars set by
	// earlier ones.
	AllowOverride bool `koanf:"allow_override"`
}

// MonitorConfig holds the run loop settings.
type MonitorConfig struct {
	// Tick is the comm log poll interval.
	Tick time.Duration `koanf:"tick"`
}

// LayerPaths returns the subscription layers for a mission directory, in
// merge order.
func (c *Config) LayerPaths(missionFile string) []string {
	return []string{c.Subs.Base, c.Subs.Group, missionFile}
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults: plain
// local SMTP submission, metrics disabled, one-second polling.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: "",
			Path: "/metrics",
		},
		SMTP: SMTPConfig{
			Host: "localhost",
			Port: 25,
			From: "commwatch@localhost",
		},
		Sink: SinkConfig{
			Timeout: 10 * time.Second,
		},
		Subs: SubsConfig{
			File:          "subs.yml",
			AllowOverride: true,
		},
		Monitor: MonitorConfig{
			Tick: time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for commwatch configuration.
// Variables are named COMMWATCH_<section>_<key>, e.g., COMMWATCH_LOG_LEVEL.
const envPrefix = "COMMWATCH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (COMMWATCH_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips the
// file and uses defaults plus environment only.
//
// Environment variable mapping:
//
//	COMMWATCH_LOG_LEVEL    -> log.level
//	COMMWATCH_LOG_FORMAT   -> log.format
//	COMMWATCH_METRICS_ADDR -> metrics.addr
//	COMMWATCH_SMTP_HOST    -> smtp.host
//	COMMWATCH_SMTP_PORT    -> smtp.port
//	COMMWATCH_SUBS_BASE    -> subs.base
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	// Load environment variable overrides on top of YAML.
	// COMMWATCH_LOG_LEVEL -> log.level (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms COMMWATCH_LOG_LEVEL -> log.level.
// Strips the COMMWATCH_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"log.level":           defaults.Log.Level,
		"log.format":          defaults.Log.Format,
		"metrics.addr":        defaults.Metrics.Addr,
		"metrics.path":        defaults.Metrics.Path,
		"smtp.host":           defaults.SMTP.Host,
		"smtp.port":           defaults.SMTP.Port,
		"smtp.from":           defaults.SMTP.From,
		"sink.timeout":        defaults.Sink.Timeout.String(),
		"subs.file":           defaults.Subs.File,
		"subs.allow_override": defaults.Subs.AllowOverride,
		"monitor.tick":        defaults.Monitor.Tick.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidLogFormat indicates an unrecognized log format.
	ErrInvalidLogFormat = errors.New(`log.format must be "json" or "text"`)

	// ErrEmptyMetricsPath indicates the metrics endpoint is enabled with no path.
	ErrEmptyMetricsPath = errors.New("metrics.path must not be empty when metrics.addr is set")

	// ErrInvalidSMTPPort indicates the SMTP port is out of range.
	ErrInvalidSMTPPort = errors.New("smtp.port must be between 1 and 65535")

	// ErrInvalidSinkTimeout indicates the sink timeout is out of range.
	ErrInvalidSinkTimeout = errors.New("sink.timeout must be positive and at most 60s")

	// ErrInvalidTick indicates the poll interval is not positive.
	ErrInvalidTick = errors.New("monitor.tick must be positive")

	// ErrEmptySubsFile indicates the mission layer file name is empty.
	ErrEmptySubsFile = errors.New("subs.file must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return ErrInvalidLogFormat
	}

	if cfg.Metrics.Addr != "" && cfg.Metrics.Path == "" {
		return ErrEmptyMetricsPath
	}

	if cfg.SMTP.Port < 1 || cfg.SMTP.Port > 65535 {
		return ErrInvalidSMTPPort
	}

	if cfg.Sink.Timeout <= 0 || cfg.Sink.Timeout > 60*time.Second {
		return ErrInvalidSinkTimeout
	}

	if cfg.Monitor.Tick <= 0 {
		return ErrInvalidTick
	}

	if cfg.Subs.File == "" {
		return ErrEmptySubsFile
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
