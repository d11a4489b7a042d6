package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seaglider-ops/commwatch/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Metrics.Addr != "" {
		t.Errorf("Metrics.Addr = %q, want empty (disabled)", cfg.Metrics.Addr)
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.SMTP.Host != "localhost" {
		t.Errorf("SMTP.Host = %q, want %q", cfg.SMTP.Host, "localhost")
	}

	if cfg.SMTP.Port != 25 {
		t.Errorf("SMTP.Port = %d, want %d", cfg.SMTP.Port, 25)
	}

	if cfg.Sink.Timeout != 10*time.Second {
		t.Errorf("Sink.Timeout = %v, want %v", cfg.Sink.Timeout, 10*time.Second)
	}

	if cfg.Subs.File != "subs.yml" {
		t.Errorf("Subs.File = %q, want %q", cfg.Subs.File, "subs.yml")
	}

	if !cfg.Subs.AllowOverride {
		t.Error("Subs.AllowOverride = false, want true")
	}

	if cfg.Monitor.Tick != 1*time.Second {
		t.Errorf("Monitor.Tick = %v, want %v", cfg.Monitor.Tick, 1*time.Second)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
log:
  level: "debug"
  format: "text"
metrics:
  addr: ":9100"
  path: "/custom-metrics"
smtp:
  host: "mail.example.org"
  port: 587
  user: "glider"
  pass: "secret"
  from: "sg@example.org"
viz:
  base_url: "https://viz.example.org"
  notify_url: "https://viz.example.org/notify"
sink:
  timeout: "5s"
subs:
  base: "/usr/local/basestation/subs.yml"
  group: "/home/gliders/subs.yml"
  allow_override: false
monitor:
  tick: "250ms"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.SMTP.Host != "mail.example.org" {
		t.Errorf("SMTP.Host = %q, want %q", cfg.SMTP.Host, "mail.example.org")
	}

	if cfg.SMTP.Port != 587 {
		t.Errorf("SMTP.Port = %d, want %d", cfg.SMTP.Port, 587)
	}

	if cfg.Viz.BaseURL != "https://viz.example.org" {
		t.Errorf("Viz.BaseURL = %q, want %q", cfg.Viz.BaseURL, "https://viz.example.org")
	}

	if cfg.Sink.Timeout != 5*time.Second {
		t.Errorf("Sink.Timeout = %v, want %v", cfg.Sink.Timeout, 5*time.Second)
	}

	if cfg.Subs.Base != "/usr/local/basestation/subs.yml" {
		t.Errorf("Subs.Base = %q, want %q", cfg.Subs.Base, "/usr/local/basestation/subs.yml")
	}

	if cfg.Subs.AllowOverride {
		t.Error("Subs.AllowOverride = true, want false")
	}

	if cfg.Monitor.Tick != 250*time.Millisecond {
		t.Errorf("Monitor.Tick = %v, want %v", cfg.Monitor.Tick, 250*time.Millisecond)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override log.level and metrics.addr.
	// Everything else should inherit from defaults.
	yamlContent := `
log:
  level: "warn"
metrics:
  addr: ":9200"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	// Default values should be preserved.
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.SMTP.Host != "localhost" {
		t.Errorf("SMTP.Host = %q, want default %q", cfg.SMTP.Host, "localhost")
	}

	if cfg.Sink.Timeout != 10*time.Second {
		t.Errorf("Sink.Timeout = %v, want default %v", cfg.Sink.Timeout, 10*time.Second)
	}

	if cfg.Monitor.Tick != 1*time.Second {
		t.Errorf("Monitor.Tick = %v, want default %v", cfg.Monitor.Tick, 1*time.Second)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	// t.Setenv is incompatible with t.Parallel.
	t.Setenv("COMMWATCH_LOG_LEVEL", "error")
	t.Setenv("COMMWATCH_METRICS_ADDR", ":9300")

	path := writeTemp(t, "log:\n  level: \"debug\"\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Environment wins over the file.
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want env override %q", cfg.Log.Level, "error")
	}

	if cfg.Metrics.Addr != ":9300" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9300")
	}
}

func TestLayerPaths(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Subs.Base = "/usr/local/basestation/subs.yml"
	cfg.Subs.Group = "/home/gliders/subs.yml"

	got := cfg.LayerPaths("/home/sg236/subs.yml")
	want := []string{
		"/usr/local/basestation/subs.yml",
		"/home/gliders/subs.yml",
		"/home/sg236/subs.yml",
	}

	if len(got) != len(want) {
		t.Fatalf("LayerPaths() returned %d paths, want %d", len(got), len(want))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LayerPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "bad log format",
			modify: func(cfg *config.Config) {
				cfg.Log.Format = "xml"
			},
			wantErr: config.ErrInvalidLogFormat,
		},
		{
			name: "metrics addr without path",
			modify: func(cfg *config.Config) {
				cfg.Metrics.Addr = ":9100"
				cfg.Metrics.Path = ""
			},
			wantErr: config.ErrEmptyMetricsPath,
		},
		{
			name: "smtp port zero",
			modify: func(cfg *config.Config) {
				cfg.SMTP.Port = 0
			},
			wantErr: config.ErrInvalidSMTPPort,
		},
		{
			name: "smtp port too large",
			modify: func(cfg *config.Config) {
				cfg.SMTP.Port = 70000
			},
			wantErr: config.ErrInvalidSMTPPort,
		},
		{
			name: "zero sink timeout",
			modify: func(cfg *config.Config) {
				cfg.Sink.Timeout = 0
			},
			wantErr: config.ErrInvalidSinkTimeout,
		},
		{
			name: "excessive sink timeout",
			modify: func(cfg *config.Config) {
				cfg.Sink.Timeout = 2 * time.Minute
			},
			wantErr: config.ErrInvalidSinkTimeout,
		},
		{
			name: "zero tick",
			modify: func(cfg *config.Config) {
				cfg.Monitor.Tick = 0
			},
			wantErr: config.ErrInvalidTick,
		},
		{
			name: "empty subs file",
			modify: func(cfg *config.Config) {
				cfg.Subs.File = ""
			},
			wantErr: config.ErrEmptySubsFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/commwatch.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "commwatch.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
