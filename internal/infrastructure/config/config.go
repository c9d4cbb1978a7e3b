package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Logging   LogConfig       `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Session   SessionConfig   `toml:"session"`
	Browser   BrowserConfig   `toml:"browser"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" toml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" toml:"host"`
}

// LogConfig holds process logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// TelemetryConfig holds per-session log sink configuration. Out-of-range
// values are clamped when a session is created, never rejected here.
type TelemetryConfig struct {
	Level           string `envconfig:"SESSION_LOG_LEVEL" default:"info" toml:"level"`
	FileLogging     bool   `envconfig:"SESSION_FILE_LOGGING" default:"true" toml:"file_logging"`
	OutputDir       string `envconfig:"OUTPUT_DIR" default:".mcp-output" toml:"output_dir"`
	BufferSize      int    `envconfig:"LOG_BUFFER_SIZE" default:"100" toml:"buffer_size"`
	FlushIntervalMs int    `envconfig:"LOG_FLUSH_INTERVAL_MS" default:"5000" toml:"flush_interval_ms"`
	CompressRotated bool   `envconfig:"LOG_COMPRESS_ROTATED" default:"false" toml:"compress_rotated"`
}

// FlushInterval returns the flush interval as a duration.
func (t TelemetryConfig) FlushInterval() time.Duration {
	return time.Duration(t.FlushIntervalMs) * time.Millisecond
}

// SessionConfig holds session lifecycle configuration.
type SessionConfig struct {
	Timeout          time.Duration `envconfig:"SESSION_TIMEOUT" default:"30m" toml:"-"`
	SweepInterval    time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m" toml:"-"`
	KillTimeout      time.Duration `envconfig:"SESSION_KILL_TIMEOUT" default:"5s" toml:"-"`
	Reporting        bool          `envconfig:"SESSION_REPORTING" default:"false" toml:"reporting"`
	ReportFormat     string        `envconfig:"SESSION_REPORT_FORMAT" default:"json" toml:"report_format"`
	FailureSnapshots bool          `envconfig:"FAILURE_SNAPSHOTS" default:"false" toml:"failure_snapshots"`
}

// BrowserConfig holds automation driver configuration.
type BrowserConfig struct {
	Type     string `envconfig:"BROWSER" default:"chromium" toml:"type"`
	Headless bool   `envconfig:"BROWSER_HEADLESS" default:"true" toml:"headless"`
	// HostCommand, when set, is started under a PTY for each launched session.
	HostCommand string `envconfig:"AUTOMATION_HOST_CMD" default:"" toml:"host_command"`
	// HostReadyURL is polled until the host answers before the page launches.
	HostReadyURL string `envconfig:"AUTOMATION_HOST_READY_URL" default:"" toml:"host_ready_url"`
	// Install downloads the browser binaries on first launch.
	Install bool `envconfig:"BROWSER_INSTALL" default:"false" toml:"install"`
}

// RateLimitConfig holds per-session rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// sessionDurations carries the duration keys of a config file as strings.
type sessionDurations struct {
	Session struct {
		Timeout       string `toml:"timeout"`
		SweepInterval string `toml:"sweep_interval"`
		KillTimeout   string `toml:"kill_timeout"`
	} `toml:"session"`
}

// ApplyFile overlays the TOML file at path onto cfg. Keys absent from the
// file keep their current value.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return Apply(cfg, data)
}

// Apply overlays TOML data onto cfg.
func Apply(cfg *Config, data []byte) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	var d sessionDurations
	if err := toml.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	for _, f := range []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{d.Session.Timeout, &cfg.Session.Timeout, "session.timeout"},
		{d.Session.SweepInterval, &cfg.Session.SweepInterval, "session.sweep_interval"},
		{d.Session.KillTimeout, &cfg.Session.KillTimeout, "session.kill_timeout"},
	} {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Telemetry: TelemetryConfig{
			Level:           "info",
			FileLogging:     true,
			OutputDir:       ".mcp-output",
			BufferSize:      100,
			FlushIntervalMs: 5000,
		},
		Session: SessionConfig{
			Timeout:       30 * time.Minute,
			SweepInterval: 5 * time.Minute,
			KillTimeout:   5 * time.Second,
			ReportFormat:  "json",
		},
		Browser: BrowserConfig{
			Type:     "chromium",
			Headless: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
