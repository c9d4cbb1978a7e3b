package telemetry

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	MinBufferSize = 10
	MaxBufferSize = 10000

	MinFlushInterval = 100 * time.Millisecond
	MaxFlushInterval = 60000 * time.Millisecond

	DefaultBufferSize    = 100
	DefaultFlushInterval = 5 * time.Second
	DefaultLevel         = "info"
	DefaultOutputDir     = ".mcp-output"
)

// Config configures a session logger and its file writer.
// Zero values select defaults.
type Config struct {
	Level           string
	FileLogging     bool
	OutputDir       string
	BufferSize      int
	FlushInterval   time.Duration
	CompressRotated bool
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Level:         DefaultLevel,
		FileLogging:   true,
		OutputDir:     DefaultOutputDir,
		BufferSize:    DefaultBufferSize,
		FlushInterval: DefaultFlushInterval,
	}
}

// Normalize clamps and repairs cfg. It never fails; every repair is
// reported through warn.
func Normalize(cfg Config, warn *zap.Logger) Config {
	if warn == nil {
		warn = zap.NewNop()
	}

	if _, ok := ParseLevel(cfg.Level); !ok {
		if cfg.Level != "" {
			warn.Warn("Unrecognized log level, using default",
				zap.String("level", cfg.Level),
				zap.String("default", DefaultLevel),
			)
		}
		cfg.Level = DefaultLevel
	}

	if strings.TrimSpace(cfg.OutputDir) == "" {
		if cfg.FileLogging {
			warn.Warn("Blank output directory, using default", zap.String("default", DefaultOutputDir))
		}
		cfg.OutputDir = DefaultOutputDir
	}

	switch {
	case cfg.BufferSize == 0:
		cfg.BufferSize = DefaultBufferSize
	case cfg.BufferSize < MinBufferSize:
		warn.Warn("Buffer size below minimum, clamping", zap.Int("requested", cfg.BufferSize), zap.Int("min", MinBufferSize))
		cfg.BufferSize = MinBufferSize
	case cfg.BufferSize > MaxBufferSize:
		warn.Warn("Buffer size above maximum, clamping", zap.Int("requested", cfg.BufferSize), zap.Int("max", MaxBufferSize))
		cfg.BufferSize = MaxBufferSize
	}

	switch {
	case cfg.FlushInterval == 0:
		cfg.FlushInterval = DefaultFlushInterval
	case cfg.FlushInterval < MinFlushInterval:
		warn.Warn("Flush interval below minimum, clamping", zap.Duration("requested", cfg.FlushInterval), zap.Duration("min", MinFlushInterval))
		cfg.FlushInterval = MinFlushInterval
	case cfg.FlushInterval > MaxFlushInterval:
		warn.Warn("Flush interval above maximum, clamping", zap.Duration("requested", cfg.FlushInterval), zap.Duration("max", MaxFlushInterval))
		cfg.FlushInterval = MaxFlushInterval
	}

	return cfg
}
