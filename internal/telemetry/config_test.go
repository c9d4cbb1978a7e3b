package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       Config
		want     Config
		warnings int
	}{
		{
			name: "zero values take defaults",
			in:   Config{},
			want: Config{
				Level:         DefaultLevel,
				OutputDir:     DefaultOutputDir,
				BufferSize:    DefaultBufferSize,
				FlushInterval: DefaultFlushInterval,
			},
		},
		{
			name:     "buffer size clamped low",
			in:       Config{Level: "debug", OutputDir: "out", BufferSize: 3, FlushInterval: time.Second},
			want:     Config{Level: "debug", OutputDir: "out", BufferSize: MinBufferSize, FlushInterval: time.Second},
			warnings: 1,
		},
		{
			name:     "buffer size clamped high",
			in:       Config{Level: "info", OutputDir: "out", BufferSize: 50000, FlushInterval: time.Second},
			want:     Config{Level: "info", OutputDir: "out", BufferSize: MaxBufferSize, FlushInterval: time.Second},
			warnings: 1,
		},
		{
			name:     "flush interval below minimum",
			in:       Config{Level: "warn", OutputDir: "out", BufferSize: 20, FlushInterval: time.Millisecond},
			want:     Config{Level: "warn", OutputDir: "out", BufferSize: 20, FlushInterval: MinFlushInterval},
			warnings: 1,
		},
		{
			name:     "flush interval above maximum",
			in:       Config{Level: "warn", OutputDir: "out", BufferSize: 20, FlushInterval: 5 * time.Minute},
			want:     Config{Level: "warn", OutputDir: "out", BufferSize: 20, FlushInterval: MaxFlushInterval},
			warnings: 1,
		},
		{
			name:     "unknown level and blank dir",
			in:       Config{Level: "loud", FileLogging: true, OutputDir: "  ", BufferSize: 20, FlushInterval: time.Second},
			want:     Config{Level: DefaultLevel, FileLogging: true, OutputDir: DefaultOutputDir, BufferSize: 20, FlushInterval: time.Second},
			warnings: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			got := Normalize(tt.in, zap.New(core))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warnings, logs.Len())
		})
	}
}

func TestParseLevelOrdering(t *testing.T) {
	assert.True(t, LevelDebug < LevelInfo)
	assert.True(t, LevelInfo < LevelWarn)
	assert.True(t, LevelWarn < LevelError)

	lvl, ok := ParseLevel("WARN")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, lvl)

	_, ok = ParseLevel("trace")
	assert.False(t, ok)
}
