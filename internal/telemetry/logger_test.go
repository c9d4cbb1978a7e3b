package telemetry

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger(t *testing.T, cfg Config) (*Logger, *observer.ObservedLogs, afero.Fs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	fs := afero.NewMemMapFs()
	l := New("s1", cfg, Options{
		Console:   zap.New(core),
		Fs:        fs,
		FreeSpace: plentyOfSpace,
	})
	t.Cleanup(func() { _ = l.Dispose() })
	return l, logs, fs
}

func TestLoggerThresholdFiltersBothSinks(t *testing.T) {
	l, logs, _ := newTestLogger(t, Config{Level: "warn", FileLogging: true, OutputDir: "out", FlushInterval: time.Hour})

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	assert.Equal(t, 0, logs.Len())
	assert.Equal(t, 0, l.Writer().Buffered())

	l.Warn("shown", Fields{"k": "v"})
	l.Error("shown", nil)
	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 2, l.Writer().Buffered())
}

func TestLoggerConsoleFollowsSessionThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	fs := afero.NewMemMapFs()
	l := New("s1", Config{Level: "debug", FileLogging: true, OutputDir: "out", FlushInterval: time.Hour}, Options{
		Console:   zap.New(core),
		Fs:        fs,
		FreeSpace: plentyOfSpace,
	})
	t.Cleanup(func() { _ = l.Dispose() })

	l.Debug("loading page", nil)
	l.Child("miniapp.click").Debug("clicking", nil)

	assert.Equal(t, 2, l.Writer().Buffered())
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, "miniapp.click", logs.All()[1].ContextMap()["tool"])
}

func TestLoggerMirrorsToConsole(t *testing.T) {
	l, logs, _ := newTestLogger(t, Config{Level: "debug"})

	l.Info("started", Fields{"attempt": 2})

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, e.Level)
	assert.Equal(t, "started", e.Message)
	assert.Equal(t, "s1", e.ContextMap()["session_id"])
	assert.Nil(t, l.Writer(), "file logging off")
}

func TestLoggerChildSharesWriter(t *testing.T) {
	l, logs, fs := newTestLogger(t, Config{Level: "info", FileLogging: true, OutputDir: "out", FlushInterval: time.Hour})

	child := l.Child("miniapp.click")
	assert.Equal(t, "miniapp.click", child.Tool())
	assert.Same(t, l.Writer(), child.Writer())

	child.Info("clicked", nil)
	require.NoError(t, child.Dispose())
	assert.Equal(t, 1, l.Writer().Buffered(), "child dispose leaves the writer alone")

	require.NoError(t, l.Dispose())

	lines := readLines(t, fs, l.Writer().Path())
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"tool":"miniapp.click"`)
	assert.Equal(t, "miniapp.click", logs.All()[0].ContextMap()["tool"])
}

func TestLoggerNop(t *testing.T) {
	l := NewNop("s1")
	l.Error("dropped", nil)
	assert.Nil(t, l.Writer())
	assert.NoError(t, l.Dispose())
}
