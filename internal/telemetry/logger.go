package telemetry

import (
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options carries collaborators for a session logger.
type Options struct {
	// Console receives every entry at or above the threshold. Nil discards.
	Console *zap.Logger
	// Fs backs the file writer. Defaults to the OS filesystem.
	Fs afero.Fs
	// FreeSpace overrides the disk space probe.
	FreeSpace func(path string) (uint64, error)
	// MaxFileSize overrides the rotation threshold.
	MaxFileSize int64
	Observer    Observer
}

// Logger is the per-session telemetry sink. It mirrors entries to the
// console and, when file logging is enabled, to the session's FileWriter.
// Children share the parent's writer and differ only by tool name.
type Logger struct {
	sessionID string
	tool      string
	threshold Level
	console   *zap.Logger
	writer    *FileWriter
	owner     bool
}

// New creates the root logger for a session. cfg is normalized first.
func New(sessionID string, cfg Config, opts Options) *Logger {
	if opts.Console == nil {
		opts.Console = zap.NewNop()
	}
	cfg = Normalize(cfg, opts.Console)
	threshold, _ := ParseLevel(cfg.Level)

	l := &Logger{
		sessionID: sessionID,
		threshold: threshold,
		console:   withThreshold(opts.Console, threshold).With(zap.String("session_id", sessionID)),
		owner:     true,
	}

	if cfg.FileLogging {
		l.writer = NewFileWriter(sessionID, cfg.OutputDir, WriterOptions{
			BufferSize:      cfg.BufferSize,
			FlushInterval:   cfg.FlushInterval,
			MaxFileSize:     opts.MaxFileSize,
			CompressRotated: cfg.CompressRotated,
			Fs:              opts.Fs,
			FreeSpace:       opts.FreeSpace,
			Console:         opts.Console,
			Observer:        opts.Observer,
		})
	}

	return l
}

// NewNop returns a logger that drops everything.
func NewNop(sessionID string) *Logger {
	return &Logger{
		sessionID: sessionID,
		threshold: LevelError + 1,
		console:   zap.NewNop(),
	}
}

// SessionID returns the owning session id.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Tool returns the tool name bound by Child, empty on the root logger.
func (l *Logger) Tool() string {
	return l.tool
}

// Writer returns the shared file writer, nil when file logging is off.
func (l *Logger) Writer() *FileWriter {
	return l.writer
}

// Child returns a logger that tags entries with tool and shares this
// logger's writer.
func (l *Logger) Child(tool string) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		tool:      tool,
		threshold: l.threshold,
		console:   l.console.With(zap.String("tool", tool)),
		writer:    l.writer,
	}
}

func (l *Logger) Debug(msg string, fields Fields) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields Fields) { l.log(LevelError, msg, fields) }

// Flush asks the writer to flush without waiting for a running flush.
func (l *Logger) Flush() {
	if l.writer != nil {
		l.writer.Flush()
	}
}

// Dispose flushes and closes the writer. Only the root logger owns the
// writer; disposing a child is a no-op.
func (l *Logger) Dispose() error {
	if !l.owner || l.writer == nil {
		return nil
	}
	return l.writer.Dispose()
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	if level < l.threshold {
		return
	}

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		SessionID: l.sessionID,
		Tool:      l.tool,
		Context:   fields,
	}

	l.mirror(entry)

	if l.writer != nil {
		l.writer.Write(entry)
	}
}

func (l *Logger) mirror(entry Entry) {
	var zf []zap.Field
	if len(entry.Context) > 0 {
		zf = append(zf, zap.Any("context", map[string]interface{}(entry.Context)))
	}

	switch entry.Level {
	case LevelDebug:
		l.console.Debug(entry.Message, zf...)
	case LevelInfo:
		l.console.Info(entry.Message, zf...)
	case LevelWarn:
		l.console.Warn(entry.Message, zf...)
	default:
		l.console.Error(entry.Message, zf...)
	}
}

// withThreshold gates console on the session threshold instead of the
// console's own level, so both sinks see the same entries.
func withThreshold(console *zap.Logger, threshold Level) *zap.Logger {
	level := threshold.ZapLevel()
	return console.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return &thresholdCore{Core: c, level: level}
	}))
}

type thresholdCore struct {
	zapcore.Core
	level zapcore.Level
}

func (c *thresholdCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l)
}

func (c *thresholdCore) With(fields []zapcore.Field) zapcore.Core {
	return &thresholdCore{Core: c.Core.With(fields), level: c.level}
}

func (c *thresholdCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
