package telemetry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/infrastructure/resilience"
)

const (
	// DefaultMaxFileSize triggers rotation of the active log file.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	diskWarnThreshold     uint64 = 100 * 1024 * 1024
	diskCriticalThreshold uint64 = 10 * 1024 * 1024

	maxConsecutiveFailures = 3

	rotateTimeFormat = "20060102T150405.000"
)

// Observer receives writer health signals. Implemented by the metrics layer.
type Observer interface {
	EntriesDropped(n int)
	WriterDisabled(reason string)
}

type nopObserver struct{}

func (nopObserver) EntriesDropped(int)    {}
func (nopObserver) WriterDisabled(string) {}

// WriterOptions tunes a FileWriter. Zero values select defaults.
type WriterOptions struct {
	BufferSize      int
	FlushInterval   time.Duration
	MaxFileSize     int64
	CompressRotated bool

	Fs        afero.Fs
	FreeSpace func(path string) (uint64, error)
	Console   *zap.Logger
	Observer  Observer
}

// FileWriter appends entries to <dir>/logs/session-<id>.log as
// newline-delimited JSON. Entries are buffered in memory and written in
// batches by at most one flush at a time.
type FileWriter struct {
	sessionID string
	dir       string
	path      string

	bufferSize  int
	maxFileSize int64
	compress    bool

	fs        afero.Fs
	freeSpace func(string) (uint64, error)
	log       *zap.Logger
	observer  Observer
	breaker   *resilience.Breaker

	mu       sync.Mutex
	buffer   []Entry
	disposed bool

	// ioMu is held for the whole flush. TryLock gives single-flight.
	ioMu sync.Mutex
	file afero.File

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	bg       sync.WaitGroup
}

// NewFileWriter creates a writer for sessionID under outputDir and starts
// its periodic flush. Nothing touches the filesystem until the first flush.
func NewFileWriter(sessionID, outputDir string, opts WriterOptions) *FileWriter {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.FreeSpace == nil {
		opts.FreeSpace = freeSpace
	}
	if opts.Console == nil {
		opts.Console = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	dir := filepath.Join(outputDir, "logs")
	w := &FileWriter{
		sessionID:   sessionID,
		dir:         dir,
		path:        filepath.Join(dir, fmt.Sprintf("session-%s.log", sessionID)),
		bufferSize:  opts.BufferSize,
		maxFileSize: opts.MaxFileSize,
		compress:    opts.CompressRotated,
		fs:          opts.Fs,
		freeSpace:   opts.FreeSpace,
		log:         opts.Console.With(zap.String("session_id", sessionID)),
		observer:    opts.Observer,
		buffer:      make([]Entry, 0, opts.BufferSize),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	w.breaker = resilience.New("log-writer:"+sessionID, resilience.Settings{
		Threshold: maxConsecutiveFailures,
	})

	go w.run(opts.FlushInterval)
	return w
}

// Path returns the active log file path.
func (w *FileWriter) Path() string {
	return w.path
}

// Disabled reports whether the writer has stopped accepting entries for good.
func (w *FileWriter) Disabled() bool {
	return w.breaker.Open()
}

// Buffered returns the number of entries waiting to be flushed.
func (w *FileWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Write buffers an entry. When the buffer reaches capacity a flush is
// started in the background. No-op once disposed or disabled.
func (w *FileWriter) Write(entry Entry) {
	if w.breaker.Open() {
		return
	}

	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.buffer = append(w.buffer, entry)
	full := len(w.buffer) >= w.bufferSize
	if full {
		w.bg.Add(1)
	}
	w.mu.Unlock()

	if full {
		go func() {
			defer w.bg.Done()
			w.Flush()
		}()
	}
}

// Flush writes all buffered entries. If another flush is running this call
// returns immediately without waiting for it.
func (w *FileWriter) Flush() {
	if !w.ioMu.TryLock() {
		return
	}
	defer w.ioMu.Unlock()
	_ = w.flush(false)
}

// Dispose stops the periodic flush, waits for any in-flight flush, writes
// what is left and closes the file. Safe to call more than once.
func (w *FileWriter) Dispose() error {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return nil
	}
	w.disposed = true
	w.mu.Unlock()

	w.stopTicker()
	<-w.done

	w.ioMu.Lock()
	err := w.flush(true)
	if cerr := w.closeFile(); cerr != nil && err == nil {
		err = cerr
	}
	w.ioMu.Unlock()

	w.bg.Wait()
	return err
}

func (w *FileWriter) run(interval time.Duration) {
	defer close(w.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Flush()
		case <-w.stop:
			return
		}
	}
}

func (w *FileWriter) stopTicker() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// flush must be called with ioMu held. final bypasses the disposed check
// so Dispose can drain the buffer.
func (w *FileWriter) flush(final bool) error {
	if w.breaker.Open() {
		return nil
	}

	w.mu.Lock()
	if (w.disposed && !final) || len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.buffer
	w.buffer = make([]Entry, 0, w.bufferSize)
	w.mu.Unlock()

	data := w.encode(batch)

	if err := w.ensureOpen(); err != nil {
		w.handleFailure(batch, err)
		return err
	}

	if !w.checkDiskSpace() {
		return nil
	}

	w.rotateIfNeeded()

	if _, err := w.file.Write(data); err != nil {
		_ = w.closeFile()
		w.handleFailure(batch, err)
		return err
	}

	w.breaker.Success()
	return nil
}

// encode renders one JSON line per entry. An entry that cannot be
// serialized becomes a placeholder line instead of failing the batch.
func (w *FileWriter) encode(batch []Entry) []byte {
	var out []byte
	for _, entry := range batch {
		line, err := sonic.Marshal(entry)
		if err != nil {
			line = w.placeholder(entry, err)
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

func (w *FileWriter) placeholder(entry Entry, cause error) []byte {
	line, err := sonic.Marshal(map[string]string{
		"timestamp":  entry.Timestamp.Format(time.RFC3339Nano),
		"level":      entry.Level.String(),
		"message":    "[unserializable log entry]",
		"session_id": entry.SessionID,
		"error":      cause.Error(),
	})
	if err != nil {
		return []byte(`{"message":"[unserializable log entry]"}`)
	}
	return line
}

func (w *FileWriter) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := w.fs.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file = f
	return nil
}

func (w *FileWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// checkDiskSpace reports whether the flush may proceed. A failed probe
// does not block writing.
func (w *FileWriter) checkDiskSpace() bool {
	free, err := w.freeSpace(w.dir)
	if err != nil {
		w.log.Debug("Disk space probe failed", zap.Error(err))
		return true
	}

	if free < diskCriticalThreshold {
		w.disable("disk space critical", zap.Uint64("free_bytes", free))
		return false
	}
	if free < diskWarnThreshold {
		w.log.Warn("Low disk space for session log", zap.Uint64("free_bytes", free))
	}
	return true
}

func (w *FileWriter) rotateIfNeeded() {
	info, err := w.file.Stat()
	if err != nil || info.Size() <= w.maxFileSize {
		return
	}

	rotated := w.path + "." + time.Now().Format(rotateTimeFormat)
	if err := w.fs.Rename(w.path, rotated); err != nil {
		w.log.Warn("Log rotation failed", zap.String("path", w.path), zap.Error(err))
		return
	}

	f, err := w.fs.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		w.log.Warn("Reopen after rotation failed", zap.String("path", w.path), zap.Error(err))
		return
	}

	_ = w.file.Close()
	w.file = f
	w.log.Info("Rotated session log", zap.String("rotated", rotated), zap.Int64("size", info.Size()))

	if w.compress {
		w.bg.Add(1)
		go func() {
			defer w.bg.Done()
			if err := w.gzipFile(rotated); err != nil {
				w.log.Warn("Compress rotated log failed", zap.String("path", rotated), zap.Error(err))
			}
		}()
	}
}

func (w *FileWriter) gzipFile(path string) error {
	src, err := w.fs.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := w.fs.Create(path + ".gz")
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return w.fs.Remove(path)
}

func (w *FileWriter) handleFailure(batch []Entry, err error) {
	if errors.Is(err, syscall.ENOSPC) {
		w.dropAll(batch)
		w.disable("no space left on device", zap.Error(err))
		return
	}

	if w.breaker.Failure() {
		w.dropAll(batch)
		w.disable("consecutive write failures", zap.Error(err))
		return
	}

	w.mu.Lock()
	available := w.bufferSize - len(w.buffer)
	if available < 0 {
		available = 0
	}
	keep := len(batch)
	if keep > available {
		keep = available
	}
	restored := make([]Entry, 0, keep+len(w.buffer))
	restored = append(restored, batch[len(batch)-keep:]...)
	restored = append(restored, w.buffer...)
	w.buffer = restored
	w.mu.Unlock()

	dropped := len(batch) - keep
	if dropped > 0 {
		w.observer.EntriesDropped(dropped)
	}
	w.log.Warn("Log flush failed, entries re-buffered",
		zap.Error(err),
		zap.Int("rebuffered", keep),
		zap.Int("dropped", dropped),
	)
}

func (w *FileWriter) dropAll(batch []Entry) {
	w.mu.Lock()
	n := len(batch) + len(w.buffer)
	w.buffer = nil
	w.mu.Unlock()
	if n > 0 {
		w.observer.EntriesDropped(n)
	}
}

// disable latches the writer off. Must be called with ioMu held.
func (w *FileWriter) disable(reason string, fields ...zap.Field) {
	w.breaker.Trip(reason)
	_ = w.closeFile()

	w.mu.Lock()
	dropped := len(w.buffer)
	w.buffer = nil
	w.mu.Unlock()
	if dropped > 0 {
		w.observer.EntriesDropped(dropped)
	}

	w.stopTicker()
	w.observer.WriterDisabled(reason)
	w.log.Error("Session file logging disabled",
		append(fields, zap.String("reason", reason), zap.String("path", w.path))...)
}
