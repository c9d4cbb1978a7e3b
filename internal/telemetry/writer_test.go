package telemetry

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gigabyte = 1 << 30

func plentyOfSpace(string) (uint64, error) { return gigabyte, nil }

type countingObserver struct {
	dropped  atomic.Int64
	disabled atomic.Int64
}

func (o *countingObserver) EntriesDropped(n int)  { o.dropped.Add(int64(n)) }
func (o *countingObserver) WriterDisabled(string) { o.disabled.Add(1) }

// gatedFs blocks OpenFile until released and optionally fails it.
type gatedFs struct {
	afero.Fs
	entered chan struct{}
	release chan struct{}
	err     error
}

func newGatedFs(err error) *gatedFs {
	return &gatedFs{
		Fs:      afero.NewMemMapFs(),
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
		err:     err,
	}
}

func (g *gatedFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	g.entered <- struct{}{}
	<-g.release
	if g.err != nil {
		return nil, g.err
	}
	return g.Fs.OpenFile(name, flag, perm)
}

// failingFs fails every open with err.
type failingFs struct {
	afero.Fs
	err   error
	opens atomic.Int32
}

func (f *failingFs) OpenFile(string, int, os.FileMode) (afero.File, error) {
	f.opens.Add(1)
	return nil, f.err
}

type unserializable struct{}

func (unserializable) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot encode")
}

func newTestWriter(t *testing.T, fs afero.Fs, opts WriterOptions) *FileWriter {
	t.Helper()
	opts.Fs = fs
	if opts.FreeSpace == nil {
		opts.FreeSpace = plentyOfSpace
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = time.Hour
	}
	w := NewFileWriter("s1", "out", opts)
	t.Cleanup(func() { _ = w.Dispose() })
	return w
}

func entry(msg string) Entry {
	return Entry{Timestamp: time.Now(), Level: LevelInfo, Message: msg, SessionID: "s1"}
}

func readLines(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestWriterPath(t *testing.T) {
	w := newTestWriter(t, afero.NewMemMapFs(), WriterOptions{})
	assert.Equal(t, filepath.Join("out", "logs", "session-s1.log"), w.Path())
}

func TestWriterBuffersBelowCapacity(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10})

	for i := 0; i < 9; i++ {
		w.Write(entry("m"))
	}

	assert.Equal(t, 9, w.Buffered())
	exists, err := afero.Exists(fs, w.Path())
	require.NoError(t, err)
	assert.False(t, exists, "nothing should touch the filesystem before a flush")
}

func TestWriterFlushWritesOneJSONLinePerEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10})

	w.Write(Entry{Timestamp: time.Now(), Level: LevelWarn, Message: "first", SessionID: "s1", Tool: "click", Context: Fields{"x": 1}})
	w.Write(entry("second"))
	w.Flush()

	lines := readLines(t, fs, w.Path())
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, sonic.UnmarshalString(lines[0], &first))
	assert.Equal(t, "warn", first["level"])
	assert.Equal(t, "first", first["message"])
	assert.Equal(t, "s1", first["session_id"])
	assert.Equal(t, "click", first["tool"])
	assert.Equal(t, 0, w.Buffered())
}

func TestWriterFullBufferTriggersFlush(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10})

	for i := 0; i < 10; i++ {
		w.Write(entry("m"))
	}

	assert.Eventually(t, func() bool {
		data, err := afero.ReadFile(fs, w.Path())
		return err == nil && bytes.Count(data, []byte("\n")) == 10
	}, time.Second, 10*time.Millisecond)
}

func TestWriterPeriodicFlush(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10, FlushInterval: 20 * time.Millisecond})

	w.Write(entry("tick"))

	assert.Eventually(t, func() bool {
		exists, _ := afero.Exists(fs, w.Path())
		return exists && w.Buffered() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestWriterSingleFlight(t *testing.T) {
	fs := newGatedFs(nil)
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10})

	w.Write(entry("a"))

	done := make(chan struct{})
	go func() {
		w.Flush()
		close(done)
	}()
	<-fs.entered

	returned := make(chan struct{})
	go func() {
		w.Flush()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("second flush waited for the first")
	}

	close(fs.release)
	<-done

	lines := readLines(t, fs, w.Path())
	assert.Len(t, lines, 1)
}

func TestWriterDisablesAfterThreeFailures(t *testing.T) {
	fs := &failingFs{Fs: afero.NewMemMapFs(), err: errors.New("device busy")}
	obs := &countingObserver{}
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10, Observer: obs})

	w.Write(entry("a"))
	w.Flush()
	assert.False(t, w.Disabled())
	assert.Equal(t, 1, w.Buffered(), "failed batch is re-buffered")

	w.Flush()
	assert.False(t, w.Disabled())

	w.Flush()
	assert.True(t, w.Disabled())
	assert.Equal(t, 0, w.Buffered())
	assert.Equal(t, int64(1), obs.disabled.Load())

	w.Write(entry("b"))
	w.Flush()
	assert.Equal(t, 0, w.Buffered())
	assert.Equal(t, int32(3), fs.opens.Load(), "no I/O after disable")
}

func TestWriterRebufferKeepsNewestThatFit(t *testing.T) {
	fs := newGatedFs(errors.New("transient"))
	obs := &countingObserver{}
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10, Observer: obs})

	for i := 0; i < 5; i++ {
		w.Write(entry("old"))
	}

	done := make(chan struct{})
	go func() {
		w.Flush()
		close(done)
	}()
	<-fs.entered
	require.Equal(t, 0, w.Buffered())

	for i := 0; i < 8; i++ {
		w.Write(entry("new"))
	}

	close(fs.release)
	<-done

	assert.Equal(t, 10, w.Buffered())
	assert.Equal(t, int64(3), obs.dropped.Load())
	assert.False(t, w.Disabled())
}

func TestWriterDisablesOnNoSpace(t *testing.T) {
	fs := &failingFs{
		Fs:  afero.NewMemMapFs(),
		err: &os.PathError{Op: "open", Path: "x", Err: syscall.ENOSPC},
	}
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10})

	w.Write(entry("a"))
	w.Flush()

	assert.True(t, w.Disabled())
	assert.Equal(t, 0, w.Buffered())
}

func TestWriterDisablesOnCriticalDiskSpace(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WriterOptions{
		BufferSize: 10,
		FreeSpace:  func(string) (uint64, error) { return 5 * 1024 * 1024, nil },
	})

	w.Write(entry("a"))
	w.Flush()

	assert.True(t, w.Disabled())
	data, err := afero.ReadFile(fs, w.Path())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriterIgnoresFailedDiskProbe(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WriterOptions{
		BufferSize: 10,
		FreeSpace:  func(string) (uint64, error) { return 0, errors.New("statfs failed") },
	})

	w.Write(entry("a"))
	w.Flush()

	assert.False(t, w.Disabled())
	assert.Len(t, readLines(t, fs, w.Path()), 1)
}

func TestWriterPlaceholderForUnserializableEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10})

	bad := entry("bad")
	bad.Context = Fields{"value": unserializable{}}
	w.Write(bad)
	w.Write(entry("good"))
	w.Flush()

	lines := readLines(t, fs, w.Path())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[unserializable log entry]")
	assert.Contains(t, lines[1], `"good"`)
}

func TestWriterRotatesLargeFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WriterOptions{BufferSize: 10, MaxFileSize: 100})

	w.Write(entry(strings.Repeat("x", 200)))
	w.Flush()
	w.Write(entry("after rotation"))
	w.Flush()

	infos, err := afero.ReadDir(fs, filepath.Join("out", "logs"))
	require.NoError(t, err)
	require.Len(t, infos, 2)

	lines := readLines(t, fs, w.Path())
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "after rotation")
}

func TestWriterCompressesRotatedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewFileWriter("s1", "out", WriterOptions{
		BufferSize:      10,
		FlushInterval:   time.Hour,
		MaxFileSize:     100,
		CompressRotated: true,
		Fs:              fs,
		FreeSpace:       plentyOfSpace,
	})

	w.Write(entry(strings.Repeat("x", 200)))
	w.Flush()
	w.Write(entry("after rotation"))
	w.Flush()
	require.NoError(t, w.Dispose())

	infos, err := afero.ReadDir(fs, filepath.Join("out", "logs"))
	require.NoError(t, err)
	require.Len(t, infos, 2)

	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	assert.Contains(t, names, "session-s1.log")
	gz := 0
	for _, name := range names {
		if strings.HasSuffix(name, ".gz") {
			gz++
		}
	}
	assert.Equal(t, 1, gz)
}

func TestWriterDisposeFlushesAndIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewFileWriter("s1", "out", WriterOptions{
		BufferSize:    10,
		FlushInterval: time.Hour,
		Fs:            fs,
		FreeSpace:     plentyOfSpace,
	})

	for i := 0; i < 3; i++ {
		w.Write(entry("m"))
	}

	require.NoError(t, w.Dispose())
	assert.Len(t, readLines(t, fs, w.Path()), 3)

	require.NoError(t, w.Dispose())

	w.Write(entry("late"))
	w.Flush()
	assert.Equal(t, 0, w.Buffered())
	assert.Len(t, readLines(t, fs, w.Path()), 3)
}
