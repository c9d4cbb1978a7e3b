package instrument

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

const (
	failuresDir      = "failures"
	errorContextFile = "error-context.json"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Failure describes a failed call for evidence capture.
type Failure struct {
	CallID   string
	Tool     string
	Args     interface{}
	Message  string
	Stack    string
	Duration time.Duration
	At       time.Time
}

type errorContext struct {
	CallID     string      `json:"call_id"`
	Tool       string      `json:"tool"`
	Message    string      `json:"message"`
	Stack      string      `json:"stack,omitempty"`
	Args       interface{} `json:"args"`
	DurationMs int64       `json:"duration_ms"`
	Timestamp  string      `json:"timestamp"`
}

// Capturer persists failure evidence: a page snapshot from the
// Snapshotter plus an error-context.json file. At most one capture runs
// per session; a failure raised while capturing is not captured again.
type Capturer struct {
	snapshotter types.Snapshotter

	mu     sync.Mutex
	active map[string]struct{}
}

// NewCapturer creates a Capturer. A nil snapshotter still writes the
// error context file.
func NewCapturer(snapshotter types.Snapshotter) *Capturer {
	return &Capturer{
		snapshotter: snapshotter,
		active:      make(map[string]struct{}),
	}
}

// FailureDir returns the relative directory for a failure of tool at t.
func FailureDir(tool string, t time.Time) string {
	return path.Join(failuresDir, fmt.Sprintf("%s-%d", unsafeNameChars.ReplaceAllString(tool, "_"), t.UnixMilli()))
}

// Capture stores evidence for f and returns the relative directory, or
// "" when nothing was captured. Errors are logged at warn and swallowed.
func (c *Capturer) Capture(ctx context.Context, sess Session, f Failure) (dir string) {
	if !c.acquire(sess.ID()) {
		return ""
	}
	defer c.release(sess.ID())

	log := sess.Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Warn("Failure snapshot panicked", telemetry.Fields{"tool": f.Tool, "panic": fmt.Sprint(r)})
			dir = ""
		}
	}()

	out := sess.Output()
	if out == nil {
		return ""
	}

	dir = FailureDir(f.Tool, f.At)
	if err := out.EnsureDir(dir); err != nil {
		log.Warn("Failure snapshot directory not created", telemetry.Fields{"dir": dir, "error": err.Error()})
		return ""
	}

	if c.snapshotter != nil {
		if err := c.snapshotter.CaptureSnapshot(ctx, sess.ID(), dir); err != nil {
			log.Warn("Failure snapshot capture failed", telemetry.Fields{"dir": dir, "error": err.Error()})
			return ""
		}
	}

	data, err := sonic.MarshalIndent(errorContext{
		CallID:     f.CallID,
		Tool:       f.Tool,
		Message:    f.Message,
		Stack:      ScrubMessage(f.Stack),
		Args:       f.Args,
		DurationMs: f.Duration.Milliseconds(),
		Timestamp:  f.At.Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		log.Warn("Error context not serializable", telemetry.Fields{"dir": dir, "error": err.Error()})
		return ""
	}

	if _, err := out.WriteFile(path.Join(dir, errorContextFile), data); err != nil {
		log.Warn("Error context not written", telemetry.Fields{"dir": dir, "error": err.Error()})
		return ""
	}

	return dir
}

func (c *Capturer) acquire(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[sessionID]; busy {
		return false
	}
	c.active[sessionID] = struct{}{}
	return true
}

func (c *Capturer) release(sessionID string) {
	c.mu.Lock()
	delete(c.active, sessionID)
	c.mu.Unlock()
}
