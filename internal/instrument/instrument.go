package instrument

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

// Session is the slice of session state the instrumentation needs.
type Session interface {
	ID() string
	Logger() *telemetry.Logger
	Output() types.OutputManager
	// History returns nil when the session keeps no call history.
	History() *History
}

// Handler executes one tool call against a session.
type Handler func(ctx context.Context, sess Session, args map[string]interface{}) (interface{}, error)

// Recorder receives per-call measurements. Implemented by the metrics layer.
type Recorder interface {
	ObserveToolCall(tool string, success bool, duration time.Duration)
	ObserveSnapshot(status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveToolCall(string, bool, time.Duration) {}
func (nopRecorder) ObserveSnapshot(string)                     {}

// Options configures an Instrumenter.
type Options struct {
	// CaptureOnFailure enables failure snapshots.
	CaptureOnFailure bool
	Snapshotter      types.Snapshotter
	Recorder         Recorder
}

// Instrumenter wraps tool handlers with logging, history and failure
// capture. Wrapped handlers return exactly what the inner handler returns.
type Instrumenter struct {
	capture  bool
	capturer *Capturer
	recorder Recorder
}

// New creates an Instrumenter.
func New(opts Options) *Instrumenter {
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Instrumenter{
		capture:  opts.CaptureOnFailure,
		capturer: NewCapturer(opts.Snapshotter),
		recorder: opts.Recorder,
	}
}

// Wrap returns a Handler with the same behavior as h plus instrumentation.
func (in *Instrumenter) Wrap(name string, h Handler) Handler {
	return func(ctx context.Context, sess Session, args map[string]interface{}) (interface{}, error) {
		call := &call{
			in:    in,
			id:    uuid.NewString(),
			tool:  name,
			sess:  sess,
			log:   sess.Logger().Child(name),
			start: time.Now(),
		}
		call.args = SanitizeArgs(args)

		call.log.Info("Tool call started", telemetry.Fields{
			"call_id": call.id,
			"args":    call.args,
		})

		defer func() {
			if r := recover(); r != nil {
				call.panicked(r, debug.Stack())
				panic(r)
			}
		}()

		result, err := h(ctx, sess, args)
		if err != nil {
			call.failed(ctx, err)
			return result, err
		}

		call.succeeded(result)
		return result, nil
	}
}

type call struct {
	in    *Instrumenter
	id    string
	tool  string
	sess  Session
	log   *telemetry.Logger
	start time.Time
	args  interface{}
}

func (c *call) succeeded(result interface{}) {
	d := time.Since(c.start)
	safe := SanitizeResult(result)

	c.log.Info("Tool call completed", telemetry.Fields{
		"call_id":     c.id,
		"duration_ms": d.Milliseconds(),
		"result":      safe,
	})
	c.in.recorder.ObserveToolCall(c.tool, true, d)

	if h := c.sess.History(); h != nil {
		h.Append(types.ToolCallRecord{
			Timestamp: c.start,
			Tool:      c.tool,
			Duration:  d,
			Success:   true,
			Result:    safe,
		})
	}
}

func (c *call) failed(ctx context.Context, err error) {
	d := time.Since(c.start)
	msg := err.Error()
	stack := fmt.Sprintf("%+v", err)
	if stack == msg {
		stack = ""
	}

	c.log.Error("Tool call failed", telemetry.Fields{
		"call_id":     c.id,
		"duration_ms": d.Milliseconds(),
		"error":       msg,
		"stack":       stack,
	})
	c.in.recorder.ObserveToolCall(c.tool, false, d)

	var snapshot string
	if c.in.capture {
		snapshot = c.in.capturer.Capture(ctx, c.sess, Failure{
			CallID:   c.id,
			Tool:     c.tool,
			Args:     c.args,
			Message:  msg,
			Stack:    stack,
			Duration: d,
			At:       time.Now(),
		})
		if snapshot != "" {
			c.in.recorder.ObserveSnapshot("captured")
		} else {
			c.in.recorder.ObserveSnapshot("skipped")
		}
	}

	c.record(d, msg, snapshot)
}

func (c *call) panicked(r interface{}, stack []byte) {
	d := time.Since(c.start)
	msg := fmt.Sprintf("panic: %v", r)

	c.log.Error("Tool call panicked", telemetry.Fields{
		"call_id":     c.id,
		"duration_ms": d.Milliseconds(),
		"error":       msg,
		"stack":       ScrubMessage(string(stack)),
	})
	c.in.recorder.ObserveToolCall(c.tool, false, d)
	c.record(d, msg, "")
}

func (c *call) record(d time.Duration, msg, snapshot string) {
	h := c.sess.History()
	if h == nil {
		return
	}
	h.Append(types.ToolCallRecord{
		Timestamp: c.start,
		Tool:      c.tool,
		Duration:  d,
		Success:   false,
		Error: &types.CallError{
			Message:      ScrubMessage(msg),
			SnapshotPath: snapshot,
		},
	})
}
