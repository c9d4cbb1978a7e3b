package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

// Step names one teardown step.
type Step string

const (
	StepReport     Step = "report"
	StepLogger     Step = "logger"
	StepConnection Step = "connection"
	StepProcess    Step = "process"
	StepCache      Step = "cache"
)

// ErrKillTimeout is returned when a killed process does not confirm its
// exit in time.
var ErrKillTimeout = errors.New("process did not exit before timeout")

// StepResult is the outcome of one teardown step. Failures of steps that
// are not escalated are logged but never reach the caller.
type StepResult struct {
	Step      Step
	Err       error
	Escalated bool
}

// TeardownError reports every step of a teardown in which at least one
// escalated step failed.
type TeardownError struct {
	SessionID string
	Steps     []StepResult
}

// Failed returns the escalated failures in step order.
func (e *TeardownError) Failed() []StepResult {
	var failed []StepResult
	for _, r := range e.Steps {
		if r.Err != nil && r.Escalated {
			failed = append(failed, r)
		}
	}
	return failed
}

func (e *TeardownError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s teardown failed", e.SessionID)
	for i, r := range e.Failed() {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", r.Step, r.Err)
	}
	return b.String()
}

// Unwrap exposes the escalated failures to errors.Is and errors.As.
func (e *TeardownError) Unwrap() []error {
	failed := e.Failed()
	errs := make([]error, len(failed))
	for i, r := range failed {
		errs[i] = r.Err
	}
	return errs
}

// teardown releases everything s owns. Every step runs, in order, even
// when an earlier one fails. Cancellation of ctx does not cut steps short;
// the process wait is bounded by the kill timeout alone.
func (r *Registry) teardown(ctx context.Context, s *Session, reason string) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	r.log.Debug("Tearing down session", zap.String("session_id", s.id), zap.String("reason", reason))

	steps := []StepResult{
		r.runStep(s, StepReport, false, func() error { return r.writeReport(ctx, s) }),
		r.runStep(s, StepLogger, true, s.logger.Dispose),
		r.runStep(s, StepConnection, true, func() error {
			if conn := s.Connection(); conn != nil {
				return conn.Disconnect(ctx)
			}
			return nil
		}),
		r.runStep(s, StepProcess, true, func() error { return r.killProcess(s.Process()) }),
		r.runStep(s, StepCache, true, func() error {
			s.ClearElements()
			return nil
		}),
	}

	r.metrics.SessionTornDown(reason)

	result := &TeardownError{SessionID: s.id, Steps: steps}
	if len(result.Failed()) == 0 {
		r.log.Info("Session torn down",
			zap.String("session_id", s.id),
			zap.String("reason", reason),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}

	r.log.Error("Session teardown incomplete",
		zap.String("session_id", s.id),
		zap.String("reason", reason),
		zap.Error(result),
	)
	return result
}

func (r *Registry) runStep(s *Session, step Step, escalate bool, fn func() error) (res StepResult) {
	res = StepResult{Step: step, Escalated: escalate}

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
		}
		if res.Err == nil {
			return
		}
		r.metrics.TeardownStepFailed(string(step))
		if !escalate {
			r.log.Warn("Teardown step failed",
				zap.String("session_id", s.id),
				zap.String("step", string(step)),
				zap.Error(res.Err),
			)
		}
	}()

	res.Err = fn()
	return res
}

func (r *Registry) writeReport(ctx context.Context, s *Session) error {
	if s.history == nil || r.reporter == nil {
		return nil
	}

	report := types.SessionReport{
		SessionID: s.id,
		StartedAt: s.history.StartedAt(),
		EndedAt:   time.Now(),
		Calls:     s.history.Records(),
	}
	path, err := r.reporter.Generate(ctx, report, s.output)
	if err != nil {
		s.logger.Warn("Session report failed", telemetry.Fields{"error": err.Error()})
		return err
	}

	s.logger.Info("Session report written", telemetry.Fields{
		"path":  path,
		"calls": len(report.Calls),
	})
	return nil
}

// killProcess kills p and, when p can confirm its exit, waits up to the
// kill timeout for it.
func (r *Registry) killProcess(p types.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("kill: %w", err)
	}

	notifier, ok := p.(types.ExitNotifier)
	if !ok {
		return nil
	}

	timer := time.NewTimer(r.killTimeout)
	defer timer.Stop()

	select {
	case <-notifier.Exited():
		return nil
	case <-timer.C:
		return fmt.Errorf("%w (%s)", ErrKillTimeout, r.killTimeout)
	}
}
