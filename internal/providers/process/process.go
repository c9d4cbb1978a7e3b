package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
)

// DefaultBufferSize is the amount of output retained per process.
const DefaultBufferSize = 64 * 1024

const drainTimeout = 500 * time.Millisecond

var ErrNotRunning = errors.New("process is not running")

// Options configures a child process.
type Options struct {
	Command    string
	Args       []string
	WorkingDir string
	Env        map[string]string
	Cols       int
	Rows       int
	BufferSize int
	Logger     *zap.Logger
}

// Process is a child process attached to a pseudo-terminal. It satisfies
// the session's Process and ExitNotifier ports.
type Process struct {
	cmd       *exec.Cmd
	ptmx      *os.File
	out       *Buffer
	log       *zap.Logger
	startedAt time.Time

	exited   chan struct{}
	readDone chan struct{}

	mu      sync.Mutex
	waitErr error
	killed  bool
}

// Start launches the command under a PTY.
func Start(opts Options) (*Process, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}
	if opts.Cols <= 0 {
		opts.Cols = 80
	}
	if opts.Rows <= 0 {
		opts.Rows = 24
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for key, value := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(opts.Rows),
		Cols: uint16(opts.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	p := &Process{
		cmd:       cmd,
		ptmx:      ptmx,
		out:       NewBuffer(opts.BufferSize),
		log:       opts.Logger.With(zap.String("command", opts.Command), zap.Int("pid", cmd.Process.Pid)),
		startedAt: time.Now(),
		exited:    make(chan struct{}),
		readDone:  make(chan struct{}),
	}

	go p.readOutput()
	go p.wait()

	p.log.Info("Process started")
	return p, nil
}

// Pid returns the operating system process id
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// StartedAt returns the launch time
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Err returns the wait error after exit, nil while running.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Running reports whether the process has not exited yet.
func (p *Process) Running() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Output returns the retained terminal output.
func (p *Process) Output() []byte {
	return p.out.Bytes()
}

// Write sends input to the terminal.
func (p *Process) Write(input []byte) error {
	if !p.Running() {
		return ErrNotRunning
	}
	_, err := p.ptmx.Write(input)
	return err
}

// Resize changes terminal dimensions
func (p *Process) Resize(cols, rows int) error {
	if !p.Running() {
		return ErrNotRunning
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Kill sends SIGKILL. It does not wait; callers wait on Exited.
// Killing an exited process is a no-op.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Running() {
		return nil
	}
	p.killed = true

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

func (p *Process) readOutput() {
	defer close(p.readDone)

	buf := make([]byte, 4096)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			_, _ = p.out.Write(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.log.Debug("PTY read ended", zap.Error(err))
			}
			return
		}
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	// Drain what the child wrote before it exited.
	select {
	case <-p.readDone:
	case <-time.After(drainTimeout):
	}
	_ = p.ptmx.Close()

	p.mu.Lock()
	p.waitErr = err
	killed := p.killed
	p.mu.Unlock()

	close(p.exited)

	switch {
	case killed:
		p.log.Info("Process killed")
	case err != nil:
		p.log.Warn("Process exited with error", zap.Error(err))
	default:
		p.log.Info("Process exited")
	}
}
