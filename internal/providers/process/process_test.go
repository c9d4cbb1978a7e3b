package process

import (
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
)

var (
	_ types.Process      = (*Process)(nil)
	_ types.ExitNotifier = (*Process)(nil)
)

func startShell(t *testing.T, script string) *Process {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	p, err := Start(Options{Command: sh, Args: []string{"-c", script}})
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() { _ = p.Kill() })
	return p
}

func waitExit(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestStartRequiresCommand(t *testing.T) {
	_, err := Start(Options{})
	assert.Error(t, err)
}

func TestProcessCapturesOutput(t *testing.T) {
	p := startShell(t, "echo hello-from-child")
	waitExit(t, p)

	assert.False(t, p.Running())
	assert.NoError(t, p.Err())
	assert.Eventually(t, func() bool {
		return strings.Contains(string(p.Output()), "hello-from-child")
	}, time.Second, 10*time.Millisecond)
}

func TestKillClosesExited(t *testing.T) {
	p := startShell(t, "sleep 30")
	assert.True(t, p.Running())
	assert.Greater(t, p.Pid(), 0)

	require.NoError(t, p.Kill())
	waitExit(t, p)

	assert.Error(t, p.Err())
	assert.NoError(t, p.Kill())
	assert.ErrorIs(t, p.Write([]byte("x")), ErrNotRunning)
}
