// Package testutil provides testify mocks for the session collaborators.
package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
)

// MockConnection is a mock automation connection.
type MockConnection struct {
	mock.Mock
}

// Disconnect mocks the Disconnect method.
func (m *MockConnection) Disconnect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockProcess is a mock child process. Exited is closed by Exit.
type MockProcess struct {
	mock.Mock

	once   sync.Once
	exited chan struct{}
}

// NewMockProcess creates a process whose Kill confirms exit when
// exitOnKill is set.
func NewMockProcess(exitOnKill bool) *MockProcess {
	m := &MockProcess{exited: make(chan struct{})}
	call := m.On("Kill").Return(nil)
	if exitOnKill {
		call.Run(func(mock.Arguments) { m.Exit() })
	}
	return m
}

// Kill mocks the Kill method.
func (m *MockProcess) Kill() error {
	return m.Called().Error(0)
}

// Exited implements types.ExitNotifier.
func (m *MockProcess) Exited() <-chan struct{} {
	return m.exited
}

// Exit marks the process as exited.
func (m *MockProcess) Exit() {
	m.once.Do(func() { close(m.exited) })
}

// MockSnapshotter is a mock failure snapshotter.
type MockSnapshotter struct {
	mock.Mock
}

// CaptureSnapshot mocks the CaptureSnapshot method.
func (m *MockSnapshotter) CaptureSnapshot(ctx context.Context, sessionID, dir string) error {
	return m.Called(ctx, sessionID, dir).Error(0)
}

// MockReporter is a mock report generator.
type MockReporter struct {
	mock.Mock
}

// Generate mocks the Generate method.
func (m *MockReporter) Generate(ctx context.Context, report types.SessionReport, out types.OutputManager) (string, error) {
	args := m.Called(ctx, report, out)
	return args.String(0), args.Error(1)
}

var (
	_ types.Connection   = (*MockConnection)(nil)
	_ types.Process      = (*MockProcess)(nil)
	_ types.ExitNotifier = (*MockProcess)(nil)
	_ types.Snapshotter  = (*MockSnapshotter)(nil)
	_ types.Reporter     = (*MockReporter)(nil)
)
