package types

import (
	"context"
	"time"
)

// Connection is an automation-driver connection owned by a session.
type Connection interface {
	Disconnect(ctx context.Context) error
}

// Process is a child process owned by a session.
type Process interface {
	Kill() error
}

// ExitNotifier is implemented by processes that can confirm their exit.
// Processes without it are killed without waiting for confirmation.
type ExitNotifier interface {
	Exited() <-chan struct{}
}

// OutputManager persists artifacts under a session's output directory.
type OutputManager interface {
	// EnsureDir creates dir (relative to the output directory) if missing.
	EnsureDir(dir string) error
	// Dir returns the absolute output directory.
	Dir() string
	// GenerateFilename returns a unique file name with the given prefix and extension.
	GenerateFilename(prefix, ext string) string
	// WriteFile writes data to the relative path and returns the absolute path.
	WriteFile(rel string, data []byte) (string, error)
	// List returns the files whose relative path matches the glob pattern.
	List(pattern string) ([]Artifact, error)
}

// Artifact is a file in a session's output directory.
type Artifact struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	MIME    string    `json:"mime"`
}

// Snapshotter captures the current page state into dir (relative to the output directory).
type Snapshotter interface {
	CaptureSnapshot(ctx context.Context, sessionID, dir string) error
}

// Reporter renders and persists a session report.
type Reporter interface {
	Generate(ctx context.Context, report SessionReport, out OutputManager) (string, error)
}

// SessionReport is the data handed to a Reporter at teardown.
type SessionReport struct {
	SessionID string           `json:"session_id" yaml:"session_id"`
	StartedAt time.Time        `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time        `json:"ended_at" yaml:"ended_at"`
	Calls     []ToolCallRecord `json:"calls" yaml:"calls"`
}
