// Package output persists session artifacts under the configured output
// directory. All paths handed to a Manager are relative to that directory.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/id"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
)

// Manager implements types.OutputManager on an afero filesystem.
type Manager struct {
	fs        afero.Fs
	dir       string
	sessionID string
	ids       *id.Generator
}

// New creates a Manager rooted at dir for one session.
func New(fs afero.Fs, dir, sessionID string) *Manager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Manager{
		fs:        fs,
		dir:       dir,
		sessionID: sessionID,
		ids:       id.Default(),
	}
}

// Dir returns the absolute output directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Fs returns the backing filesystem.
func (m *Manager) Fs() afero.Fs {
	return m.fs
}

// EnsureDir creates rel under the output directory.
func (m *Manager) EnsureDir(rel string) error {
	p, err := m.resolve(rel)
	if err != nil {
		return err
	}
	if err := m.fs.MkdirAll(p, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	return nil
}

// GenerateFilename returns <prefix>-<session>-<ulid>.<ext>. Names sort by
// creation time within a session.
func (m *Manager) GenerateFilename(prefix, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	name := fmt.Sprintf("%s-%s-%s", prefix, m.sessionID, m.ids.GenerateLower())
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// WriteFile writes data to rel, creating parent directories, and returns
// the absolute path.
func (m *Manager) WriteFile(rel string, data []byte) (string, error) {
	p, err := m.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := m.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create parent of %s: %w", rel, err)
	}
	if err := afero.WriteFile(m.fs, p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return p, nil
}

// List walks the output directory and returns files whose slash-separated
// relative path matches pattern. An empty pattern matches everything.
func (m *Manager) List(pattern string) ([]types.Artifact, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern: %s", pattern)
	}

	artifacts := []types.Artifact{}
	if ok, _ := afero.DirExists(m.fs, m.dir); !ok {
		return artifacts, nil
	}

	err := afero.Walk(m.fs, m.dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(m.dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, rel); !ok {
			return nil
		}

		artifacts = append(artifacts, types.Artifact{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			MIME:    m.detect(p),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.dir, err)
	}
	return artifacts, nil
}

func (m *Manager) detect(p string) string {
	f, err := m.fs.Open(p)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// resolve joins rel onto the output directory, rejecting escapes.
func (m *Manager) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be relative: %s", rel)
	}
	p := filepath.Join(m.dir, rel)
	if p != m.dir && !strings.HasPrefix(p, m.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes output directory: %s", rel)
	}
	return p, nil
}
