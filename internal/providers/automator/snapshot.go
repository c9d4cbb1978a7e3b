package automator

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/multierr"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
)

// Files written into a snapshot directory.
const (
	ScreenshotFile = "screenshot.png"
	ContentFile    = "page.html"
	PageInfoFile   = "page.json"
)

// SessionLookup resolves live sessions by id.
type SessionLookup interface {
	Get(id string) (*session.Session, bool)
}

// Snapshotter captures the page of a session into its output directory.
// Sessions without a launched page have nothing to capture.
type Snapshotter struct {
	sessions SessionLookup
}

// NewSnapshotter creates a Snapshotter.
func NewSnapshotter(sessions SessionLookup) *Snapshotter {
	return &Snapshotter{sessions: sessions}
}

type pageInfo struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Browser    string `json:"browser"`
	CapturedAt string `json:"captured_at"`
}

// CaptureSnapshot writes a screenshot, the page HTML and page metadata
// into dir. Every artifact is attempted; the combined error is returned.
func (s *Snapshotter) CaptureSnapshot(ctx context.Context, sessionID, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil
	}
	conn, ok := sess.Connection().(*Connection)
	if !ok || conn == nil {
		return nil
	}

	page := conn.Page()
	out := sess.Output()
	var errs error

	if png, err := page.Screenshot(true); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("screenshot: %w", err))
	} else if _, err := out.WriteFile(path.Join(dir, ScreenshotFile), png); err != nil {
		errs = multierr.Append(errs, err)
	}

	if html, err := page.Content(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("content: %w", err))
	} else if _, err := out.WriteFile(path.Join(dir, ContentFile), []byte(html)); err != nil {
		errs = multierr.Append(errs, err)
	}

	title, _ := page.Title()
	info, err := sonic.MarshalIndent(pageInfo{
		URL:        page.URL(),
		Title:      title,
		Browser:    conn.Browser(),
		CapturedAt: time.Now().Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if _, err := out.WriteFile(path.Join(dir, PageInfoFile), info); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}
