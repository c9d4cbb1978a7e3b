package automator

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Browser names accepted by the driver.
const (
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebKit   = "webkit"
)

var (
	ErrNotLaunched     = errors.New("miniapp not launched")
	ErrElementNotFound = errors.New("element not found")
)

// Connection is a launched page owned by one session. It satisfies the
// session's Connection port.
type Connection struct {
	page       Page
	browser    string
	launchedAt time.Time

	once sync.Once
	done chan struct{}
	err  error
}

// NewConnection wraps page.
func NewConnection(page Page, browser string) *Connection {
	return &Connection{
		page:       page,
		browser:    browser,
		launchedAt: time.Now(),
		done:       make(chan struct{}),
	}
}

// Page returns the driven page
func (c *Connection) Page() Page {
	return c.page
}

// Browser returns the browser name
func (c *Connection) Browser() string {
	return c.browser
}

// LaunchedAt returns when the page was opened
func (c *Connection) LaunchedAt() time.Time {
	return c.launchedAt
}

// Disconnect closes the page once. It returns early with ctx's error if
// ctx ends first; the close still completes in the background.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.once.Do(func() {
		go func() {
			c.err = c.page.Close()
			close(c.done)
		}()
	})

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
