package automator

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	Browser   string
	Headless  bool
	Width     int
	Height    int
	TimeoutMs float64
}

// Driver starts browser pages.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Page is the slice of a browser page the tools drive.
type Page interface {
	Goto(url string, timeoutMs float64) error
	Click(selector string, timeoutMs float64) error
	Fill(selector, value string, timeoutMs float64) error
	Query(selector string) ([]Element, error)
	Screenshot(fullPage bool) ([]byte, error)
	Content() (string, error)
	Title() (string, error)
	URL() string
	// Close releases the page together with its context and browser.
	Close() error
}

// Element is a handle to a node on a page.
type Element interface {
	Text() (string, error)
	Visible() (bool, error)
	Click(timeoutMs float64) error
	Fill(value string, timeoutMs float64) error
}

// PlaywrightDriver launches pages through playwright. The playwright
// server is started on first launch and shared by every session.
type PlaywrightDriver struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	install bool
	log     *zap.Logger
}

// NewPlaywrightDriver creates a driver. With install set, browsers are
// downloaded on first launch if missing.
func NewPlaywrightDriver(log *zap.Logger, install bool) *PlaywrightDriver {
	if log == nil {
		log = zap.NewNop()
	}
	return &PlaywrightDriver{install: install, log: log.Named("playwright")}
}

func (d *PlaywrightDriver) start() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw != nil {
		return d.pw, nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if d.install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	d.log.Info("Playwright started")
	d.pw = pw
	return pw, nil
}

// Launch starts a browser and opens one page in a fresh context.
func (d *PlaywrightDriver) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := d.start()
	if err != nil {
		return nil, err
	}

	var browserType playwright.BrowserType
	switch opts.Browser {
	case "", BrowserChromium:
		browserType = pw.Chromium
	case BrowserFirefox:
		browserType = pw.Firefox
	case BrowserWebKit:
		browserType = pw.WebKit
	default:
		return nil, fmt.Errorf("unsupported browser: %s", opts.Browser)
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Width,
			Height: opts.Height,
		},
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if opts.TimeoutMs > 0 {
		page.SetDefaultTimeout(opts.TimeoutMs)
	}

	return &pwPage{browser: browser, context: bctx, page: page}, nil
}

// Stop shuts the playwright server down.
func (d *PlaywrightDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	return err
}

type pwPage struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func (p *pwPage) Goto(url string, timeoutMs float64) error {
	waitUntil := playwright.WaitUntilState("load")
	opts := playwright.PageGotoOptions{WaitUntil: &waitUntil}
	if timeoutMs > 0 {
		opts.Timeout = &timeoutMs
	}
	if _, err := p.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *pwPage) Click(selector string, timeoutMs float64) error {
	opts := playwright.PageClickOptions{}
	if timeoutMs > 0 {
		opts.Timeout = &timeoutMs
	}
	if err := p.page.Click(selector, opts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (p *pwPage) Fill(selector, value string, timeoutMs float64) error {
	opts := playwright.PageFillOptions{}
	if timeoutMs > 0 {
		opts.Timeout = &timeoutMs
	}
	if err := p.page.Fill(selector, value, opts); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (p *pwPage) Query(selector string) ([]Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	elements := make([]Element, len(handles))
	for i, h := range handles {
		elements[i] = &pwElement{handle: h}
	}
	return elements, nil
}

func (p *pwPage) Screenshot(fullPage bool) ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{FullPage: &fullPage})
}

func (p *pwPage) Content() (string, error) { return p.page.Content() }
func (p *pwPage) Title() (string, error)   { return p.page.Title() }
func (p *pwPage) URL() string              { return p.page.URL() }

func (p *pwPage) Close() error {
	// Close every layer even if an inner one fails.
	return multierr.Combine(
		p.page.Close(),
		p.context.Close(),
		p.browser.Close(),
	)
}

type pwElement struct {
	handle playwright.ElementHandle
}

func (e *pwElement) Text() (string, error)  { return e.handle.TextContent() }
func (e *pwElement) Visible() (bool, error) { return e.handle.IsVisible() }

func (e *pwElement) Click(timeoutMs float64) error {
	opts := playwright.ElementHandleClickOptions{}
	if timeoutMs > 0 {
		opts.Timeout = &timeoutMs
	}
	return e.handle.Click(opts)
}

func (e *pwElement) Fill(value string, timeoutMs float64) error {
	opts := playwright.ElementHandleFillOptions{}
	if timeoutMs > 0 {
		opts.Timeout = &timeoutMs
	}
	return e.handle.Fill(value, opts)
}
