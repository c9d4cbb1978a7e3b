package automator

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/providers/process"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/service"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/id"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

// Defaults applied when Config leaves a value zero.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultWidth       = 375
	DefaultHeight      = 812
	DefaultQueryLimit  = 10
	MaxQueryLimit      = 100
	maxElementTextSize = 200
)

// Config configures the automation tools.
type Config struct {
	Browser  string
	Headless bool
	// HostCommand, when set, is started under a PTY on launch.
	HostCommand string
	// HostReadyURL, when set, is polled after the host starts and before
	// the page is launched.
	HostReadyURL string
	ReadyTimeout time.Duration
	Timeout      time.Duration
	Width        int
	Height       int
}

// HostProcess is a started automation host.
type HostProcess interface {
	types.Process
	Pid() int
}

// Provider exposes the miniapp.* tools.
type Provider struct {
	cfg       Config
	driver    Driver
	log       *zap.Logger
	probe     *HostProbe
	startHost func(process.Options) (HostProcess, error)
}

// NewProvider creates the automation tool provider.
func NewProvider(cfg Config, driver Driver, log *zap.Logger) *Provider {
	if cfg.Browser == "" {
		cfg.Browser = BrowserChromium
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Provider{
		cfg:    cfg,
		driver: driver,
		log:    log.Named("automator"),
		probe:  NewHostProbe(cfg.ReadyTimeout),
		startHost: func(opts process.Options) (HostProcess, error) {
			return process.Start(opts)
		},
	}
}

// Tools returns the tool specs served by this provider.
func (p *Provider) Tools() []service.ToolSpec {
	target := []types.Parameter{
		{Name: "selector", Type: "string", Description: "CSS selector of the target element", Required: false},
		{Name: "ref", Type: "string", Description: "Element reference returned by miniapp.query", Required: false},
		{Name: "timeout_ms", Type: "number", Description: "Action timeout in milliseconds", Required: false},
	}

	return []service.ToolSpec{
		{
			Tool: types.Tool{
				Name:        "miniapp.launch",
				Description: "Launch the miniapp page for this session and optionally open a URL",
				Parameters: []types.Parameter{
					{Name: "url", Type: "string", Description: "URL to open after launch", Required: false},
					{Name: "browser", Type: "string", Description: "chromium, firefox or webkit", Required: false},
					{Name: "headless", Type: "boolean", Description: "Run without a visible window", Required: false},
					{Name: "force", Type: "boolean", Description: "Relaunch even if already launched", Required: false},
				},
				Returns: "object",
			},
			Handler: p.launch,
		},
		{
			Tool: types.Tool{
				Name:        "miniapp.navigate",
				Description: "Navigate the page to a URL",
				Parameters: []types.Parameter{
					{Name: "url", Type: "string", Description: "Destination URL", Required: true},
					{Name: "timeout_ms", Type: "number", Description: "Navigation timeout in milliseconds", Required: false},
				},
				Returns: "object",
			},
			Handler: p.navigate,
		},
		{
			Tool: types.Tool{
				Name:        "miniapp.click",
				Description: "Click an element by selector or cached reference",
				Parameters:  target,
				Returns:     "object",
			},
			Handler: p.click,
		},
		{
			Tool: types.Tool{
				Name:        "miniapp.input",
				Description: "Type a value into an input element",
				Parameters: append([]types.Parameter{
					{Name: "value", Type: "string", Description: "Text to enter", Required: true},
				}, target...),
				Returns: "object",
			},
			Handler: p.input,
		},
		{
			Tool: types.Tool{
				Name:        "miniapp.screenshot",
				Description: "Capture a screenshot into the session output directory",
				Parameters: []types.Parameter{
					{Name: "full_page", Type: "boolean", Description: "Capture the full scrollable page", Required: false},
				},
				Returns: "object",
			},
			Handler: p.screenshot,
		},
		{
			Tool: types.Tool{
				Name:        "miniapp.query",
				Description: "Find elements matching a selector and cache them for later actions",
				Parameters: []types.Parameter{
					{Name: "selector", Type: "string", Description: "CSS selector", Required: true},
					{Name: "limit", Type: "number", Description: "Maximum elements returned", Required: false},
				},
				Returns: "object",
			},
			Handler: p.query,
		},
		{
			Tool: types.Tool{
				Name:        "miniapp.extract",
				Description: "Extract text, attributes or sanitized HTML from the current page by CSS selector or XPath",
				Parameters: []types.Parameter{
					{Name: "selector", Type: "string", Description: "CSS selector", Required: false},
					{Name: "xpath", Type: "string", Description: "XPath expression", Required: false},
					{Name: "attr", Type: "string", Description: "Attribute to read from each element", Required: false},
					{Name: "html", Type: "boolean", Description: "Include sanitized outer HTML", Required: false},
					{Name: "limit", Type: "number", Description: "Maximum elements returned", Required: false},
				},
				Returns: "object",
			},
			Handler: p.extract,
		},
		{
			Tool: types.Tool{
				Name:        "miniapp.close",
				Description: "Close the page and stop the automation host",
				Returns:     "object",
			},
			Handler: p.close,
		},
	}
}

func (p *Provider) launch(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
	if conn, ok := sess.Connection().(*Connection); ok && conn != nil && !optBool(args, "force", false) {
		return map[string]interface{}{
			"reused":  true,
			"browser": conn.Browser(),
			"url":     conn.Page().URL(),
		}, nil
	}

	result := map[string]interface{}{"reused": false}

	if p.cfg.HostCommand != "" {
		fields := strings.Fields(p.cfg.HostCommand)
		proc, err := p.startHost(process.Options{
			Command: fields[0],
			Args:    fields[1:],
			Logger:  p.log.With(zap.String("session_id", sess.ID())),
		})
		if err != nil {
			return nil, fmt.Errorf("start automation host: %w", err)
		}
		if prev := sess.SetProcess(proc); prev != nil {
			_ = prev.Kill()
		}
		result["pid"] = proc.Pid()

		if p.cfg.HostReadyURL != "" {
			if err := p.probe.Wait(ctx, p.cfg.HostReadyURL); err != nil {
				sess.SetProcess(nil)
				_ = proc.Kill()
				return nil, err
			}
		}
	}

	opts := LaunchOptions{
		Browser:   optString(args, "browser", p.cfg.Browser),
		Headless:  optBool(args, "headless", p.cfg.Headless),
		Width:     p.cfg.Width,
		Height:    p.cfg.Height,
		TimeoutMs: float64(p.cfg.Timeout.Milliseconds()),
	}

	page, err := p.driver.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}

	conn := NewConnection(page, opts.Browser)
	if prev := sess.SetConnection(conn); prev != nil {
		if err := prev.Disconnect(ctx); err != nil {
			sess.Logger().Warn("Previous connection did not close cleanly", telemetry.Fields{"error": err.Error()})
		}
	}
	sess.ClearElements()

	result["browser"] = opts.Browser
	result["headless"] = opts.Headless

	if url := optString(args, "url", ""); url != "" {
		if err := page.Goto(url, opts.TimeoutMs); err != nil {
			return nil, err
		}
		title, _ := page.Title()
		result["url"] = page.URL()
		result["title"] = title
	}

	sess.Logger().Info("Miniapp launched", telemetry.Fields{
		"browser":  opts.Browser,
		"headless": opts.Headless,
	})
	return result, nil
}

func (p *Provider) navigate(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
	page, err := pageOf(sess)
	if err != nil {
		return nil, err
	}
	url, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}

	if err := page.Goto(url, p.timeout(args)); err != nil {
		return nil, err
	}

	title, _ := page.Title()
	return map[string]interface{}{
		"url":   page.URL(),
		"title": title,
	}, nil
}

func (p *Provider) click(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
	page, err := pageOf(sess)
	if err != nil {
		return nil, err
	}

	timeout := p.timeout(args)
	if ref := optString(args, "ref", ""); ref != "" {
		el, err := cachedElement(sess, ref)
		if err != nil {
			return nil, err
		}
		if err := el.Click(timeout); err != nil {
			return nil, fmt.Errorf("click failed: %w", err)
		}
		return map[string]interface{}{"clicked": ref, "url": page.URL()}, nil
	}

	selector, err := stringArg(args, "selector")
	if err != nil {
		return nil, err
	}
	if err := page.Click(selector, timeout); err != nil {
		return nil, err
	}
	return map[string]interface{}{"clicked": selector, "url": page.URL()}, nil
}

func (p *Provider) input(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
	page, err := pageOf(sess)
	if err != nil {
		return nil, err
	}
	value, ok := args["value"].(string)
	if !ok {
		return nil, fmt.Errorf("value must be a string")
	}

	timeout := p.timeout(args)
	if ref := optString(args, "ref", ""); ref != "" {
		el, err := cachedElement(sess, ref)
		if err != nil {
			return nil, err
		}
		if err := el.Fill(value, timeout); err != nil {
			return nil, fmt.Errorf("fill failed: %w", err)
		}
		return map[string]interface{}{"filled": ref, "length": len(value)}, nil
	}

	selector, err := stringArg(args, "selector")
	if err != nil {
		return nil, err
	}
	if err := page.Fill(selector, value, timeout); err != nil {
		return nil, err
	}
	return map[string]interface{}{"filled": selector, "length": len(value)}, nil
}

func (p *Provider) screenshot(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
	page, err := pageOf(sess)
	if err != nil {
		return nil, err
	}

	data, err := page.Screenshot(optBool(args, "full_page", false))
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	out := sess.Output()
	file, err := out.WriteFile(path.Join("screenshots", out.GenerateFilename("screenshot", "png")), data)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"path":  file,
		"bytes": len(data),
		"mime":  mimetype.Detect(data).String(),
	}, nil
}

// Element refs returned by query.
type elementRef struct {
	Ref     string `json:"ref"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

func (p *Provider) query(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
	page, err := pageOf(sess)
	if err != nil {
		return nil, err
	}
	selector, err := stringArg(args, "selector")
	if err != nil {
		return nil, err
	}

	limit := optInt(args, "limit", DefaultQueryLimit)
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	elements, err := page.Query(selector)
	if err != nil {
		return nil, err
	}

	shown := elements
	if len(shown) > limit {
		shown = shown[:limit]
	}

	refs := make([]elementRef, 0, len(shown))
	for _, el := range shown {
		ref := "el_" + id.Default().GenerateLower()
		sess.CacheElement(ref, el)

		text, _ := el.Text()
		if len(text) > maxElementTextSize {
			text = text[:maxElementTextSize]
		}
		visible, _ := el.Visible()

		refs = append(refs, elementRef{Ref: ref, Text: strings.TrimSpace(text), Visible: visible})
	}

	return map[string]interface{}{
		"selector": selector,
		"count":    len(elements),
		"elements": refs,
	}, nil
}

func (p *Provider) close(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
	conn := sess.SetConnection(nil)
	proc := sess.SetProcess(nil)
	sess.ClearElements()

	if proc != nil {
		if err := proc.Kill(); err != nil {
			sess.Logger().Warn("Automation host kill failed", telemetry.Fields{"error": err.Error()})
		}
	}
	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			return nil, fmt.Errorf("disconnect: %w", err)
		}
	}

	return map[string]interface{}{
		"closed":       conn != nil,
		"host_stopped": proc != nil,
	}, nil
}

func (p *Provider) timeout(args map[string]interface{}) float64 {
	return optFloat(args, "timeout_ms", float64(p.cfg.Timeout.Milliseconds()))
}

func pageOf(sess *session.Session) (Page, error) {
	conn, ok := sess.Connection().(*Connection)
	if !ok || conn == nil {
		return nil, fmt.Errorf("%w: call miniapp.launch first", ErrNotLaunched)
	}
	return conn.Page(), nil
}

func cachedElement(sess *session.Session, ref string) (Element, error) {
	v, ok := sess.Element(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, ref)
	}
	el, ok := v.(Element)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, ref)
	}
	return el, nil
}
