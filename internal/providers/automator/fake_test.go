package automator

import (
	"context"
	"errors"
	"sync"
)

var errFake = errors.New("fake failure")

type fakeDriver struct {
	mu       sync.Mutex
	launches []LaunchOptions
	pages    []*fakePage
	err      error
}

func (d *fakeDriver) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.launches = append(d.launches, opts)
	p := newFakePage()
	d.pages = append(d.pages, p)
	return p, nil
}

type fakeElement struct {
	text    string
	clicked int
	filled  string
	err     error
}

func (e *fakeElement) Text() (string, error)  { return e.text, nil }
func (e *fakeElement) Visible() (bool, error) { return true, nil }

func (e *fakeElement) Click(timeoutMs float64) error {
	if e.err != nil {
		return e.err
	}
	e.clicked++
	return nil
}

func (e *fakeElement) Fill(value string, timeoutMs float64) error {
	if e.err != nil {
		return e.err
	}
	e.filled = value
	return nil
}

type fakePage struct {
	mu       sync.Mutex
	url      string
	html     string
	clicks   []string
	fills    map[string]string
	elements map[string][]Element
	clickErr error
	closed   int
}

func newFakePage() *fakePage {
	return &fakePage{
		url:      "about:blank",
		fills:    make(map[string]string),
		elements: make(map[string][]Element),
	}
}

func (p *fakePage) Goto(url string, timeoutMs float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *fakePage) Click(selector string, timeoutMs float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clickErr != nil {
		return p.clickErr
	}
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *fakePage) Fill(selector, value string, timeoutMs float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills[selector] = value
	return nil
}

func (p *fakePage) Query(selector string) ([]Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elements[selector], nil
}

func (p *fakePage) Screenshot(fullPage bool) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\nfake"), nil
}

func (p *fakePage) Title() (string, error) { return "Fake Title", nil }

func (p *fakePage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.html == "" {
		return "<html><body>fake</body></html>", nil
	}
	return p.html, nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

type fakeHost struct {
	mu     sync.Mutex
	killed int
}

func (h *fakeHost) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed++
	return nil
}

func (h *fakeHost) Pid() int { return 4242 }
