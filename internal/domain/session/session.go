package session

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/instrument"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

// SessionDir returns the artifact directory of a session. Characters
// outside [A-Za-z0-9._-] in id are replaced so the directory stays under
// outputDir.
func SessionDir(outputDir, id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		}
		return '_'
	}, id)
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return filepath.Join(outputDir, "sessions", name)
}

// Config is the per-session configuration applied at creation.
type Config struct {
	Telemetry telemetry.Config
	// Reporting keeps a bounded call history and renders a report on teardown.
	Reporting bool
}

// Session is the state owned by one automation connection.
type Session struct {
	id        string
	createdAt time.Time
	logger    *telemetry.Logger
	output    types.OutputManager
	history   *instrument.History

	mu           sync.Mutex
	lastActivity time.Time
	conn         types.Connection
	proc         types.Process
	elements     map[string]interface{}
}

// Info describes a session for API responses.
type Info struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	HistoryLength  int       `json:"history_length"`
	CachedElements int       `json:"cached_elements"`
	HasConnection  bool      `json:"has_connection"`
	HasProcess     bool      `json:"has_process"`
}

func newSession(id string, logger *telemetry.Logger, out types.OutputManager, history *instrument.History) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		createdAt:    now,
		lastActivity: now,
		logger:       logger,
		output:       out,
		history:      history,
		elements:     make(map[string]interface{}),
	}
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) CreatedAt() time.Time         { return s.createdAt }
func (s *Session) Logger() *telemetry.Logger    { return s.logger }
func (s *Session) Output() types.OutputManager  { return s.output }
func (s *Session) History() *instrument.History { return s.history }

// LastActivity returns when the session was last used.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch refreshes the last-activity time.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity) > timeout
}

// SetConnection attaches the automation connection, returning the previous one.
func (s *Session) SetConnection(c types.Connection) types.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.conn
	s.conn = c
	return prev
}

// Connection returns the attached automation connection, if any.
func (s *Session) Connection() types.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// SetProcess attaches the child process, returning the previous one.
func (s *Session) SetProcess(p types.Process) types.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.proc
	s.proc = p
	return prev
}

// Process returns the attached child process, if any.
func (s *Session) Process() types.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// CacheElement stores an element handle under key.
func (s *Session) CacheElement(key string, element interface{}) {
	s.mu.Lock()
	s.elements[key] = element
	s.mu.Unlock()
}

// Element returns a cached element handle.
func (s *Session) Element(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elements[key]
	return e, ok
}

// CachedElements returns the number of cached element handles.
func (s *Session) CachedElements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elements)
}

// ClearElements drops every cached element handle.
func (s *Session) ClearElements() {
	s.mu.Lock()
	s.elements = make(map[string]interface{})
	s.mu.Unlock()
}

// Info returns a point-in-time description of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	info := Info{
		ID:             s.id,
		CreatedAt:      s.createdAt,
		LastActivity:   s.lastActivity,
		CachedElements: len(s.elements),
		HasConnection:  s.conn != nil,
		HasProcess:     s.proc != nil,
	}
	s.mu.Unlock()

	if s.history != nil {
		info.HistoryLength = s.history.Len()
	}
	return info
}

var _ instrument.Session = (*Session)(nil)
