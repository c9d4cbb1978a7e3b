package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/utils"
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	writeWait           = 10 * time.Second
	maxMessageSize      = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is a server to client frame.
type Message struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Handler streams a session's tool call records over WebSocket.
type Handler struct {
	sessions *session.Registry
	poll     time.Duration
	log      *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions *session.Registry, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		poll:     DefaultPollInterval,
		log:      log.Named("ws"),
	}
}

// WithPollInterval sets how often the history is checked for new records.
func (h *Handler) WithPollInterval(d time.Duration) *Handler {
	if d > 0 {
		h.poll = d
	}
	return h
}

// HandleConnection handles GET /sessions/:id/stream. Records already in the
// history are replayed first. The stream ends with a "closed" frame when the
// session goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	id := c.Param("id")
	if err := utils.ValidateSessionID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.sessions.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrNotFound.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	s := &stream{conn: conn}
	done := make(chan struct{})
	go h.readLoop(s, done)

	if err := s.send(Message{Type: "system", SessionID: id, Message: "streaming tool calls"}); err != nil {
		return
	}

	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	next := 0
	for {
		sess, ok := h.sessions.Get(id)
		if !ok {
			_ = s.send(Message{Type: "closed", SessionID: id})
			_ = s.close(websocket.CloseNormalClosure, "session closed")
			return
		}

		if hist := sess.History(); hist != nil {
			var records []types.ToolCallRecord
			records, next = hist.Since(next)
			for _, r := range records {
				if err := s.send(Message{Type: "call", SessionID: id, Data: r}); err != nil {
					return
				}
			}
		}

		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// readLoop answers pings and reports when the client goes away.
func (h *Handler) readLoop(s *stream, done chan<- struct{}) {
	defer close(done)
	s.conn.SetReadLimit(maxMessageSize)

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "ping":
			_ = s.send(Message{Type: "pong"})
		default:
			_ = s.send(Message{Type: "error", Message: "unknown message type"})
		}
	}
}

// stream serializes writes; gorilla connections allow one concurrent writer.
type stream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *stream) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.Timestamp = time.Now().Unix()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *stream) close(code int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeWait))
}
