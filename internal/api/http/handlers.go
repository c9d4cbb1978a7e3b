package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/infrastructure/tracing"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/service"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/utils"
)

const defaultDiscoverLimit = 10

// Handlers contains HTTP request handlers
type Handlers struct {
	sessions  *session.Registry
	tools     *service.Registry
	tracer    *tracing.Tracer
	log       *zap.Logger
	startedAt time.Time
}

// NewHandlers creates a new handlers instance. tracer may be nil.
func NewHandlers(sessions *session.Registry, tools *service.Registry, tracer *tracing.Tracer, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		sessions:  sessions,
		tools:     tools,
		tracer:    tracer,
		log:       log.Named("api"),
		startedAt: time.Now(),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/tools", h.ListTools)
	r.POST("/tools/discover", h.DiscoverTools)

	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.GET("/sessions/:id/history", h.GetHistory)
	r.GET("/sessions/:id/artifacts", h.ListArtifacts)
	r.DELETE("/sessions/:id", h.DeleteSession)
	r.POST("/sessions/:id/tools/:tool", h.ExecuteTool)
}

// Root handles GET /
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "miniapp-mcp",
		"status":  "running",
	})
}

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	m := h.sessions.Metrics()
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"sessions":       m.Active,
		"tools":          h.tools.Stats(),
	})
}

// ListTools handles GET /tools
func (h *Handlers) ListTools(c *gin.Context) {
	tools := h.tools.List()
	c.JSON(http.StatusOK, gin.H{
		"tools": tools,
		"count": len(tools),
	})
}

// DiscoverTools handles POST /tools/discover
func (h *Handlers) DiscoverTools(c *gin.Context) {
	var req struct {
		Intent string `json:"intent" binding:"required"`
		Limit  int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := utils.ValidateString(req.Intent, "intent", 1, 1000, true); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = defaultDiscoverLimit
	}

	tools := h.tools.Discover(req.Intent, limit)
	c.JSON(http.StatusOK, gin.H{
		"tools": tools,
		"count": len(tools),
	})
}

// ExecuteTool handles POST /sessions/:id/tools/:tool. The session is
// created on first use.
func (h *Handlers) ExecuteTool(c *gin.Context) {
	sessionID := c.Param("id")
	name := c.Param("tool")

	if err := utils.ValidateSessionID(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateToolName(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req types.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := utils.ValidateArgs(req.Args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var span *tracing.Span
	if h.tracer != nil {
		span, ctx = h.tracer.StartSpan(ctx, "tool."+name)
		span.SetTag("session_id", sessionID)
	}

	result, err := h.tools.Execute(ctx, sessionID, name, req.Args)

	if span != nil {
		span.SetError(err)
		span.Finish()
		h.tracer.Submit(span)
	}

	switch {
	case errors.Is(err, service.ErrToolNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrDisposed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case result != nil:
		// Tool failures are reported in the result body.
		c.JSON(http.StatusOK, result)
	default:
		h.log.Error("Tool execution failed", zap.String("session_id", sessionID), zap.String("tool", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListSessions handles GET /sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":  h.sessions.Metrics(),
		"sessions": h.sessions.List(),
	})
}

// GetSession handles GET /sessions/:id
func (h *Handlers) GetSession(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// GetHistory handles GET /sessions/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	records := []types.ToolCallRecord{}
	if hist := sess.History(); hist != nil {
		records = append(records, hist.Records()...)
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID(),
		"records":    records,
		"count":      len(records),
	})
}

// ListArtifacts handles GET /sessions/:id/artifacts?pattern=**/*.png
func (h *Handlers) ListArtifacts(c *gin.Context) {
	sess, ok := h.lookup(c)
	if !ok {
		return
	}

	artifacts, err := sess.Output().List(c.Query("pattern"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID(),
		"dir":        sess.Output().Dir(),
		"artifacts":  artifacts,
		"count":      len(artifacts),
	})
}

// DeleteSession handles DELETE /sessions/:id
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := utils.ValidateSessionID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.sessions.Delete(c.Request.Context(), id)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "session_id": id})
		return
	}

	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.log.Warn("Session teardown failed", zap.String("session_id", id), zap.Error(err))

	var tErr *session.TeardownError
	if errors.As(err, &tErr) {
		failed := make([]gin.H, 0, len(tErr.Failed()))
		for _, step := range tErr.Failed() {
			failed = append(failed, gin.H{"step": string(step.Step), "error": step.Err.Error()})
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":      false,
			"session_id":   id,
			"error":        err.Error(),
			"failed_steps": failed,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
}

func (h *Handlers) lookup(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	if err := utils.ValidateSessionID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	sess, ok := h.sessions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrNotFound.Error()})
		return nil, false
	}
	return sess, true
}
