package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

func setup(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := session.NewRegistry(zap.NewNop(), session.Options{
		Fs: afero.NewMemMapFs(),
		Defaults: session.Config{
			Telemetry: telemetry.Config{OutputDir: "/out"},
			Reporting: true,
		},
	})
	t.Cleanup(func() { _ = sessions.Dispose(context.Background()) })

	router := gin.New()
	router.GET("/sessions/:id/stream", NewHandler(sessions, zap.NewNop()).WithPollInterval(10*time.Millisecond).HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, sessions
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamReplaysAndFollows(t *testing.T) {
	srv, sessions := setup(t)

	sess, err := sessions.GetOrCreate("s1", nil)
	require.NoError(t, err)
	sess.History().Append(types.ToolCallRecord{Tool: "miniapp.launch", Success: true})

	conn := dial(t, srv, "s1")
	assert.Equal(t, "system", read(t, conn)["type"])

	first := read(t, conn)
	assert.Equal(t, "call", first["type"])
	assert.Equal(t, "miniapp.launch", first["data"].(map[string]interface{})["tool"])

	sess.History().Append(types.ToolCallRecord{Tool: "miniapp.click"})
	second := read(t, conn)
	assert.Equal(t, "miniapp.click", second["data"].(map[string]interface{})["tool"])

	require.NoError(t, sessions.Delete(context.Background(), "s1"))
	assert.Equal(t, "closed", read(t, conn)["type"])
}

func TestStreamPing(t *testing.T) {
	srv, sessions := setup(t)
	_, err := sessions.GetOrCreate("s1", nil)
	require.NoError(t, err)

	conn := dial(t, srv, "s1")
	assert.Equal(t, "system", read(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", read(t, conn)["type"])
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _ := setup(t)

	resp, err := http.Get(srv.URL + "/sessions/missing/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
