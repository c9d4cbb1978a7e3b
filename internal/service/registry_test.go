package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/instrument"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

type mockProvider struct {
	specs []ToolSpec
}

func (m *mockProvider) Tools() []ToolSpec {
	return m.specs
}

func echoTool(name string) ToolSpec {
	return ToolSpec{
		Tool: types.Tool{
			Name:        name,
			Description: "Echo the given text back",
			Parameters:  []types.Parameter{{Name: "text", Type: "string", Required: true}},
			Returns:     "object",
		},
		Handler: func(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"echo": args["text"], "session": sess.ID()}, nil
		},
	}
}

func newTestRegistry(t *testing.T) (*Registry, *session.Registry) {
	t.Helper()
	sessions := session.NewRegistry(zap.NewNop(), session.Options{
		Fs: afero.NewMemMapFs(),
		Defaults: session.Config{
			Telemetry: telemetry.Config{Level: "debug", OutputDir: "/out"},
			Reporting: true,
		},
	})
	t.Cleanup(func() { _ = sessions.Dispose(context.Background()) })

	return NewRegistry(sessions, instrument.New(instrument.Options{})), sessions
}

func TestRegister(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.NoError(t, r.Register(&mockProvider{specs: []ToolSpec{echoTool("test.echo")}}))

	tool, ok := r.Get("test.echo")
	require.True(t, ok)
	assert.Equal(t, "Echo the given text back", tool.Description)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.RegisterTool(ToolSpec{Tool: types.Tool{Name: ""}})
	assert.Error(t, err)

	err = r.RegisterTool(ToolSpec{Tool: types.Tool{Name: "no.handler"}})
	assert.Error(t, err)

	require.NoError(t, r.RegisterTool(echoTool("test.echo")))
	err = r.RegisterTool(echoTool("test.echo"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestList(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(&mockProvider{specs: []ToolSpec{
		echoTool("b.echo"),
		echoTool("a.echo"),
	}}))

	tools := r.List()
	require.Len(t, tools, 2)
	assert.Equal(t, "a.echo", tools[0].Name)
	assert.Equal(t, "b.echo", tools[1].Name)
}

func TestDiscover(t *testing.T) {
	r, _ := newTestRegistry(t)
	click := echoTool("miniapp.click")
	click.Description = "Click an element on the page"
	require.NoError(t, r.Register(&mockProvider{specs: []ToolSpec{
		click,
		echoTool("test.echo"),
	}}))

	found := r.Discover("please click the submit button", 5)
	require.NotEmpty(t, found)
	assert.Equal(t, "miniapp.click", found[0].Name)

	assert.Empty(t, r.Discover("zzz", 5))
	assert.Len(t, r.Discover("echo text", 1), 1)
}

func TestExecute(t *testing.T) {
	r, sessions := newTestRegistry(t)
	require.NoError(t, r.RegisterTool(echoTool("test.echo")))

	result, err := r.Execute(context.Background(), "s1", "test.echo", map[string]interface{}{"text": "hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Error)
	assert.Equal(t, map[string]interface{}{"echo": "hi", "session": "s1"}, result.Data)

	sess, ok := sessions.Get("s1")
	require.True(t, ok)
	records := sess.History().Records()
	require.Len(t, records, 1)
	assert.Equal(t, "test.echo", records[0].Tool)
	assert.True(t, records[0].Success)
}

func TestExecuteFailure(t *testing.T) {
	r, sessions := newTestRegistry(t)
	errBoom := errors.New("boom")
	require.NoError(t, r.RegisterTool(ToolSpec{
		Tool: types.Tool{Name: "test.fail"},
		Handler: func(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
			return nil, errBoom
		},
	}))

	result, err := r.Execute(context.Background(), "s1", "test.fail", nil)
	assert.ErrorIs(t, err, errBoom)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, "boom", *result.Error)

	sess, ok := sessions.Get("s1")
	require.True(t, ok)
	records := sess.History().Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Equal(t, "boom", records[0].Error.Message)
}

func TestExecuteUnknownTool(t *testing.T) {
	r, sessions := newTestRegistry(t)

	_, err := r.Execute(context.Background(), "s1", "missing", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.False(t, sessions.Has("s1"))
}

func TestExecuteAfterDispose(t *testing.T) {
	r, sessions := newTestRegistry(t)
	require.NoError(t, r.RegisterTool(echoTool("test.echo")))
	require.NoError(t, sessions.Dispose(context.Background()))

	_, err := r.Execute(context.Background(), "s1", "test.echo", nil)
	assert.ErrorIs(t, err, session.ErrDisposed)
}

func TestStats(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(&mockProvider{specs: []ToolSpec{
		echoTool("miniapp.a"),
		echoTool("miniapp.b"),
		echoTool("test.c"),
	}}))

	stats := r.Stats()
	assert.Equal(t, 3, stats["total_tools"])
	assert.Equal(t, map[string]int{"miniapp": 2, "test": 1}, stats["namespaces"])
	assert.Equal(t, true, stats["instrumented"])
}
