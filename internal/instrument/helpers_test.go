package instrument

import (
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/output"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/telemetry"
)

type testSession struct {
	id      string
	log     *telemetry.Logger
	out     *output.Manager
	history *History
}

func (s *testSession) ID() string                  { return s.id }
func (s *testSession) Logger() *telemetry.Logger   { return s.log }
func (s *testSession) Output() types.OutputManager { return s.out }
func (s *testSession) History() *History           { return s.history }

func newTestSession(t *testing.T, withHistory bool) (*testSession, *observer.ObservedLogs, afero.Fs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	fs := afero.NewMemMapFs()

	sess := &testSession{
		id:  "s1",
		log: telemetry.New("s1", telemetry.Config{Level: "debug"}, telemetry.Options{Console: zap.New(core)}),
		out: output.New(fs, "/out", "s1"),
	}
	if withHistory {
		sess.history = NewHistory()
	}
	return sess, logs, fs
}
