package automator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/providers/process"
)

func flakyHost(t *testing.T, failures int32) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHostProbeRetriesUntilReady(t *testing.T) {
	srv, hits := flakyHost(t, 2)
	probe := newHostProbe(2*time.Second, 5*time.Millisecond, 20*time.Millisecond)

	require.NoError(t, probe.Wait(context.Background(), srv.URL))
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestHostProbeTimesOut(t *testing.T) {
	srv, _ := flakyHost(t, 1<<30)
	probe := newHostProbe(100*time.Millisecond, 5*time.Millisecond, 20*time.Millisecond)

	err := probe.Wait(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestLaunchWaitsForHost(t *testing.T) {
	srv, hits := flakyHost(t, 1)
	h := newHarness(t, Config{HostCommand: "node host.js", HostReadyURL: srv.URL})
	h.provider.probe = newHostProbe(2*time.Second, 5*time.Millisecond, 20*time.Millisecond)
	h.provider.startHost = func(opts process.Options) (HostProcess, error) {
		return &fakeHost{}, nil
	}

	h.mustExec(t, "miniapp.launch", nil)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	require.Len(t, h.driver.pages, 1)
}

func TestLaunchKillsHostThatNeverReadies(t *testing.T) {
	srv, _ := flakyHost(t, 1<<30)
	h := newHarness(t, Config{HostCommand: "node host.js", HostReadyURL: srv.URL})
	h.provider.probe = newHostProbe(50*time.Millisecond, 5*time.Millisecond, 20*time.Millisecond)
	host := &fakeHost{}
	h.provider.startHost = func(opts process.Options) (HostProcess, error) {
		return host, nil
	}

	_, err := h.exec(t, "miniapp.launch", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, host.killed)
	assert.Nil(t, h.session(t).Process())
	assert.Empty(t, h.driver.pages)
}
