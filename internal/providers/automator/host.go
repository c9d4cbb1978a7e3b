package automator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultReadyTimeout bounds how long launch waits for the host.
const DefaultReadyTimeout = 30 * time.Second

// HostProbe waits for an automation host to answer HTTP requests.
type HostProbe struct {
	client  *retryablehttp.Client
	timeout time.Duration
}

// NewHostProbe creates a probe that gives up after timeout.
func NewHostProbe(timeout time.Duration) *HostProbe {
	return newHostProbe(timeout, 100*time.Millisecond, time.Second)
}

func newHostProbe(timeout, waitMin, waitMax time.Duration) *HostProbe {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	client := retryablehttp.NewClient()
	client.RetryWaitMin = waitMin
	client.RetryWaitMax = waitMax
	// The context deadline ends the retries, not the count.
	client.RetryMax = int(timeout/waitMin) + 1
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil

	return &HostProbe{client: client, timeout: timeout}
}

// Wait polls url until it answers below 400 or the timeout passes.
func (p *HostProbe) Wait(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", url, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("automation host not ready at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("automation host not ready at %s: status %d", url, resp.StatusCode)
	}
	return nil
}
