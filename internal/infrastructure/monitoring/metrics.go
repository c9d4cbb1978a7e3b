package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "miniapp_bridge"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsTornDown *prometheus.CounterVec
	TeardownFailures *prometheus.CounterVec

	// Tool call metrics
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	Snapshots    *prometheus.CounterVec

	// Telemetry writer metrics
	LogEntriesDropped prometheus.Counter
	LogWriterDisabled *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	ActiveSessions int64   `json:"active_sessions"`
	ToolCalls      int64   `json:"tool_calls"`
	ToolFailures   int64   `json:"tool_failures"`
	TotalDuration  float64 `json:"total_duration_seconds"`
	RequestCount   int64   `json:"request_count"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// NewMetrics registers all metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Session metrics
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of mapped sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total number of sessions created",
			},
		),
		SessionsTornDown: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_torn_down_total",
				Help:      "Total number of session teardowns by reason",
			},
			[]string{"reason"},
		),
		TeardownFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "teardown_failures_total",
				Help:      "Total number of failed teardown steps",
			},
			[]string{"step"},
		),

		// Tool call metrics
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		Snapshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "Failure snapshot attempts by outcome",
			},
			[]string{"status"},
		),

		// Telemetry writer metrics
		LogEntriesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_entries_dropped_total",
				Help:      "Session log entries dropped by the file writer",
			},
		),
		LogWriterDisabled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_writer_disabled_total",
				Help:      "Session log writers disabled, by reason",
			},
			[]string{"reason"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// ObserveToolCall records one instrumented tool call
func (m *Metrics) ObserveToolCall(tool string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.ToolCalls++
	if !success {
		m.snapshot.ToolFailures++
	}
	m.mu.Unlock()
}

// ObserveSnapshot records a failure snapshot outcome
func (m *Metrics) ObserveSnapshot(status string) {
	m.Snapshots.WithLabelValues(status).Inc()
}

// SessionCreated increments the sessions created counter
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
}

// SessionTornDown records a finished teardown
func (m *Metrics) SessionTornDown(reason string) {
	m.SessionsTornDown.WithLabelValues(reason).Inc()
}

// TeardownStepFailed records a failed teardown step
func (m *Metrics) TeardownStepFailed(step string) {
	m.TeardownFailures.WithLabelValues(step).Inc()
}

// SetActiveSessions sets the number of mapped sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// EntriesDropped records log entries lost by a session file writer
func (m *Metrics) EntriesDropped(n int) {
	m.LogEntriesDropped.Add(float64(n))
}

// WriterDisabled records a session file writer shutting itself off
func (m *Metrics) WriterDisabled(reason string) {
	m.LogWriterDisabled.WithLabelValues(reason).Inc()
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
