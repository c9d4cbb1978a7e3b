/*
Package monitoring provides Prometheus metrics for the bridge.

# Overview

Metrics are registered on an injected prometheus.Registerer so tests can use
a fresh registry. One *Metrics value serves as the observer of the session
registry, the call instrumentation and every session's log file writer.

# Metrics

- HTTP requests (count, latency, sizes) labeled by route template
- Sessions: active gauge, created, torn down by reason, failed teardown steps
- Tool calls: count by tool and status, duration by tool
- Failure snapshots by outcome
- Session log entries dropped, writers disabled by reason
- Process uptime

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	registry := session.NewRegistry(log, opts).WithMetrics(metrics)

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
