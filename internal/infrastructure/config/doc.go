// Package config provides 12-factor configuration for the automation bridge.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags in cmd/server override environment variables.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: process log level and output format
//   - Telemetry: per-session log sink (level, file logging, buffer, flush interval)
//   - Session: timeout, sweep, kill timeout, reporting, failure snapshots
//   - Browser: automation driver type, headless mode, host command
//   - RateLimit: per-session rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
//   - SESSION_LOG_LEVEL, SESSION_FILE_LOGGING, OUTPUT_DIR
//   - LOG_BUFFER_SIZE, LOG_FLUSH_INTERVAL_MS, LOG_COMPRESS_ROTATED
//   - SESSION_TIMEOUT, SESSION_SWEEP_INTERVAL, SESSION_KILL_TIMEOUT
//   - SESSION_REPORTING, SESSION_REPORT_FORMAT, FAILURE_SNAPSHOTS
//   - BROWSER, BROWSER_HEADLESS, AUTOMATION_HOST_CMD
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
