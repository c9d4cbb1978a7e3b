// Package logging provides structured process logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// The process logger is also the synchronous console sink behind every
// per-session telemetry logger, so it writes to stderr by default.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.ForSession("s1").Warn("Flush failed", zap.Error(err))
package logging
