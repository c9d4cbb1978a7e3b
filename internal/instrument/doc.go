// Package instrument wraps tool handlers with call telemetry.
//
// Every wrapped call logs a start line with sanitized arguments and an end
// or failure line with its duration. Sessions that keep history receive a
// bounded ToolCallRecord per call. Failed calls can optionally capture a
// page snapshot and an error-context.json under failures/.
//
// The wrapped handler's error is returned unchanged and panics are
// re-raised after logging.
package instrument
