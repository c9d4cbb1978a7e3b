// Package types provides shared data structures for the automation bridge.
//
// This package defines the narrow collaborator interfaces the session core
// depends on, plus the records that flow between instrumentation, the
// session registry and report generation.
//
// Collaborators:
//   - Connection: automation-driver connection (disconnect only)
//   - Process, ExitNotifier: child process owned by a session
//   - OutputManager: artifact persistence under the output directory
//   - Snapshotter: failure page snapshots
//   - Reporter: session report rendering
//
// Records:
//   - ToolCallRecord, CallError: bounded per-session call history
//   - SessionReport: history plus start/end timestamps
//
// Tool Types:
//   - Tool, Parameter: tool descriptors exposed to agents
//   - ExecuteRequest, Result: HTTP execution envelope
package types
