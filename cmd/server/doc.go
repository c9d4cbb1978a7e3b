// Package main is the entry point for the miniapp automation bridge.
//
// The server exposes automation tools over REST. Sessions are keyed by a
// caller-chosen id and torn down on DELETE or after sitting idle.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML file (-config or MCP_CONFIG)
//   - CLI flags (override both)
//
// Usage:
//
//	server -config mcp.toml -port 8000 -output .mcp-output -log-level debug
package main
