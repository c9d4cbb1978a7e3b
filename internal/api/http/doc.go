// Package http exposes the session and tool registries over REST.
//
// Routes:
//
//	GET    /health
//	GET    /tools
//	POST   /tools/discover
//	GET    /sessions
//	GET    /sessions/:id
//	GET    /sessions/:id/history
//	GET    /sessions/:id/artifacts
//	DELETE /sessions/:id
//	POST   /sessions/:id/tools/:tool
package http
