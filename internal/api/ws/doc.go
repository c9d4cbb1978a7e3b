// Package ws streams a session's tool call records over WebSocket.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Stream opened
//   - call: One tool call record
//   - pong: Ping reply
//   - closed: The session was torn down
//   - error: Unknown client message
//
// Example Usage:
//
//	handler := ws.NewHandler(sessions, logger)
//	router.GET("/sessions/:id/stream", handler.HandleConnection)
package ws
