// Package middleware provides the HTTP middleware stack of the bridge.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Token bucket rate limiting keyed per session
//   - RequestID: Request id propagation through X-Request-ID
//   - AccessLog: One structured log line per request
//
// Rate Limiting:
//   - Keyed by the :id session parameter, falling back to client IP
//   - Idle limiters evicted after IdleTTL
//   - Global rate limiting option
//
// Example Usage:
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig(), middleware.SessionKey))
package middleware
