// Package middleware provides the HTTP middleware in front of the router's
// handlers.
//
// The chain, from outermost:
//
//   - RecoveryMiddleware turns handler panics into OpenAI-style 500s
//   - tracing.HTTPMiddleware starts the server span
//   - chi's RealIP rewrites RemoteAddr from X-Forwarded-For / X-Real-IP
//   - RequestIDMiddleware assigns or keeps X-Request-ID
//   - SourceHostMiddleware records the host routes are matched against
//   - LoggingMiddleware logs the finished request and feeds metrics
//
// RequestIDMiddleware and SourceHostMiddleware run before logging so the
// completion line carries both fields.
package middleware
