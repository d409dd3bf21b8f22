// Package telemetry groups SmolRouter's observability packages.
//
// # Components
//
//   - logging: slog setup with API key redaction and request context fields
//   - metrics: Prometheus request, upstream, quota and failover metrics
//   - tracing: OpenTelemetry spans for requests and upstream attempts
//   - health: /health, /ready and /version endpoints
//
// Each is configured from the telemetry section of the config file and
// wired together by the run command.
package telemetry
