// Package health serves SmolRouter's liveness, readiness and version
// endpoints.
//
// /health answers 200 while the process is serving and runs no checks.
// /ready runs every registered check with a per-check timeout and
// answers 503 when one fails. The router registers:
//
//   - routing: a snapshot is loaded and has at least one upstream
//   - quota: no provider has lost every key to an auth rejection
//   - logsink: the SQLite request log answers a ping, when enabled
//
// Usage:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("routing", health.RoutingCheck(engine.Snapshot))
//	checker.RegisterCheck("quota", health.QuotaCheck(engine.Ledger()))
//	r.Get("/health", checker.LivenessHandler())
//	r.Get("/ready", checker.ReadinessHandler())
package health
