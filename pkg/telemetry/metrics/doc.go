// Package metrics exports SmolRouter's Prometheus metrics.
//
// # Overview
//
// The Collector keeps its metrics on its own registry and serves them
// through Handler. Two kinds of metrics are kept:
//
//   - Event metrics, updated by the HTTP layer and the dispatch engine as
//     requests and upstream attempts happen. The Collector implements the
//     engine's Observer interface.
//   - State metrics, read on each scrape from the quota ledger, the
//     failover counters and the request log sink.
//
// # Metrics
//
//	smolrouter_requests_total{endpoint,status}
//	smolrouter_request_duration_seconds{endpoint}
//	smolrouter_upstream_attempts_total{provider,outcome}
//	smolrouter_funnel_waits_total
//	smolrouter_failovers_total{alias}
//	smolrouter_quota_key_status{provider,model,status}
//	smolrouter_quota_resets_total{provider}
//	smolrouter_logsink_dropped_total
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	collector.Watch(metrics.Sources{
//		Ledger:    engine.Ledger(),
//		Failovers: engine.FailoverStats(),
//		Dropped:   sink.Dropped,
//	})
//	router.Handle("/metrics", collector.Handler())
//
// The quota_key_status model label comes from client requests. It is
// capped, and models beyond the cap are reported as "other".
package metrics
