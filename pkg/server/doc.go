// Package server wires the HTTP handlers into a chi router and runs the
// listener.
//
// # Routes
//
//	POST /v1/chat/completions   OpenAI chat
//	POST /v1/completions        OpenAI legacy completions
//	GET  /v1/models             OpenAI model list
//	POST /api/generate          Ollama generate
//	POST /api/chat              Ollama chat
//	GET  /api/tags              Ollama model list
//	GET  /health                liveness
//	GET  /ready                 readiness (registered health checks)
//	GET  /version               build information
//	GET  /metrics               Prometheus, when enabled
//
// Unknown paths and wrong methods get OpenAI-style 404 and 405 bodies.
//
// # Usage
//
//	srv := server.NewServer(cfg.Server, server.Dependencies{
//	    Engine:      engine,
//	    Metrics:     collector,
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	    Health:      checker,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start returns after a graceful shutdown triggered by ctx, SIGINT,
// SIGTERM or Stop. In-flight requests, including open streams, get up to
// server.shutdown_timeout to finish.
//
// The source host used for route matching is read from the engine's
// current snapshot on every request, so a reload that changes
// routing.source_host_from takes effect without a restart.
package server
