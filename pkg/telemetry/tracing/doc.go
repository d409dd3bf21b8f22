// Package tracing provides OpenTelemetry tracing for SmolRouter.
//
// A Tracer installs the SDK tracer provider globally and exports spans over
// OTLP/gRPC. The router records:
//
//   - one server span per inbound request (HTTPMiddleware)
//   - one "dispatch" span per routed request, with the plan label
//   - one "dispatch.attempt" span per instance tried, with the provider
//     and the fingerprint of the key used
//
// Outgoing upstream requests carry W3C traceparent headers (Inject), so an
// upstream that traces joins the same trace.
//
// When tracing is disabled no provider is installed and every span is a
// no-op.
//
// # Usage
//
//	tracer, err := tracing.New(tracing.Config{Enabled: true, Endpoint: "localhost:4317"})
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracing.Start(ctx, "dispatch", tracing.RequestAttributes(id, host)...)
//	resp, err := engine.Dispatch(ctx, req)
//	tracing.End(span, err)
package tracing
