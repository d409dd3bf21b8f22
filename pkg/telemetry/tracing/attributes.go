package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for routing decisions. HTTP attributes use the
// OpenTelemetry names.
const (
	AttrRequestID      = "smolrouter.request_id"
	AttrSourceHost     = "smolrouter.source_host"
	AttrModel          = "smolrouter.model"
	AttrPlan           = "smolrouter.plan"
	AttrServer         = "smolrouter.server"
	AttrUpstreamModel  = "smolrouter.upstream_model"
	AttrProvider       = "smolrouter.provider"
	AttrKeyFingerprint = "smolrouter.key"
	AttrStream         = "smolrouter.stream"
)

// HTTPAttributes describes an inbound request.
func HTTPAttributes(r *http.Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("http.method", r.Method),
		attribute.String("http.target", r.URL.Path),
		attribute.String("user_agent.original", r.UserAgent()),
	}
}

// RequestAttributes describes a dispatched request before its body is
// parsed.
func RequestAttributes(requestID, sourceHost string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrSourceHost, sourceHost),
	}
}

// InstanceAttributes describes one attempt target.
func InstanceAttributes(server, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServer, server),
		attribute.String(AttrUpstreamModel, model),
	}
}

// KeyAttributes names the provider and the key fingerprint in use. The
// fingerprint never contains the key itself.
func KeyAttributes(provider, fingerprint string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProvider, provider),
		attribute.String(AttrKeyFingerprint, fingerprint),
	}
}
