package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// SourceHostKey is the context key for the client's host.
	SourceHostKey contextKey = "source_host"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithSourceHost adds the client's host to the context.
func WithSourceHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, SourceHostKey, host)
}

// GetSourceHost retrieves the client's host from the context.
func GetSourceHost(ctx context.Context) string {
	if host, ok := ctx.Value(SourceHostKey).(string); ok {
		return host
	}
	return ""
}

// extractContextFields returns the context's log fields as key-value
// pairs suitable for With.
func extractContextFields(ctx context.Context) []any {
	var fields []any
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if host := GetSourceHost(ctx); host != "" {
		fields = append(fields, "source_host", host)
	}
	return fields
}
