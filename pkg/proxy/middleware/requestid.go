package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mitchins/SmolRouter/pkg/telemetry/logging"
)

const (
	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware gives every request an ID. A client-supplied
// X-Request-ID is kept; otherwise a UUIDv4 is generated.
//
// The request ID is:
//   - stored in the context (logging.GetRequestID)
//   - echoed in the X-Request-ID response header
//
// Example usage:
//
//	r.Use(RequestIDMiddleware)
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}
