package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mitchins/SmolRouter/pkg/telemetry/logging"
)

type recordedRequest struct {
	endpoint string
	status   int
}

type fakeRecorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (f *fakeRecorder) RecordRequest(endpoint string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, recordedRequest{endpoint, status})
}

func TestLoggingMiddleware(t *testing.T) {
	rec := &fakeRecorder{}
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(rec))
	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	tests := []struct {
		method       string
		path         string
		wantEndpoint string
		wantStatus   int
	}{
		{http.MethodGet, "/v1/models", "/v1/models", http.StatusOK},
		{http.MethodPost, "/v1/chat/completions", "/v1/chat/completions", http.StatusBadGateway},
		{http.MethodGet, "/nope/123", "unmatched", http.StatusNotFound},
	}

	for _, tt := range tests {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))
	}

	if len(rec.reqs) != len(tests) {
		t.Fatalf("recorded %d requests, want %d", len(rec.reqs), len(tests))
	}
	for i, tt := range tests {
		got := rec.reqs[i]
		if got.endpoint != tt.wantEndpoint || got.status != tt.wantStatus {
			t.Errorf("%s %s recorded %+v, want %s/%d", tt.method, tt.path, got, tt.wantEndpoint, tt.wantStatus)
		}
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	var _ http.Flusher = rw
	rw.Flush()

	if !w.Flushed {
		t.Error("Flush did not reach the underlying writer")
	}
	if rw.statusCode != http.StatusOK || !rw.written {
		t.Errorf("status = %d, written = %v", rw.statusCode, rw.written)
	}
	if rw.Unwrap() != w {
		t.Error("Unwrap returned a different writer")
	}
}

func TestSourceHostMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		remoteAddr string
		host       string
		forwarded  string
		want       string
	}{
		{"ip from remote addr", SourceHostFromIP, "10.0.0.9:51234", "router.lan", "", "10.0.0.9"},
		{"ip from forwarded for", SourceHostFromIP, "127.0.0.1:9999", "router.lan", "192.168.1.20", "192.168.1.20"},
		{"host header", SourceHostFromHost, "10.0.0.9:51234", "router.lan:1234", "", "router.lan"},
		{"host header without port", SourceHostFromHost, "10.0.0.9:51234", "router.lan", "", "router.lan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			mode := tt.mode
			h := chimw.RealIP(SourceHostMiddleware(func() string { return mode })(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					got = logging.GetSourceHost(r.Context())
				}),
			))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Host = tt.host
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("source host = %q, want %q", got, tt.want)
			}
		})
	}
}
