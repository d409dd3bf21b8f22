package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"

	"github.com/mitchins/SmolRouter/internal/upstreamtest"
	"github.com/mitchins/SmolRouter/pkg/config"
	"github.com/mitchins/SmolRouter/pkg/dispatch"
	"github.com/mitchins/SmolRouter/pkg/telemetry/health"
	"github.com/mitchins/SmolRouter/pkg/telemetry/metrics"
)

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *metrics.Collector) {
	t.Helper()
	config.ApplyDefaults(cfg)
	collector := metrics.NewCollector(cfg.Telemetry.Metrics, prometheus.NewRegistry())
	engine, err := dispatch.New(cfg, dispatch.Options{Observer: collector})
	if err != nil {
		t.Fatalf("dispatch.New() error = %v", err)
	}
	checker := health.New(time.Second)
	checker.RegisterCheck("routing", health.RoutingCheck(engine.Snapshot))

	return NewServer(cfg.Server, Dependencies{
		Engine:      engine,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Health:      checker,
		Version:     "1.2.3",
	}), collector
}

func TestServer_Routes(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()
	up.SetResponse("/v1/chat/completions", upstreamtest.Response{Body: upstreamtest.OpenAIResponse("hello", "m")})
	up.SetResponse("/v1/models", upstreamtest.Response{Body: map[string]any{"object": "list", "data": []any{}}})

	srv, _ := newTestServer(t, &config.Config{DefaultUpstream: up.URL()})
	h := srv.Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"chat", http.MethodPost, "/v1/chat/completions", `{"model":"m","messages":[]}`, http.StatusOK},
		{"chat wrong method", http.MethodGet, "/v1/chat/completions", "", http.StatusMethodNotAllowed},
		{"models", http.MethodGet, "/v1/models", "", http.StatusOK},
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"ready", http.MethodGet, "/ready", "", http.StatusOK},
		{"version", http.MethodGet, "/version", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"unknown", http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestServer_ErrorBodies(t *testing.T) {
	srv, _ := newTestServer(t, &config.Config{DefaultUpstream: "http://127.0.0.1:1"})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/unknown", nil))
	if got := gjson.Get(rec.Body.String(), "error.code").String(); got != "not_found" {
		t.Errorf("404 code = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/chat", nil))
	if got := gjson.Get(rec.Body.String(), "error.code").String(); got != "method_not_allowed" {
		t.Errorf("405 code = %q", got)
	}
}

func TestServer_RequestIDAndMetrics(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()
	up.SetResponse("/v1/chat/completions", upstreamtest.Response{Body: upstreamtest.OpenAIResponse("hello", "m")})

	srv, _ := newTestServer(t, &config.Config{DefaultUpstream: up.URL()})
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"m","messages":[]}`))
	req.Header.Set("X-Request-ID", "client-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-id" {
		t.Errorf("X-Request-ID = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `smolrouter_requests_total{endpoint="/v1/chat/completions",status="200"} 1`) {
		t.Errorf("request not counted:\n%s", body)
	}
	if !strings.Contains(body, "smolrouter_upstream_attempts_total") {
		t.Errorf("upstream attempt not counted:\n%s", body)
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	off := false
	srv, _ := newTestServer(t, &config.Config{
		DefaultUpstream: "http://127.0.0.1:1",
		Telemetry:       config.TelemetryConfig{Metrics: config.MetricsConfig{Enabled: &off}},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 with metrics disabled", rec.Code)
	}
}

func TestServer_ServeAndStop(t *testing.T) {
	srv, _ := newTestServer(t, &config.Config{DefaultUpstream: "http://127.0.0.1:1"})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}

	srv.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after Stop")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestServer_ContextCancel(t *testing.T) {
	srv, _ := newTestServer(t, &config.Config{DefaultUpstream: "http://127.0.0.1:1"})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
