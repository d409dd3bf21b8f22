package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mitchins/SmolRouter/internal/upstreamtest"
	"github.com/mitchins/SmolRouter/pkg/config"
	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/quota"
	"github.com/mitchins/SmolRouter/pkg/routing"
)

func TestReload_KeepsSnapshotOnError(t *testing.T) {
	e, _, _ := newTestEngine(t, &config.Config{DefaultUpstream: "http://127.0.0.1:9000"})
	before := e.Snapshot()

	bad := &config.Config{Routes: []config.RouteConfig{{Match: config.MatchConfig{Model: "x"}}}}
	config.ApplyDefaults(bad)

	err := e.Reload(bad)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Reload() error = %v, want ConfigError", err)
	}
	if cfgErr.Field != "routes[0].route.upstream" {
		t.Errorf("Field = %q", cfgErr.Field)
	}
	if e.Snapshot() != before {
		t.Error("snapshot replaced by a failed reload")
	}
}

func TestReload_EnabledFlags(t *testing.T) {
	cfg := func(url string) *config.Config {
		c := &config.Config{
			DefaultUpstream: "a",
			Providers: []config.ProviderConfig{
				{Name: "a", URL: url},
				{Name: "b", URL: "http://127.0.0.1:9001"},
			},
		}
		config.ApplyDefaults(c)
		return c
	}

	e, _, _ := newTestEngine(t, cfg("http://127.0.0.1:9000"))
	if !e.SetProviderEnabled("a", false) || !e.SetProviderEnabled("b", false) {
		t.Fatal("SetProviderEnabled() = false for a configured provider")
	}
	if e.SetProviderEnabled("missing", false) {
		t.Error("SetProviderEnabled() = true for an unknown provider")
	}

	if err := e.Reload(cfg("http://127.0.0.1:9002")); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	a, _ := e.Snapshot().Registry.Get("a")
	b, _ := e.Snapshot().Registry.Get("b")
	if !a.Enabled() {
		t.Error("changed provider kept its runtime flag")
	}
	if b.Enabled() {
		t.Error("unchanged provider lost its runtime flag")
	}
}

func TestReload_LedgerState(t *testing.T) {
	cfg := func(keys ...string) *config.Config {
		c := geminiConfig("http://127.0.0.1:9000", keys...)
		config.ApplyDefaults(c)
		return c
	}

	e, _, _ := newTestEngine(t, cfg("k1", "k2"))
	e.Ledger().RecordQuotaRejection("gemini", "k1", "gemini-2.0-flash", time.Hour)

	if err := e.Reload(cfg("k1", "k3")); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	byKey := make(map[string]quota.Status)
	for _, st := range e.Ledger().Stats("gemini") {
		byKey[st.Key] = st.Status
	}
	if byKey[quota.Fingerprint("k1")] != quota.StatusExhausted {
		t.Errorf("k1 status = %q, want exhausted kept", byKey[quota.Fingerprint("k1")])
	}
	if _, ok := byKey[quota.Fingerprint("k2")]; ok {
		t.Error("removed key still tracked")
	}

	noKeys := &config.Config{DefaultUpstream: "http://127.0.0.1:9000"}
	config.ApplyDefaults(noKeys)
	if err := e.Reload(noKeys); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := e.Ledger().Providers(); len(got) != 0 {
		t.Errorf("ledger providers = %v, want none", got)
	}
}

func TestReload_Funnel(t *testing.T) {
	c := &config.Config{DefaultUpstream: "http://127.0.0.1:9000"}
	e, _, _ := newTestEngine(t, c)
	first := e.Funnel()

	if err := e.Reload(c); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if e.Funnel() != first {
		t.Error("funnel replaced although its settings did not change")
	}

	changed := *c
	changed.Funnel.MaxConcurrent = 1
	if err := e.Reload(&changed); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if e.Funnel() == first {
		t.Error("funnel kept after its settings changed")
	}
	if got := e.Funnel().Config().MaxConcurrent; got != 1 {
		t.Errorf("MaxConcurrent = %d", got)
	}
}

func TestSnapshot_Plan(t *testing.T) {
	cfg := &config.Config{
		DefaultUpstream: "http://127.0.0.1:9000",
		Servers:         map[string]string{"gpu": "http://10.0.0.5:8000"},
		Routes: []config.RouteConfig{
			{Match: config.MatchConfig{SourceHost: "10.0.0.7"}, Route: config.TargetConfig{Upstream: "gpu"}},
			{Match: config.MatchConfig{Model: "/^qwen/"}, Route: config.TargetConfig{Upstream: "gpu", Model: "qwen2.5"}},
		},
		Aliases: map[string][]config.InstanceConfig{
			"qwen-fast": {{Server: "gpu", Model: "qwen2.5:7b"}},
		},
	}
	config.ApplyDefaults(cfg)
	snap, err := BuildSnapshot(cfg)
	if err != nil {
		t.Fatalf("BuildSnapshot() error = %v", err)
	}

	tests := []struct {
		name      string
		host      string
		model     string
		wantLabel string
		wantAlias bool
		want      routing.Instance
	}{
		{"alias wins over route", "10.0.0.1", "qwen-fast", "qwen-fast", true, routing.Instance{Server: "gpu", Model: "qwen2.5:7b"}},
		{"host route", "10.0.0.7", "llama3", "route[0]", false, routing.Instance{Server: "gpu", Model: "llama3"}},
		{"model route override", "10.0.0.1", "qwen-coder", "route[1]", false, routing.Instance{Server: "gpu", Model: "qwen2.5"}},
		{"default", "10.0.0.1", "llama3", "default", false, routing.Instance{Server: "http://127.0.0.1:9000", Model: "llama3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := snap.Plan(tt.host, tt.model)
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if plan.Label != tt.wantLabel || plan.Alias != tt.wantAlias {
				t.Errorf("plan = %q alias=%v, want %q alias=%v", plan.Label, plan.Alias, tt.wantLabel, tt.wantAlias)
			}
			if len(plan.Instances) != 1 || plan.Instances[0] != tt.want {
				t.Errorf("instances = %+v, want %+v", plan.Instances, tt.want)
			}
			if _, ok := snap.Provider(plan.Instances[0].Server); !ok {
				t.Errorf("instance server %q has no provider", plan.Instances[0].Server)
			}
		})
	}

	if url, ok := snap.ServerURL("gpu"); !ok || url != "http://10.0.0.5:8000" {
		t.Errorf("ServerURL(gpu) = %q, %v", url, ok)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed", &providers.MalformedRequestError{Reason: "bad"}, http.StatusBadRequest, "invalid_request_error"},
		{"no upstream", &NoUpstreamError{Model: "x"}, http.StatusServiceUnavailable, "no_upstream_configured"},
		{"timeout", &providers.TimeoutError{Provider: "p", Timeout: time.Second}, http.StatusGatewayTimeout, "upstream_timeout"},
		{"unreachable", &providers.UnreachableError{Provider: "p", Cause: errors.New("refused")}, http.StatusBadGateway, "upstream_unreachable"},
		{"server error", &providers.StatusError{Provider: "p", StatusCode: 500, Outcome: providers.OutcomeServerError}, http.StatusBadGateway, "upstream_error"},
		{"upstream quota", &providers.StatusError{Provider: "p", StatusCode: 429, Outcome: providers.OutcomeQuota}, http.StatusTooManyRequests, "quota_exhausted"},
		{"parse", &providers.ParseError{Provider: "p", Cause: errors.New("eof")}, http.StatusBadGateway, "upstream_invalid_response"},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), StatusClientClosedRequest, "client_closed_request"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "upstream_timeout"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		{
			"alias all quota",
			&routing.AllInstancesFailedError{
				Alias: "coder",
				Attempts: []routing.Attempt{
					{Err: &providers.StatusError{Outcome: providers.OutcomeQuota, RetryAfter: 30 * time.Second}},
					{Err: &quota.QuotaExhaustedError{Provider: "g", RetryAfter: 10 * time.Second}},
				},
				LastError: &quota.QuotaExhaustedError{Provider: "g", RetryAfter: 10 * time.Second},
			},
			http.StatusTooManyRequests,
			"all_upstreams_failed",
		},
		{
			"alias last timeout",
			&routing.AllInstancesFailedError{
				Alias:     "coder",
				Attempts:  []routing.Attempt{{Err: &providers.TimeoutError{Provider: "p"}}},
				LastError: &providers.TimeoutError{Provider: "p"},
			},
			http.StatusGatewayTimeout,
			"all_upstreams_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Describe(tt.err)
			if info.Status != tt.wantStatus || info.Code != tt.wantCode {
				t.Errorf("Describe() = %d %s, want %d %s", info.Status, info.Code, tt.wantStatus, tt.wantCode)
			}
			if info.Message == "" {
				t.Error("empty message")
			}
		})
	}

	info := Describe(&routing.AllInstancesFailedError{
		Alias: "coder",
		Attempts: []routing.Attempt{
			{Err: &providers.StatusError{Outcome: providers.OutcomeQuota, RetryAfter: 30 * time.Second}},
			{Err: &quota.QuotaExhaustedError{RetryAfter: 10 * time.Second}},
		},
	})
	if info.RetryAfter != 10*time.Second {
		t.Errorf("RetryAfter = %v, want the soonest hint", info.RetryAfter)
	}
}

func TestModels(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()
	up.SetResponse("/api/tags", upstreamtest.Response{Body: upstreamtest.OllamaTags("llama3:8b", "qwen")})

	cfg := ollamaProvider(up.URL())
	cfg.Aliases = map[string][]config.InstanceConfig{
		"coder": {{Server: "local", Model: "qwen"}},
		"qwen":  {{Server: "local", Model: "qwen"}},
	}
	e, _, _ := newTestEngine(t, cfg)

	if e.ProxiesModels() {
		t.Error("ProxiesModels() = true with providers configured")
	}

	models := e.Models(context.Background())
	var ids []string
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	want := []string{"llama3:8b", "qwen", "coder"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if models[2].Provider != AliasOwner {
		t.Errorf("alias owner = %q", models[2].Provider)
	}

	body, err := RenderOpenAIModels(models)
	if err != nil {
		t.Fatalf("RenderOpenAIModels() error = %v", err)
	}
	var listed []string
	for _, m := range gjson.GetBytes(body, "data").Array() {
		listed = append(listed, m.Get("id").String())
	}
	if fmt.Sprint(listed) != "[llama3:8b llama3-8b qwen coder]" {
		t.Errorf("listed = %v", listed)
	}
	if gjson.GetBytes(body, "object").String() != "list" {
		t.Error("missing object: list")
	}

	tags, err := RenderOllamaTags(models)
	if err != nil {
		t.Fatalf("RenderOllamaTags() error = %v", err)
	}
	if n := len(gjson.GetBytes(tags, "models").Array()); n != 4 {
		t.Errorf("tags = %d, want 4", n)
	}
}

func TestUpstreamModels(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()
	up.SetResponse("/v1/models", upstreamtest.Response{Body: map[string]any{
		"object": "list",
		"data":   []map[string]any{{"id": "served", "object": "model"}},
	}})

	e, _, _ := newTestEngine(t, &config.Config{DefaultUpstream: up.URL() + "/v1"})
	if !e.ProxiesModels() {
		t.Fatal("ProxiesModels() = false for a bare default upstream")
	}

	resp, err := e.UpstreamModels(context.Background())
	if err != nil {
		t.Fatalf("UpstreamModels() error = %v", err)
	}
	if got := gjson.GetBytes(resp.Body, "data.0.id").String(); got != "served" {
		t.Errorf("id = %q", got)
	}
}
