package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultGoogleDailyLimit is the per-key, per-model daily request limit
// assumed for google-genai providers when none is configured.
const DefaultGoogleDailyLimit = 1500

// DefaultGoogleEndpoint is the Google Generative Language API base URL.
const DefaultGoogleEndpoint = "https://generativelanguage.googleapis.com"

// unhealthyAfter is the number of consecutive failures after which a
// provider is reported unhealthy.
const unhealthyAfter = 3

// Provider is one configured upstream.
type Provider struct {
	Name     string
	Type     Type
	Endpoint string

	// Priority orders providers; lower comes first.
	Priority int

	// Timeout bounds a non-streaming exchange, or the wait for response
	// headers of a streaming one.
	Timeout time.Duration

	// Keys is the credential pool. Empty means the client's own
	// Authorization header is forwarded.
	Keys []string

	// DailyLimit is the per-key, per-model request limit. Zero is unlimited.
	DailyLimit int

	enabled atomic.Bool

	health   Health
	healthMu sync.RWMutex
}

// Health tracks a provider's recent request outcomes.
type Health struct {
	IsHealthy             bool
	ConsecutiveFailures   int
	LastError             string
	LastSuccessfulRequest time.Time
	TotalRequests         int64
	FailedRequests        int64
}

// NewProvider creates an enabled provider. The endpoint's trailing slash
// is dropped.
func NewProvider(name string, typ Type, endpoint string) *Provider {
	if endpoint == "" && typ == TypeGoogleGenAI {
		endpoint = DefaultGoogleEndpoint
	}
	p := &Provider{
		Name:     name,
		Type:     typ,
		Endpoint: strings.TrimRight(endpoint, "/"),
		health:   Health{IsHealthy: true},
	}
	p.enabled.Store(true)
	return p
}

// Enabled reports whether the provider may receive traffic.
func (p *Provider) Enabled() bool {
	return p.enabled.Load()
}

// SetEnabled turns the provider on or off without a reload.
func (p *Provider) SetEnabled(v bool) {
	if p.enabled.Swap(v) != v {
		slog.Info("provider toggled", "provider", p.Name, "enabled", v)
	}
}

// HasKeys reports whether the provider holds a credential pool.
func (p *Provider) HasKeys() bool {
	return len(p.Keys) > 0
}

// Health returns a copy of the provider's health.
func (p *Provider) Health() Health {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

// RecordResult updates health after a request.
func (p *Provider) RecordResult(success bool, err error) {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()

	p.health.TotalRequests++
	if success {
		if !p.health.IsHealthy {
			slog.Info("provider marked healthy",
				"provider", p.Name,
				"previous_failures", p.health.ConsecutiveFailures,
			)
		}
		p.health.IsHealthy = true
		p.health.ConsecutiveFailures = 0
		p.health.LastError = ""
		p.health.LastSuccessfulRequest = time.Now()
		return
	}

	p.health.FailedRequests++
	p.health.ConsecutiveFailures++
	if err != nil {
		p.health.LastError = err.Error()
	}
	if p.health.ConsecutiveFailures >= unhealthyAfter && p.health.IsHealthy {
		p.health.IsHealthy = false
		slog.Warn("provider marked unhealthy",
			"provider", p.Name,
			"consecutive_failures", p.health.ConsecutiveFailures,
			"error", err,
		)
	}
}

// Registry holds the configured providers.
type Registry struct {
	byName  map[string]*Provider
	ordered []*Provider
}

// NewRegistry creates a registry. Providers are ordered by priority, then
// by their position in list. Names must be unique.
func NewRegistry(list []*Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Provider, len(list))}
	for _, p := range list {
		if p.Name == "" {
			return nil, &ConfigError{Field: "name", Message: "provider name is required"}
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, &ConfigError{Provider: p.Name, Field: "name", Message: "duplicate provider name"}
		}
		r.byName[p.Name] = p
		r.ordered = append(r.ordered, p)
	}
	sort.SliceStable(r.ordered, func(i, j int) bool {
		return r.ordered[i].Priority < r.ordered[j].Priority
	})
	return r, nil
}

// Get returns the named provider.
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// All returns every provider in priority order.
func (r *Registry) All() []*Provider {
	out := make([]*Provider, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Enabled returns the enabled providers in priority order.
func (r *Registry) Enabled() []*Provider {
	out := make([]*Provider, 0, len(r.ordered))
	for _, p := range r.ordered {
		if p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of providers.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// String summarizes the provider for logs. Keys are counted, never shown.
func (p *Provider) String() string {
	return fmt.Sprintf("%s(%s %s, %d keys)", p.Name, p.Type, p.Endpoint, len(p.Keys))
}
