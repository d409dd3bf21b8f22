package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for SmolRouter.
type Config struct {
	// Server contains the inbound HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// DefaultUpstream receives requests that match no route. It is a base
	// URL or a name from Servers.
	DefaultUpstream string `yaml:"default_upstream"`

	// Servers names upstream base URLs so routes and aliases can refer to
	// them by name.
	Servers map[string]string `yaml:"servers"`

	// Routes are evaluated in order; the first match wins.
	Routes []RouteConfig `yaml:"routes"`

	// Aliases map a logical model name to an ordered instance list.
	Aliases map[string][]InstanceConfig `yaml:"aliases"`

	// ModelMap rewrites model names before they are sent upstream.
	ModelMap ModelMap `yaml:"model_map"`

	// Providers lists the configured upstream providers.
	Providers []ProviderConfig `yaml:"providers"`

	// Routing contains request classification settings.
	Routing RoutingConfig `yaml:"routing"`

	// Transforms controls response content rewriting.
	Transforms TransformsConfig `yaml:"transforms"`

	// Quota contains the key ledger's settings.
	Quota QuotaConfig `yaml:"quota"`

	// Funnel throttles google-genai upstream calls.
	Funnel FunnelConfig `yaml:"funnel"`

	// LogSink configures the request log.
	LogSink LogSinkConfig `yaml:"logsink"`

	// Blobs configures raw request/response body capture.
	Blobs BlobsConfig `yaml:"blobs"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the inbound HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:1234"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response. Streams can run long, so
	// zero (no limit) is the default.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits inbound request bodies.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// RouteConfig is one routing rule.
type RouteConfig struct {
	Match MatchConfig  `yaml:"match"`
	Route TargetConfig `yaml:"route"`
}

// MatchConfig holds a rule's criteria. Empty criteria match everything.
type MatchConfig struct {
	// SourceHost must equal the client's host.
	SourceHost string `yaml:"source_host"`

	// Model is an exact model name or a /regex/.
	Model string `yaml:"model"`
}

// TargetConfig is where a matching request goes.
type TargetConfig struct {
	// Upstream is a server name or a base URL.
	Upstream string `yaml:"upstream"`

	// Model replaces the requested model when set.
	Model string `yaml:"model"`
}

// InstanceConfig is one (server, model) pair of an alias. It can be
// written as a mapping or as the shorthand string "server/model".
type InstanceConfig struct {
	Server string `yaml:"server"`
	Model  string `yaml:"model"`
}

// UnmarshalYAML accepts both the mapping and the "server/model" forms.
func (ic *InstanceConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		server, model, ok := strings.Cut(node.Value, "/")
		if !ok || server == "" || model == "" {
			return fmt.Errorf("line %d: instance %q must be \"server/model\"", node.Line, node.Value)
		}
		ic.Server, ic.Model = server, model
		return nil
	}
	type plain InstanceConfig
	return node.Decode((*plain)(ic))
}

// ProviderConfig contains configuration for one upstream provider.
type ProviderConfig struct {
	// Name identifies the provider in routes, aliases and logs.
	Name string `yaml:"name"`

	// Type is the wire protocol: "openai", "ollama" or "google-genai".
	// Default: "openai"
	Type string `yaml:"type"`

	// URL is the provider's base URL. google-genai defaults to Google's
	// public endpoint.
	URL string `yaml:"url"`

	// Priority orders providers for model listing; lower comes first.
	Priority int `yaml:"priority"`

	// Timeout bounds one upstream exchange.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Enabled turns the provider on or off. Nil means enabled.
	Enabled *bool `yaml:"enabled"`

	// APIKeys is the inline credential pool.
	APIKeys []string `yaml:"api_keys"`

	// APIKeysFile holds one key per line; merged after APIKeys.
	APIKeysFile string `yaml:"api_keys_file"`

	// MaxRequestsPerDay is the per-key, per-model limit. Zero means
	// unlimited, except for google-genai which defaults to 1500.
	MaxRequestsPerDay int `yaml:"max_requests_per_day"`

	// Quota controls when exhausted keys come back.
	Quota ProviderQuotaConfig `yaml:"quota"`
}

// IsEnabled reports whether the provider is enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ProviderQuotaConfig selects a provider's reset policy.
type ProviderQuotaConfig struct {
	// ResetTimezone is the IANA zone whose midnight resets daily quotas.
	// Default: "America/Los_Angeles"
	ResetTimezone string `yaml:"reset_timezone"`

	// ResetWindow switches to a rolling window of this length when set.
	ResetWindow time.Duration `yaml:"reset_window"`
}

// RoutingConfig contains request classification settings.
type RoutingConfig struct {
	// SourceHostFrom selects what routes' source_host is compared with:
	// "ip" (the client address) or "host" (the Host header).
	// Default: "ip"
	SourceHostFrom string `yaml:"source_host_from"`
}

// TransformsConfig controls response content rewriting.
type TransformsConfig struct {
	// StripThink removes <think>...</think> blocks.
	// Default: true
	StripThink *bool `yaml:"strip_think"`

	// ThinkOpen and ThinkClose override the think markers.
	ThinkOpen  string `yaml:"think_open"`
	ThinkClose string `yaml:"think_close"`

	// StripJSONFences unwraps ```json fences.
	// Default: false
	StripJSONFences bool `yaml:"strip_json_fences"`
}

// QuotaConfig contains the key ledger's settings.
type QuotaConfig struct {
	// SweepSchedule is the cron schedule of the reset sweeper.
	// Default: "@every 1m"
	SweepSchedule string `yaml:"sweep_schedule"`

	// ErrorThreshold is the consecutive error count after which a key is
	// skipped until its reset.
	// Default: 20
	ErrorThreshold int `yaml:"error_threshold"`
}

// FunnelConfig throttles google-genai upstream calls.
type FunnelConfig struct {
	// Enabled turns the funnel on.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// MaxConcurrent caps in-flight requests.
	// Default: 3
	MaxConcurrent int `yaml:"max_concurrent"`

	// MaxRequestsPerWindow caps requests per rolling window.
	// Default: 12
	MaxRequestsPerWindow int `yaml:"max_requests_per_window"`

	// Window is the rolling window length.
	// Default: 4m
	Window time.Duration `yaml:"window"`
}

// IsEnabled reports whether the funnel is on.
func (f FunnelConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// LogSinkConfig configures the request log.
type LogSinkConfig struct {
	// Enabled turns the SQLite request log on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// SQLitePath is the database file.
	// Default: "data/requests.db"
	SQLitePath string `yaml:"sqlite_path"`

	// BufferSize is the write queue length. Entries beyond it are dropped.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`
}

// BlobsConfig configures raw body capture.
type BlobsConfig struct {
	// Enabled turns body capture on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Dir is the root directory.
	// Default: "data/blobs"
	Dir string `yaml:"dir"`

	// MaxSize truncates larger bodies.
	// Default: 10485760 (10MB)
	MaxSize int64 `yaml:"max_size"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "text"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// Redact masks API keys and bearer tokens in log output.
	// Default: true
	Redact *bool `yaml:"redact"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "smolrouter"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports whether metrics are served.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// TracingConfig contains OpenTelemetry tracing configuration. Spans are
// exported over OTLP/gRPC.
type TracingConfig struct {
	// Enabled controls whether spans are recorded and exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP collector address, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "smolrouter"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the collector connection.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// boolPtr returns a pointer to b.
func boolPtr(b bool) *bool {
	return &b
}
