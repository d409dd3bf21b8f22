package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:1234"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = int64(10 * 1024 * 1024)

	// Upstream defaults
	DefaultUpstream        = "http://127.0.0.1:8000"
	DefaultProviderType    = "openai"
	DefaultProviderTimeout = 30 * time.Second
	DefaultGoogleDailyCap  = 1500
	DefaultResetTimezone   = "America/Los_Angeles"

	// Routing defaults
	DefaultSourceHostFrom = "ip"

	// Quota defaults
	DefaultSweepSchedule  = "@every 1m"
	DefaultErrorThreshold = 20

	// Funnel defaults
	DefaultFunnelMaxConcurrent = 3
	DefaultFunnelMaxPerWindow  = 12
	DefaultFunnelWindow        = 4 * time.Minute

	// Log sink defaults
	DefaultLogSinkPath       = "data/requests.db"
	DefaultLogSinkBufferSize = 1000
	DefaultBlobsDir          = "data/blobs"
	DefaultBlobsMaxSize      = int64(10 * 1024 * 1024)

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "text"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "smolrouter"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 1.0
	DefaultTracingService   = "smolrouter"
	DefaultTracingTimeout   = 10 * time.Second
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// A bare config forwards everything to a local server.
	if cfg.DefaultUpstream == "" && len(cfg.Routes) == 0 && len(cfg.Aliases) == 0 && len(cfg.Providers) == 0 {
		cfg.DefaultUpstream = DefaultUpstream
	}

	for i := range cfg.Providers {
		applyProviderDefaults(&cfg.Providers[i])
	}

	if cfg.Routing.SourceHostFrom == "" {
		cfg.Routing.SourceHostFrom = DefaultSourceHostFrom
	}

	// Transforms: think stripping is on unless switched off.
	if cfg.Transforms.StripThink == nil {
		cfg.Transforms.StripThink = boolPtr(true)
	}

	// Quota defaults
	if cfg.Quota.SweepSchedule == "" {
		cfg.Quota.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Quota.ErrorThreshold == 0 {
		cfg.Quota.ErrorThreshold = DefaultErrorThreshold
	}

	// Funnel defaults
	if cfg.Funnel.Enabled == nil {
		cfg.Funnel.Enabled = boolPtr(true)
	}
	if cfg.Funnel.MaxConcurrent == 0 {
		cfg.Funnel.MaxConcurrent = DefaultFunnelMaxConcurrent
	}
	if cfg.Funnel.MaxRequestsPerWindow == 0 {
		cfg.Funnel.MaxRequestsPerWindow = DefaultFunnelMaxPerWindow
	}
	if cfg.Funnel.Window == 0 {
		cfg.Funnel.Window = DefaultFunnelWindow
	}

	// Log sink defaults
	if cfg.LogSink.SQLitePath == "" {
		cfg.LogSink.SQLitePath = DefaultLogSinkPath
	}
	if cfg.LogSink.BufferSize == 0 {
		cfg.LogSink.BufferSize = DefaultLogSinkBufferSize
	}
	if cfg.Blobs.Dir == "" {
		cfg.Blobs.Dir = DefaultBlobsDir
	}
	if cfg.Blobs.MaxSize == 0 {
		cfg.Blobs.MaxSize = DefaultBlobsMaxSize
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.Redact == nil {
		cfg.Telemetry.Logging.Redact = boolPtr(true)
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		cfg.Telemetry.Metrics.Enabled = boolPtr(true)
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}

// applyProviderDefaults fills one provider's zero fields.
func applyProviderDefaults(p *ProviderConfig) {
	if p.Type == "" {
		p.Type = DefaultProviderType
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultProviderTimeout
	}
	if p.Type == "google-genai" && p.MaxRequestsPerDay == 0 {
		p.MaxRequestsPerDay = DefaultGoogleDailyCap
	}
	if p.Quota.ResetTimezone == "" && p.Quota.ResetWindow == 0 {
		p.Quota.ResetTimezone = DefaultResetTimezone
	}
}

// ThinkStripping reports whether think blocks are stripped.
func (t TransformsConfig) ThinkStripping() bool {
	return t.StripThink == nil || *t.StripThink
}

// Redacting reports whether log redaction is on.
func (l LoggingConfig) Redacting() bool {
	return l.Redact == nil || *l.Redact
}
