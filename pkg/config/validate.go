package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/quota"
	"github.com/mitchins/SmolRouter/pkg/routing"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "routes[2].match.model").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProviders(cfg.Providers)...)

	refs := newUpstreamRefs(cfg)
	errs = append(errs, validateServers(cfg.Servers)...)
	if cfg.DefaultUpstream != "" && !refs.valid(cfg.DefaultUpstream) {
		errs = append(errs, FieldError{
			Field:   "default_upstream",
			Message: fmt.Sprintf("%q is not a server name, provider name or http(s) URL", cfg.DefaultUpstream),
		})
	}
	errs = append(errs, validateRoutes(cfg.Routes, refs)...)
	errs = append(errs, validateAliases(cfg.Aliases, refs)...)
	errs = append(errs, validateModelMap(cfg.ModelMap)...)

	errs = append(errs, validateRouting(&cfg.Routing)...)
	errs = append(errs, validateTransforms(&cfg.Transforms)...)
	errs = append(errs, validateQuota(&cfg.Quota)...)
	errs = append(errs, validateFunnel(&cfg.Funnel)...)
	errs = append(errs, validateLogSink(&cfg.LogSink, &cfg.Blobs)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates the inbound server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address: %v", err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be non-negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be non-negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be non-negative"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be non-negative"})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be positive"})
	}

	return errs
}

// validateProviders validates provider configurations.
func validateProviders(list []ProviderConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]int, len(list))

	for i, p := range list {
		prefix := fmt.Sprintf("providers[%d]", i)

		if p.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "name is required"})
		} else if first, dup := seen[p.Name]; dup {
			errs = append(errs, FieldError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate provider name %q (first defined at providers[%d])", p.Name, first),
			})
		} else {
			seen[p.Name] = i
		}

		typ, err := providers.ParseType(p.Type)
		if err != nil {
			errs = append(errs, FieldError{Field: prefix + ".type", Message: err.Error()})
		}

		switch {
		case p.URL == "" && typ != providers.TypeGoogleGenAI:
			errs = append(errs, FieldError{Field: prefix + ".url", Message: "url is required"})
		case p.URL != "" && !isHTTPURL(p.URL):
			errs = append(errs, FieldError{
				Field:   prefix + ".url",
				Message: fmt.Sprintf("invalid URL %q: must be an absolute http(s) URL", p.URL),
			})
		}

		if p.Timeout < 0 {
			errs = append(errs, FieldError{Field: prefix + ".timeout", Message: "timeout must be non-negative"})
		}
		if p.MaxRequestsPerDay < 0 {
			errs = append(errs, FieldError{Field: prefix + ".max_requests_per_day", Message: "must be non-negative"})
		}
		if p.Quota.ResetWindow < 0 {
			errs = append(errs, FieldError{Field: prefix + ".quota.reset_window", Message: "reset window must be non-negative"})
		}
		if _, err := quota.NewPolicy(p.Quota.ResetTimezone, p.Quota.ResetWindow); err != nil {
			errs = append(errs, FieldError{Field: prefix + ".quota.reset_timezone", Message: err.Error()})
		}
	}

	return errs
}

// validateServers validates the named server table.
func validateServers(servers map[string]string) []FieldError {
	var errs []FieldError
	for _, name := range sortedKeys(servers) {
		if u := servers[name]; !isHTTPURL(u) {
			errs = append(errs, FieldError{
				Field:   "servers." + name,
				Message: fmt.Sprintf("invalid URL %q: must be an absolute http(s) URL", u),
			})
		}
	}
	return errs
}

// validateRoutes validates routing rules.
func validateRoutes(routes []RouteConfig, refs upstreamRefs) []FieldError {
	var errs []FieldError
	for i, r := range routes {
		prefix := fmt.Sprintf("routes[%d]", i)
		if _, err := routing.CompilePattern(r.Match.Model); err != nil {
			errs = append(errs, FieldError{Field: prefix + ".match.model", Message: err.Error()})
		}
		switch {
		case r.Route.Upstream == "":
			errs = append(errs, FieldError{Field: prefix + ".route.upstream", Message: "upstream is required"})
		case !refs.valid(r.Route.Upstream):
			errs = append(errs, FieldError{
				Field:   prefix + ".route.upstream",
				Message: fmt.Sprintf("%q is not a server name, provider name or http(s) URL", r.Route.Upstream),
			})
		}
	}
	return errs
}

// validateAliases validates alias instance lists.
func validateAliases(aliases map[string][]InstanceConfig, refs upstreamRefs) []FieldError {
	var errs []FieldError
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		insts := aliases[name]
		prefix := "aliases." + name
		if len(insts) == 0 {
			errs = append(errs, FieldError{Field: prefix, Message: "alias must list at least one instance"})
			continue
		}
		for i, inst := range insts {
			field := fmt.Sprintf("%s[%d]", prefix, i)
			if inst.Model == "" {
				errs = append(errs, FieldError{Field: field + ".model", Message: "model is required"})
			}
			switch {
			case inst.Server == "":
				errs = append(errs, FieldError{Field: field + ".server", Message: "server is required"})
			case !refs.valid(inst.Server):
				errs = append(errs, FieldError{
					Field:   field + ".server",
					Message: fmt.Sprintf("%q is not a server name, provider name or http(s) URL", inst.Server),
				})
			}
		}
	}
	return errs
}

// validateModelMap compiles the rewrite table.
func validateModelMap(mm ModelMap) []FieldError {
	if _, err := routing.NewRewriter(mm.Mappings()); err != nil {
		return []FieldError{{Field: "model_map", Message: err.Error()}}
	}
	return nil
}

func validateRouting(cfg *RoutingConfig) []FieldError {
	switch cfg.SourceHostFrom {
	case "ip", "host":
		return nil
	}
	return []FieldError{{
		Field:   "routing.source_host_from",
		Message: fmt.Sprintf("invalid value %q: must be 'ip' or 'host'", cfg.SourceHostFrom),
	}}
}

func validateTransforms(cfg *TransformsConfig) []FieldError {
	if (cfg.ThinkOpen == "") != (cfg.ThinkClose == "") {
		return []FieldError{{
			Field:   "transforms.think_open",
			Message: "think_open and think_close must be set together",
		}}
	}
	return nil
}

func validateQuota(cfg *QuotaConfig) []FieldError {
	var errs []FieldError
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "quota.sweep_schedule",
			Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.SweepSchedule, err),
		})
	}
	if cfg.ErrorThreshold < 0 {
		errs = append(errs, FieldError{Field: "quota.error_threshold", Message: "error threshold must be non-negative"})
	}
	return errs
}

func validateFunnel(cfg *FunnelConfig) []FieldError {
	if !cfg.IsEnabled() {
		return nil
	}
	var errs []FieldError
	if cfg.MaxConcurrent <= 0 {
		errs = append(errs, FieldError{Field: "funnel.max_concurrent", Message: "must be positive when the funnel is enabled"})
	}
	if cfg.MaxRequestsPerWindow <= 0 {
		errs = append(errs, FieldError{Field: "funnel.max_requests_per_window", Message: "must be positive when the funnel is enabled"})
	}
	if cfg.Window <= 0 {
		errs = append(errs, FieldError{Field: "funnel.window", Message: "must be positive when the funnel is enabled"})
	}
	return errs
}

func validateLogSink(sink *LogSinkConfig, blobs *BlobsConfig) []FieldError {
	var errs []FieldError
	if sink.Enabled {
		if sink.SQLitePath == "" {
			errs = append(errs, FieldError{Field: "logsink.sqlite_path", Message: "path is required when the log sink is enabled"})
		}
		if sink.BufferSize <= 0 {
			errs = append(errs, FieldError{Field: "logsink.buffer_size", Message: "buffer size must be positive"})
		}
	}
	if blobs.Enabled {
		if blobs.Dir == "" {
			errs = append(errs, FieldError{Field: "blobs.dir", Message: "directory is required when blob capture is enabled"})
		}
		if blobs.MaxSize <= 0 {
			errs = append(errs, FieldError{Field: "blobs.max_size", Message: "max size must be positive"})
		}
	}
	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.IsEnabled() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}

// upstreamRefs knows which names an upstream reference may use.
type upstreamRefs struct {
	servers   map[string]string
	providers map[string]bool
}

func newUpstreamRefs(cfg *Config) upstreamRefs {
	refs := upstreamRefs{servers: cfg.Servers, providers: make(map[string]bool, len(cfg.Providers))}
	for _, p := range cfg.Providers {
		refs.providers[p.Name] = true
	}
	return refs
}

func (r upstreamRefs) valid(ref string) bool {
	if r.providers[ref] {
		return true
	}
	if _, ok := r.servers[ref]; ok {
		return true
	}
	return isHTTPURL(ref)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
