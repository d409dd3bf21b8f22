package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. An empty path skips the file, so the
// result is defaults plus environment.
//
// Two families of variables are read. The legacy single-upstream names
// (UPSTREAM_URL, LISTEN_HOST, LISTEN_PORT, MODEL_MAP, STRIP_THINKING,
// STRIP_JSON_MARKDOWN and GOOGLE_GENAI_*) are applied first, then the
// SMOLROUTER_SECTION_FIELD names, so the latter win when both are set.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply environment variable overrides
// 3. Apply default values to whatever is still unset
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = &Config{}
	} else {
		var err error
		if cfg, err = parse(path); err != nil {
			return nil, err
		}
	}

	if errs := applyEnvOverrides(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment override: %w", ValidationError{Errors: errs})
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg, err := parse(path)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

func parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return &cfg, nil
}

// envReader collects parse failures while reading variables.
type envReader struct {
	errs []FieldError
}

func (r *envReader) fail(name, msg string) {
	r.errs = append(r.errs, FieldError{Field: name, Message: msg})
}

func (r *envReader) str(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		r.fail(name, fmt.Sprintf("invalid boolean %q", val))
		return
	}
	*dst = b
}

func (r *envReader) boolPtr(name string, dst **bool) {
	var b bool
	if os.Getenv(name) == "" {
		return
	}
	before := len(r.errs)
	r.boolean(name, &b)
	if len(r.errs) == before {
		*dst = &b
	}
}

func (r *envReader) integer(name string, dst *int) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		r.fail(name, fmt.Sprintf("invalid integer %q", val))
		return
	}
	*dst = i
}

func (r *envReader) duration(name string, dst *time.Duration) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		r.fail(name, fmt.Sprintf("invalid duration %q", val))
		return
	}
	*dst = d
}

// applyEnvOverrides applies environment variable overrides to the
// configuration and returns the variables that could not be parsed.
func applyEnvOverrides(cfg *Config) []FieldError {
	r := &envReader{}

	applyLegacyEnv(r, cfg)

	// Server overrides
	r.str("SMOLROUTER_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	r.duration("SMOLROUTER_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	r.duration("SMOLROUTER_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	r.duration("SMOLROUTER_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	r.duration("SMOLROUTER_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	r.str("SMOLROUTER_DEFAULT_UPSTREAM", &cfg.DefaultUpstream)
	r.str("SMOLROUTER_ROUTING_SOURCE_HOST_FROM", &cfg.Routing.SourceHostFrom)

	// Transform overrides
	r.boolPtr("SMOLROUTER_TRANSFORMS_STRIP_THINK", &cfg.Transforms.StripThink)
	r.boolean("SMOLROUTER_TRANSFORMS_STRIP_JSON_FENCES", &cfg.Transforms.StripJSONFences)

	// Quota and funnel overrides
	r.str("SMOLROUTER_QUOTA_SWEEP_SCHEDULE", &cfg.Quota.SweepSchedule)
	r.integer("SMOLROUTER_QUOTA_ERROR_THRESHOLD", &cfg.Quota.ErrorThreshold)
	r.boolPtr("SMOLROUTER_FUNNEL_ENABLED", &cfg.Funnel.Enabled)
	r.integer("SMOLROUTER_FUNNEL_MAX_CONCURRENT", &cfg.Funnel.MaxConcurrent)
	r.integer("SMOLROUTER_FUNNEL_MAX_REQUESTS_PER_WINDOW", &cfg.Funnel.MaxRequestsPerWindow)
	r.duration("SMOLROUTER_FUNNEL_WINDOW", &cfg.Funnel.Window)

	// Log sink overrides
	r.boolean("SMOLROUTER_LOGSINK_ENABLED", &cfg.LogSink.Enabled)
	r.str("SMOLROUTER_LOGSINK_SQLITE_PATH", &cfg.LogSink.SQLitePath)
	r.boolean("SMOLROUTER_BLOBS_ENABLED", &cfg.Blobs.Enabled)
	r.str("SMOLROUTER_BLOBS_DIR", &cfg.Blobs.Dir)

	// Telemetry overrides
	r.str("SMOLROUTER_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	r.str("SMOLROUTER_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	r.boolPtr("SMOLROUTER_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	r.str("SMOLROUTER_TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	r.boolean("SMOLROUTER_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	r.str("SMOLROUTER_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	for i := range cfg.Providers {
		applyProviderEnvOverrides(r, &cfg.Providers[i])
	}

	return r.errs
}

// applyLegacyEnv reads the variable names of the single-upstream
// deployment style.
func applyLegacyEnv(r *envReader, cfg *Config) {
	r.str("UPSTREAM_URL", &cfg.DefaultUpstream)

	host, port := os.Getenv("LISTEN_HOST"), os.Getenv("LISTEN_PORT")
	if host != "" || port != "" {
		addr := cfg.Server.ListenAddress
		if addr == "" {
			addr = DefaultListenAddress
		}
		curHost, curPort, err := net.SplitHostPort(addr)
		if err != nil {
			curHost, curPort = "127.0.0.1", "1234"
		}
		if host != "" {
			curHost = host
		}
		if port != "" {
			if _, err := strconv.Atoi(port); err != nil {
				r.fail("LISTEN_PORT", fmt.Sprintf("invalid port %q", port))
			} else {
				curPort = port
			}
		}
		cfg.Server.ListenAddress = net.JoinHostPort(curHost, curPort)
	}

	if val := os.Getenv("MODEL_MAP"); val != "" {
		mm, err := ParseModelMapJSON(val)
		if err != nil {
			r.fail("MODEL_MAP", err.Error())
		} else {
			cfg.ModelMap = mm
		}
	}

	r.boolPtr("STRIP_THINKING", &cfg.Transforms.StripThink)
	r.boolean("STRIP_JSON_MARKDOWN", &cfg.Transforms.StripJSONFences)

	r.integer("GOOGLE_GENAI_MAX_CONCURRENT", &cfg.Funnel.MaxConcurrent)
	r.integer("GOOGLE_GENAI_MAX_REQUESTS_PER_WINDOW", &cfg.Funnel.MaxRequestsPerWindow)
	var minutes int
	r.integer("GOOGLE_GENAI_WINDOW_MINUTES", &minutes)
	if minutes > 0 {
		cfg.Funnel.Window = time.Duration(minutes) * time.Minute
	}
	r.boolPtr("GOOGLE_GENAI_RATE_LIMITING_ENABLED", &cfg.Funnel.Enabled)
}

// applyProviderEnvOverrides applies overrides for one provider. Variables
// follow the format SMOLROUTER_PROVIDERS_<NAME>_<FIELD> where NAME is the
// upper-cased provider name with dashes turned into underscores.
func applyProviderEnvOverrides(r *envReader, p *ProviderConfig) {
	prefix := "SMOLROUTER_PROVIDERS_" + envName(p.Name) + "_"

	r.str(prefix+"URL", &p.URL)
	r.duration(prefix+"TIMEOUT", &p.Timeout)
	r.boolPtr(prefix+"ENABLED", &p.Enabled)
	r.str(prefix+"API_KEYS_FILE", &p.APIKeysFile)
	r.integer(prefix+"MAX_REQUESTS_PER_DAY", &p.MaxRequestsPerDay)

	if val := os.Getenv(prefix + "API_KEYS"); val != "" {
		var keys []string
		for _, k := range strings.Split(val, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		p.APIKeys = keys
	}
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}
