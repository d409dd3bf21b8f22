// Package config provides configuration management for SmolRouter.
//
// This package handles loading, validating, and watching the router's YAML
// configuration, with environment variable overrides and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// Passing an empty path to LoadConfigWithEnvOverrides builds the
// configuration from defaults and the environment alone, which is how a
// single-upstream deployment runs without a file.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SMOLROUTER_SECTION_FIELD.
// For example:
//
//   - SMOLROUTER_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SMOLROUTER_PROVIDERS_GEMINI_API_KEYS overrides the api_keys of the
//     provider named "gemini" (comma separated)
//   - SMOLROUTER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// The older variable names UPSTREAM_URL, LISTEN_HOST, LISTEN_PORT,
// MODEL_MAP (a JSON object), STRIP_THINKING, STRIP_JSON_MARKDOWN and the
// GOOGLE_GENAI_* funnel settings are also honoured.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Values from YAML file
//  2. Legacy environment variables
//  3. SMOLROUTER_* environment variables
//  4. Default values for anything still unset
//
// Validation runs last and reports every problem at once.
//
// # Model map ordering
//
// model_map is a YAML mapping whose document order matters: exact names
// are consulted first, then regex entries in the order written. ModelMap
// decodes through yaml.Node to keep that order.
//
// # Reloading
//
// Watcher observes the configuration file and calls a reload function
// after a debounce interval. A reload that fails validation leaves the
// previous configuration in place.
package config
