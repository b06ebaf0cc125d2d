// Package config provides configuration management for nettrace.
//
// Configuration is read from a YAML file, completed with defaults, optionally
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("nettrace.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("nettrace.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention NETTRACE_SECTION_FIELD.
// For example:
//
//   - NETTRACE_CAPTURE_ENABLED overrides capture.enabled
//   - NETTRACE_STORE_PATH overrides store.path
//   - NETTRACE_TELEMETRY_TRACING_ENDPOINT overrides telemetry.tracing.endpoint
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Boolean options that default to true are pointers so that an explicit
// false in the file survives ApplyDefaults. Use the IsEnabled style accessors
// to read them.
//
// # Example Configuration
//
//	capture:
//	  enabled: true
//	  inject_trace_context: true
//	  redact_query_params: [token, api_key]
//
//	store:
//	  enabled: true
//	  path: "./data/spans.db"
//	  retention:
//	    days: 3
//
//	probes:
//	  - name: upstream
//	    url: "https://example.com/healthz"
//	    schedule: "@every 30s"
//
//	telemetry:
//	  tracing:
//	    exporter: "otlp"
//	    endpoint: "localhost:4317"
//	    otlp:
//	      insecure: true
//
// # Thread Safety
//
// The singleton uses a read-write lock so concurrent reads never observe a
// partially reloaded configuration.
package config
