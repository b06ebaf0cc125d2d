package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
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

	errs = append(errs, validateCapture(&cfg.Capture)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateProbes(cfg.Probes)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateCapture validates capture engine configuration.
func validateCapture(cfg *CaptureConfig) []FieldError {
	var errs []FieldError

	if cfg.QueueSize < 0 {
		errs = append(errs, FieldError{
			Field:   "capture.queue_size",
			Message: "queue size must be non-negative",
		})
	}
	if cfg.QueueSize > 1<<20 {
		errs = append(errs, FieldError{
			Field:   "capture.queue_size",
			Message: "queue size exceeds reasonable limit (1048576)",
		})
	}
	if cfg.WatchDebounce < 0 {
		errs = append(errs, FieldError{
			Field:   "capture.watch_debounce",
			Message: "watch debounce must be positive",
		})
	}
	for i, name := range cfg.RedactQueryParams {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("capture.redact_query_params[%d]", i),
				Message: "query parameter name must not be empty",
			})
		}
	}

	return errs
}

// validateServer validates admin server configuration.
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
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	return errs
}

// validateStore validates span store configuration.
func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	validDrivers := map[string]bool{"sqlite": true, "sqlite3": true}
	if cfg.Driver != "" && !validDrivers[cfg.Driver] {
		errs = append(errs, FieldError{
			Field:   "store.driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.Driver),
		})
	}

	if cfg.Enabled && cfg.Path == "" {
		errs = append(errs, FieldError{
			Field:   "store.path",
			Message: "path is required when the store is enabled",
		})
	}

	if cfg.MaxOpenConns < 0 {
		errs = append(errs, FieldError{
			Field:   "store.max_open_conns",
			Message: "max open connections must be non-negative",
		})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{
			Field:   "store.max_idle_conns",
			Message: "max idle connections must be non-negative",
		})
	}
	if cfg.MaxOpenConns > 0 && cfg.MaxIdleConns > cfg.MaxOpenConns {
		errs = append(errs, FieldError{
			Field:   "store.max_idle_conns",
			Message: "max idle connections cannot exceed max open connections",
		})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "store.busy_timeout",
			Message: "busy timeout must be positive",
		})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "store.retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "store.retention.max_records",
			Message: "max records must be non-negative",
		})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "store.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Retention.PruneSchedule, err),
			})
		}
	}

	if cfg.Query.DefaultLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "store.query.default_limit",
			Message: "default limit must be non-negative",
		})
	}
	if cfg.Query.MaxLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "store.query.max_limit",
			Message: "max limit must be non-negative",
		})
	}
	if cfg.Query.MaxLimit > 0 && cfg.Query.DefaultLimit > cfg.Query.MaxLimit {
		errs = append(errs, FieldError{
			Field:   "store.query.default_limit",
			Message: "default limit cannot exceed max limit",
		})
	}

	return errs
}

// validateProbes validates synthetic probe definitions.
func validateProbes(probes []ProbeConfig) []FieldError {
	var errs []FieldError

	seen := make(map[string]bool, len(probes))
	for i, p := range probes {
		prefix := fmt.Sprintf("probes[%d]", i)

		if p.Name == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".name",
				Message: "name is required",
			})
		} else if seen[p.Name] {
			errs = append(errs, FieldError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate probe name %q", p.Name),
			})
		}
		seen[p.Name] = true

		if p.URL == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".url",
				Message: "URL is required",
			})
		} else if u, err := url.Parse(p.URL); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix + ".url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, FieldError{
				Field:   prefix + ".url",
				Message: "URL must use http or https scheme",
			})
		}

		if p.Schedule == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".schedule",
				Message: "schedule is required",
			})
		} else if _, err := cron.ParseStandard(p.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix + ".schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", p.Schedule, err),
			})
		}

		if p.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "timeout must be positive",
			})
		}
		if p.MaxRetries < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_retries",
				Message: "max retries must be non-negative",
			})
		}
		if p.MaxRetries > 10 {
			errs = append(errs, FieldError{
				Field:   prefix + ".max_retries",
				Message: "max retries exceeds reasonable limit (10)",
			})
		}
		if p.RetryWaitMin < 0 || p.RetryWaitMax < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".retry_wait_min",
				Message: "retry waits must be positive",
			})
		}
		if p.RetryWaitMax > 0 && p.RetryWaitMin > p.RetryWaitMax {
			errs = append(errs, FieldError{
				Field:   prefix + ".retry_wait_min",
				Message: "retry wait min cannot exceed retry wait max",
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level != "" && !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format != "" && !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: "pattern is required",
			})
		}
	}

	if cfg.Metrics.IsEnabled() && cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}
	errs = append(errs, validateBuckets("telemetry.metrics.duration_buckets", cfg.Metrics.DurationBuckets)...)
	errs = append(errs, validateBuckets("telemetry.metrics.size_buckets", cfg.Metrics.SizeBuckets)...)

	errs = append(errs, validateTracing(&cfg.Tracing)...)

	if cfg.Health.CheckTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.check_timeout",
			Message: "check timeout must be positive",
		})
	}

	return errs
}

// validateTracing validates span pipeline configuration.
func validateTracing(cfg *TracingConfig) []FieldError {
	var errs []FieldError

	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if cfg.Sampler != "" && !validSamplers[cfg.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Sampler),
		})
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	validExporters := map[string]bool{"otlp": true, "otlphttp": true, "zipkin": true, "none": true}
	if cfg.Exporter != "" && !validExporters[cfg.Exporter] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.exporter",
			Message: fmt.Sprintf("invalid exporter %q: must be 'otlp', 'otlphttp', 'zipkin', or 'none'", cfg.Exporter),
		})
	}

	if cfg.IsEnabled() && cfg.Exporter != "" && cfg.Exporter != "none" && cfg.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: fmt.Sprintf("endpoint is required for exporter %q", cfg.Exporter),
		})
	}
	if cfg.Exporter == "zipkin" && cfg.Endpoint != "" {
		if u, err := url.Parse(cfg.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "zipkin endpoint must be an absolute URL",
			})
		}
	}

	if cfg.OTLP.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.otlp.timeout",
			Message: "OTLP timeout must be positive",
		})
	}

	return errs
}

// validateBuckets checks histogram buckets are strictly increasing.
func validateBuckets(field string, buckets []float64) []FieldError {
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			return []FieldError{{
				Field:   field,
				Message: "buckets must be strictly increasing",
			}}
		}
	}
	return nil
}
