package config

import "time"

// Config is the root configuration structure for nettrace.
// It contains all configuration sections for the capture engine, the admin
// server, the local span store, synthetic probes and telemetry.
type Config struct {
	// Capture contains configuration for the network capture engine including
	// trace-context injection, request redaction and queue sizing.
	Capture CaptureConfig `yaml:"capture"`

	// Server contains configuration for the admin HTTP server that exposes
	// metrics and health endpoints.
	Server ServerConfig `yaml:"server"`

	// Store contains configuration for the local SQLite span store.
	Store StoreConfig `yaml:"store"`

	// Probes lists synthetic requests issued on a schedule through the
	// capture transport.
	Probes []ProbeConfig `yaml:"probes"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CaptureConfig contains configuration for the capture engine.
type CaptureConfig struct {
	// Enabled sets the initial capture state. When false the engine starts
	// not-active and observes nothing until switched on.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// InjectTraceContext enables injection of the traceparent header into
	// outbound requests that do not already carry one.
	// Default: true
	InjectTraceContext *bool `yaml:"inject_trace_context"`

	// RedactQueryParams lists query parameter names whose values are replaced
	// before the URL is recorded on a span. Matching is case-insensitive.
	// Default: [access_token, api_key, key, password, signature, token]
	RedactQueryParams []string `yaml:"redact_query_params"`

	// StripUserInfo removes user:password@ from recorded URLs.
	// Default: true
	StripUserInfo *bool `yaml:"strip_userinfo"`

	// QueueSize is the capacity of the engine's serial event queue.
	// Default: 1024
	QueueSize int `yaml:"queue_size"`

	// EndOrphansOnShutdown ends spans still open at shutdown, marking them
	// as orphaned. When false they are left open and only reported.
	// Default: false
	EndOrphansOnShutdown bool `yaml:"end_orphans_on_shutdown"`

	// Watch reloads the configuration file on change and switches the
	// capture state according to Enabled.
	// Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce is the quiet period before a file change is applied.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// IsEnabled reports whether capture starts active.
func (c CaptureConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// InjectionEnabled reports whether traceparent injection is enabled.
func (c CaptureConfig) InjectionEnabled() bool {
	return c.InjectTraceContext == nil || *c.InjectTraceContext
}

// StripsUserInfo reports whether URL userinfo is removed before recording.
func (c CaptureConfig) StripsUserInfo() bool {
	return c.StripUserInfo == nil || *c.StripUserInfo
}

// ServerConfig contains configuration for the admin HTTP server.
type ServerConfig struct {
	// ListenAddress is the address the admin server binds to.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown of the server, the engine
	// and the tracer provider.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig contains configuration for the local span store.
type StoreConfig struct {
	// Enabled controls whether finished spans are persisted locally.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Driver selects the SQLite driver.
	// Options: "sqlite" (modernc.org/sqlite, pure Go), "sqlite3" (mattn/go-sqlite3, cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file path.
	// Default: "data/spans.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Retention contains pruning configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Query contains query limits.
	Query QueryConfig `yaml:"query"`
}

// WALEnabled reports whether WAL mode is enabled.
func (c StoreConfig) WALEnabled() bool {
	return c.WALMode == nil || *c.WALMode
}

// RetentionConfig contains span retention configuration.
type RetentionConfig struct {
	// Days is the number of days spans are kept. 0 keeps spans forever.
	// Default: 7
	Days int `yaml:"days"`

	// MaxRecords caps the number of stored spans. 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a standard cron expression. Empty disables pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// QueryConfig contains span store query limits.
type QueryConfig struct {
	// DefaultLimit is applied when a query does not set one.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps any query limit.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// ProbeConfig describes one synthetic request.
type ProbeConfig struct {
	// Name identifies the probe in logs and metrics.
	Name string `yaml:"name"`

	// URL is the probe target.
	URL string `yaml:"url"`

	// Method is the HTTP method.
	// Default: "GET"
	Method string `yaml:"method"`

	// Schedule is a standard cron expression ("*/5 * * * *") or a
	// descriptor such as "@every 30s".
	Schedule string `yaml:"schedule"`

	// Timeout bounds a single probe including retries.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the first attempt.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// RetryWaitMin is the minimum backoff between attempts.
	// Default: 100ms
	RetryWaitMin time.Duration `yaml:"retry_wait_min"`

	// RetryWaitMax is the maximum backoff between attempts.
	// Default: 2s
	RetryWaitMax time.Duration `yaml:"retry_wait_max"`

	// Headers are added to every attempt.
	Headers map[string]string `yaml:"headers"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains span pipeline configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables automatic PII redaction in logs.
	// Default: false
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns contains custom PII redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom PII redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "nettrace"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "capture"
	Subsystem string `yaml:"subsystem"`

	// DurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10]
	DurationBuckets []float64 `yaml:"duration_buckets"`

	// SizeBuckets defines histogram buckets for response body size (bytes).
	// Default: exponential 256B to 16MB
	SizeBuckets []float64 `yaml:"size_buckets"`
}

// IsEnabled reports whether metrics are collected.
func (c MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TracingConfig contains span pipeline configuration.
type TracingConfig struct {
	// Enabled controls whether spans are produced at all. When false the
	// capture engine has no span factory and captures nothing.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter determines the remote trace exporter.
	// Options: "otlp" (gRPC), "otlphttp", "zipkin", "none"
	// Default: "none"
	Exporter string `yaml:"exporter"`

	// Endpoint is the trace collector endpoint.
	// Example: "localhost:4317" (otlp), "localhost:4318" (otlphttp),
	// "http://localhost:9411/api/v2/spans" (zipkin)
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "nettrace"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// IsEnabled reports whether the span pipeline is enabled.
func (c TracingConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health check endpoints are enabled.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the path for the version endpoint.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout bounds each readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// IsEnabled reports whether health endpoints are served.
func (c HealthConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Bool returns a pointer to b, for populating optional boolean fields.
func Bool(b bool) *bool {
	return &b
}
