package config

import "time"

// Default values for configuration fields.
const (
	// Capture defaults
	DefaultCaptureEnabled       = true
	DefaultInjectTraceContext   = true
	DefaultStripUserInfo        = true
	DefaultCaptureQueueSize     = 1024
	DefaultCaptureWatchDebounce = 100 * time.Millisecond

	// Server defaults
	DefaultServerListenAddress   = "127.0.0.1:9464"
	DefaultServerReadTimeout     = 10 * time.Second
	DefaultServerWriteTimeout    = 10 * time.Second
	DefaultServerShutdownTimeout = 15 * time.Second

	// Store defaults
	DefaultStoreDriver       = "sqlite"
	DefaultStorePath         = "data/spans.db"
	DefaultStoreMaxOpenConns = 10
	DefaultStoreMaxIdleConns = 5
	DefaultStoreWALMode      = true
	DefaultStoreBusyTimeout  = 5 * time.Second
	DefaultRetentionDays     = 7
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultQueryDefaultLimit = 100
	DefaultQueryMaxLimit     = 10000

	// Probe defaults
	DefaultProbeMethod       = "GET"
	DefaultProbeTimeout      = 10 * time.Second
	DefaultProbeMaxRetries   = 2
	DefaultProbeRetryWaitMin = 100 * time.Millisecond
	DefaultProbeRetryWaitMax = 2 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsEnabled      = true
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "nettrace"
	DefaultMetricsSubsystem    = "capture"
	DefaultTracingEnabled      = true
	DefaultTracingSampler      = "always"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingExporter     = "none"
	DefaultTracingServiceName  = "nettrace"
	DefaultOTLPTimeout         = 10 * time.Second
	DefaultHealthEnabled       = true
	DefaultLivenessPath        = "/health"
	DefaultReadinessPath       = "/ready"
	DefaultVersionPath         = "/version"
	DefaultHealthCheckTimeout  = 5 * time.Second
)

// DefaultRedactQueryParams are query parameters redacted from recorded URLs
// when the configuration does not list any.
var DefaultRedactQueryParams = []string{"access_token", "api_key", "key", "password", "signature", "token"}

// DefaultDurationBuckets are request duration histogram buckets in seconds.
var DefaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// DefaultSizeBuckets are response size histogram buckets in bytes (256B to 16MB).
var DefaultSizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyCaptureDefaults(&cfg.Capture)

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultServerListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}

	applyStoreDefaults(&cfg.Store)

	// Probe defaults - applied to each probe
	for i := range cfg.Probes {
		applyProbeDefaults(&cfg.Probes[i])
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

// applyCaptureDefaults applies default values to capture configuration.
func applyCaptureDefaults(c *CaptureConfig) {
	if c.Enabled == nil {
		c.Enabled = Bool(DefaultCaptureEnabled)
	}
	if c.InjectTraceContext == nil {
		c.InjectTraceContext = Bool(DefaultInjectTraceContext)
	}
	if c.StripUserInfo == nil {
		c.StripUserInfo = Bool(DefaultStripUserInfo)
	}
	if c.RedactQueryParams == nil {
		c.RedactQueryParams = append([]string(nil), DefaultRedactQueryParams...)
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultCaptureQueueSize
	}
	if c.WatchDebounce == 0 {
		c.WatchDebounce = DefaultCaptureWatchDebounce
	}
}

// applyStoreDefaults applies default values to span store configuration.
func applyStoreDefaults(s *StoreConfig) {
	if s.Driver == "" {
		s.Driver = DefaultStoreDriver
	}
	if s.Path == "" {
		s.Path = DefaultStorePath
	}
	if s.MaxOpenConns == 0 {
		s.MaxOpenConns = DefaultStoreMaxOpenConns
	}
	if s.MaxIdleConns == 0 {
		s.MaxIdleConns = DefaultStoreMaxIdleConns
	}
	if s.WALMode == nil {
		s.WALMode = Bool(DefaultStoreWALMode)
	}
	if s.BusyTimeout == 0 {
		s.BusyTimeout = DefaultStoreBusyTimeout
	}
	if s.Retention.Days == 0 {
		s.Retention.Days = DefaultRetentionDays
	}
	if s.Retention.PruneSchedule == "" {
		s.Retention.PruneSchedule = DefaultRetentionSchedule
	}
	if s.Query.DefaultLimit == 0 {
		s.Query.DefaultLimit = DefaultQueryDefaultLimit
	}
	if s.Query.MaxLimit == 0 {
		s.Query.MaxLimit = DefaultQueryMaxLimit
	}
}

// applyProbeDefaults applies default values to a single probe.
func applyProbeDefaults(p *ProbeConfig) {
	if p.Method == "" {
		p.Method = DefaultProbeMethod
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultProbeTimeout
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultProbeMaxRetries
	}
	if p.RetryWaitMin == 0 {
		p.RetryWaitMin = DefaultProbeRetryWaitMin
	}
	if p.RetryWaitMax == 0 {
		p.RetryWaitMax = DefaultProbeRetryWaitMax
	}
}

// applyTelemetryDefaults applies default values to telemetry configuration.
func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}

	if t.Metrics.Enabled == nil {
		t.Metrics.Enabled = Bool(DefaultMetricsEnabled)
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultPrometheusPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(t.Metrics.DurationBuckets) == 0 {
		t.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}
	if len(t.Metrics.SizeBuckets) == 0 {
		t.Metrics.SizeBuckets = append([]float64(nil), DefaultSizeBuckets...)
	}

	if t.Tracing.Enabled == nil {
		t.Tracing.Enabled = Bool(DefaultTracingEnabled)
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.OTLP.Timeout == 0 {
		t.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}

	if t.Health.Enabled == nil {
		t.Health.Enabled = Bool(DefaultHealthEnabled)
	}
	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.VersionPath == "" {
		t.Health.VersionPath = DefaultVersionPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
