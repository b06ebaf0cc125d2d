package metrics

import (
	"strconv"
	"sync"
	"time"

	"mercator-hq/nettrace/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector owns the Prometheus registry and the metric groups recorded by
// the capture engine, the probe scheduler and the span store.
//
// Collector satisfies capture.Metrics. All methods are no-ops when metrics
// are disabled in the configuration.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry
	enabled  bool

	captureMetrics *CaptureMetrics
	probeMetrics   *ProbeMetrics
	storeMetrics   *StoreMetrics

	// Bounds the set of distinct HTTP method labels.
	methodLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created
// with the Go runtime and process collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = config.DefaultDurationBuckets
	}
	if len(cfg.SizeBuckets) == 0 {
		cfg.SizeBuckets = config.DefaultSizeBuckets
	}

	c := &Collector{
		config:        cfg,
		registry:      registry,
		enabled:       cfg.IsEnabled(),
		methodLimiter: NewCardinalityLimiter(16),
	}

	c.captureMetrics = NewCaptureMetrics(cfg, registry)
	c.probeMetrics = NewProbeMetrics(cfg, registry)
	c.storeMetrics = NewStoreMetrics(cfg, registry)

	return c
}

// RecordObserved counts the outcome of an observed event: "captured" or a
// skip reason such as "inactive", "duplicate", "no_url" or "no_factory".
func (c *Collector) RecordObserved(outcome string) {
	if !c.enabled {
		return
	}
	c.captureMetrics.observedTotal.WithLabelValues(outcome).Inc()
}

// RecordInjection counts the outcome of traceparent injection: "injected",
// "present", "rejected" or "disabled".
func (c *Collector) RecordInjection(outcome string) {
	if !c.enabled {
		return
	}
	c.captureMetrics.injectionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCompletion counts the outcome of a completed event: "ended",
// "no_match" or "inactive".
func (c *Collector) RecordCompletion(outcome string) {
	if !c.enabled {
		return
	}
	c.captureMetrics.completedTotal.WithLabelValues(outcome).Inc()
}

// RecordRequest records duration and response size for an ended span.
// statusCode 0 means no response was received; errorType is empty on success.
func (c *Collector) RecordRequest(method string, statusCode int, errorType string, duration time.Duration, responseBytes int64) {
	if !c.enabled {
		return
	}

	if method == "" {
		method = "none"
	} else if !c.methodLimiter.Allow(method) {
		method = "other"
	}

	status := statusClass(statusCode)
	if errorType != "" {
		status = "error"
	}

	c.captureMetrics.requestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
	if responseBytes >= 0 {
		c.captureMetrics.responseSize.WithLabelValues(method).Observe(float64(responseBytes))
	}
}

// SetInFlight sets the number of open spans.
func (c *Collector) SetInFlight(n int) {
	if !c.enabled {
		return
	}
	c.captureMetrics.inFlight.Set(float64(n))
}

// RecordProbe records one probe run.
func (c *Collector) RecordProbe(probe, result string, duration time.Duration) {
	if !c.enabled {
		return
	}
	c.probeMetrics.runsTotal.WithLabelValues(probe, result).Inc()
	c.probeMetrics.duration.WithLabelValues(probe).Observe(duration.Seconds())
}

// RecordExport records a batch written to the span store.
func (c *Collector) RecordExport(spans int, err error) {
	if !c.enabled {
		return
	}
	if err != nil {
		c.storeMetrics.exportErrors.Inc()
		return
	}
	c.storeMetrics.exportedTotal.Add(float64(spans))
}

// RecordPrune records spans removed by retention.
func (c *Collector) RecordPrune(deleted int64) {
	if !c.enabled {
		return
	}
	c.storeMetrics.prunedTotal.Add(float64(deleted))
	c.storeMetrics.lastPrune.SetToCurrentTime()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Enabled reports whether metrics are recorded.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// statusClass maps a status code to its class label ("2xx", "4xx").
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "none"
	}
	return strconv.Itoa(code/100) + "xx"
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label value may be used. Values already seen are
// always allowed; new values are allowed until the limit is reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
