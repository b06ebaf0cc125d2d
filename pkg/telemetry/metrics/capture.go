package metrics

import (
	"mercator-hq/nettrace/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics tracks the capture engine.
//
// Metrics:
//   - nettrace_capture_observed_total{outcome}
//   - nettrace_capture_completed_total{outcome}
//   - nettrace_capture_injections_total{outcome}
//   - nettrace_capture_in_flight_spans
//   - nettrace_capture_request_duration_seconds{method,status}
//   - nettrace_capture_response_size_bytes{method}
type CaptureMetrics struct {
	observedTotal   *prometheus.CounterVec
	completedTotal  *prometheus.CounterVec
	injectionsTotal *prometheus.CounterVec
	inFlight        prometheus.Gauge
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
}

// NewCaptureMetrics creates and registers capture metrics with the provided registry.
func NewCaptureMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CaptureMetrics {
	cm := &CaptureMetrics{
		observedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "observed_total",
				Help:      "Observed request events by outcome",
			},
			[]string{"outcome"},
		),

		completedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completed_total",
				Help:      "Completed request events by outcome",
			},
			[]string{"outcome"},
		),

		injectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "injections_total",
				Help:      "Trace context injection attempts by outcome",
			},
			[]string{"outcome"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "in_flight_spans",
				Help:      "Spans started and not yet ended",
			},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of captured requests in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"method", "status"},
		),

		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "response_size_bytes",
				Help:      "Response body size of captured requests in bytes",
				Buckets:   cfg.SizeBuckets,
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		cm.observedTotal,
		cm.completedTotal,
		cm.injectionsTotal,
		cm.inFlight,
		cm.requestDuration,
		cm.responseSize,
	)

	return cm
}

// ProbeMetrics tracks synthetic probes.
type ProbeMetrics struct {
	runsTotal *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewProbeMetrics creates and registers probe metrics with the provided registry.
func NewProbeMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProbeMetrics {
	pm := &ProbeMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "probe",
				Name:      "runs_total",
				Help:      "Probe runs by probe and result",
			},
			[]string{"probe", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "probe",
				Name:      "duration_seconds",
				Help:      "Probe duration including retries",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"probe"},
		),
	}

	registry.MustRegister(pm.runsTotal, pm.duration)
	return pm
}

// StoreMetrics tracks the local span store.
type StoreMetrics struct {
	exportedTotal prometheus.Counter
	exportErrors  prometheus.Counter
	prunedTotal   prometheus.Counter
	lastPrune     prometheus.Gauge
}

// NewStoreMetrics creates and registers span store metrics with the provided registry.
func NewStoreMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StoreMetrics {
	sm := &StoreMetrics{
		exportedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "store",
			Name:      "spans_exported_total",
			Help:      "Spans written to the local store",
		}),
		exportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "store",
			Name:      "export_errors_total",
			Help:      "Failed span store writes",
		}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "store",
			Name:      "spans_pruned_total",
			Help:      "Spans removed by retention",
		}),
		lastPrune: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "store",
			Name:      "last_prune_timestamp_seconds",
			Help:      "Unix time of the last retention run",
		}),
	}

	registry.MustRegister(sm.exportedTotal, sm.exportErrors, sm.prunedTotal, sm.lastPrune)
	return sm
}
