// Package metrics provides Prometheus metrics for nettrace.
//
// The Collector records capture engine outcomes (observed, completed and
// injection counters, the in-flight gauge, request duration and response
// size histograms), probe runs and span store activity. It is passed to the
// capture engine as its Metrics sink.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// HTTP method labels are capped by a CardinalityLimiter; methods beyond the
// cap are reported as "other".
package metrics
