package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"mercator-hq/nettrace/pkg/capture"
	"mercator-hq/nettrace/pkg/config"
	"mercator-hq/nettrace/pkg/lifecycle"
	"mercator-hq/nettrace/pkg/spanstore"
	"mercator-hq/nettrace/pkg/telemetry/health"
	"mercator-hq/nettrace/pkg/telemetry/logging"
	"mercator-hq/nettrace/pkg/telemetry/metrics"
	"mercator-hq/nettrace/pkg/telemetry/tracing"
)

// agent holds the components shared by run and probe.
type agent struct {
	cfg        *config.Config
	logger     *logging.Logger
	collector  *metrics.Collector
	store      *spanstore.Store
	tracer     *tracing.Tracer
	controller *lifecycle.Controller
	engine     *capture.Engine
	checker    *health.Checker
}

type agentOptions struct {
	logWriter  io.Writer
	registry   *prometheus.Registry
	processors []sdktrace.SpanProcessor
}

// loadConfig loads path, or the defaults when path is the default file
// name and does not exist.
func loadConfig(path string, explicit bool) (*config.Config, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			cfg, err := config.LoadDefault()
			return cfg, false, err
		}
		return nil, false, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	return cfg, true, err
}

// newAgent wires logging, metrics, the span store, the tracer provider and
// the capture engine. Capture stays inactive until start.
func newAgent(cfg *config.Config, opts agentOptions) (*agent, error) {
	logCfg := logging.FromConfig(cfg.Telemetry.Logging)
	logCfg.Writer = opts.logWriter
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetDefault()

	a := &agent{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(&cfg.Telemetry.Metrics, opts.registry),
		checker:   health.NewFromConfig(&cfg.Telemetry.Health),
	}

	tracerOpts := []tracing.Option{tracing.WithServiceVersion(Version), tracing.WithGlobal()}
	for _, sp := range opts.processors {
		tracerOpts = append(tracerOpts, tracing.WithSpanProcessor(sp))
	}

	if cfg.Store.Enabled {
		if dir := filepath.Dir(cfg.Store.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
		store, err := spanstore.Open(spanstore.ConfigFromStore(&cfg.Store))
		if err != nil {
			return nil, fmt.Errorf("failed to open span store: %w", err)
		}
		store.SetObserver(a.collector)
		a.store = store
		tracerOpts = append(tracerOpts, tracing.WithExporter(store))
		a.checker.RegisterCheck("span_store", health.PingCheck(store))
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracerOpts...)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	a.tracer = tracer

	a.controller = lifecycle.NewController(cfg.Capture.IsEnabled(), logger.Slog())
	a.engine = capture.NewEngine(capture.Options{
		State:                a.controller,
		Factory:              tracer,
		Transform:            capture.RedactTransform(cfg.Capture.RedactQueryParams, cfg.Capture.StripsUserInfo()),
		InjectTraceContext:   cfg.Capture.InjectionEnabled(),
		Logger:               logger.Slog(),
		Metrics:              a.collector,
		QueueSize:            cfg.Capture.QueueSize,
		EndOrphansOnShutdown: cfg.Capture.EndOrphansOnShutdown,
	})

	a.checker.RegisterCheck("capture", health.CaptureStateCheck(a.controller))
	a.checker.ReportCapture(a.controller, a.engine.InFlight)
	return a, nil
}

// start activates capture once the exporters are in place.
func (a *agent) start() error {
	return a.controller.Start(nil)
}

// reload applies a reloaded configuration file.
func (a *agent) reload(path string) error {
	cfg, err := config.ReloadConfig(path)
	if err != nil {
		return err
	}
	a.controller.Apply(&cfg.Capture)
	return nil
}

// shutdown stops capture, drains the engine and flushes spans to the
// exporters. Completions reported before the stop are still applied by the
// drain. The store is closed by the tracer provider.
func (a *agent) shutdown(ctx context.Context) error {
	var errs []error

	a.controller.Stop(func() {
		if err := a.engine.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush capture engine: %w", err))
		}
	})

	if err := a.engine.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown capture engine: %w", err))
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	if err := a.closeStore(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *agent) closeStore() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close span store: %w", err)
	}
	return nil
}

func (a *agent) slog() *slog.Logger {
	return a.logger.Slog()
}
