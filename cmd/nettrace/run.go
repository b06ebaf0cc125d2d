package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/nettrace/pkg/cli"
	"mercator-hq/nettrace/pkg/lifecycle"
	"mercator-hq/nettrace/pkg/probe"
	"mercator-hq/nettrace/pkg/server"
	"mercator-hq/nettrace/pkg/spanstore/retention"
	"mercator-hq/nettrace/pkg/telemetry/health"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the nettrace agent",
	Long: `Start the nettrace agent with the specified configuration.

The agent runs the configured probes on their schedules, captures every probe
request as a client span, serves metrics, health and span query endpoints,
prunes the span store on its retention schedule and, when capture.watch is
set, follows changes to capture.enabled in the config file. SIGHUP reloads the
config file.

Examples:
  # Start with default config
  nettrace run

  # Start with custom config
  nettrace run --config /etc/nettrace/nettrace.yaml

  # Override listen address
  nettrace run --listen 0.0.0.0:9464

  # Validate config without starting
  nettrace run --dry-run`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfig(cfgFile, configFlagSet(cmd))
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newAgent(cfg, agentOptions{})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	logger := a.slog()

	printBanner(out, a, fromFile)

	if err := a.start(); err != nil {
		return cli.NewCommandError("run", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Probes
	scheduler, err := probe.NewScheduler(cfg.Probes, a.engine,
		probe.WithLogger(logger),
		probe.WithObserver(a.collector),
	)
	if err != nil {
		return shutdownWith(a, cfg.Server.ShutdownTimeout, cli.NewCommandError("run", err))
	}
	scheduler.Start(gctx)
	defer scheduler.Stop()
	fmt.Fprintf(out, "✓ Probes scheduled (%d of %d)\n", scheduler.Scheduled(), len(scheduler.Runners()))

	// Retention
	if a.store != nil {
		pruner := retention.NewPruner(a.store, cfg.Store.Retention,
			retention.WithObserver(a.collector),
			retention.WithLogger(logger),
		)
		if err := pruner.Start(gctx); err != nil {
			logger.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
			if next := pruner.NextPruning(); next != nil {
				logger.Debug("span retention scheduler started", "next_pruning", next)
			}
		}
	}

	// Config reload
	if fromFile {
		g.Go(func() error {
			return watchReloadSignal(gctx, a, logger)
		})
		if cfg.Capture.Watch {
			watcher, err := lifecycle.NewConfigWatcher(cfgFile, cfg.Capture.WatchDebounce, logger)
			if err != nil {
				logger.Warn("config watcher unavailable", "error", err)
			} else {
				defer watcher.Stop()
				g.Go(func() error {
					if err := watcher.Watch(gctx, func() error { return a.reload(cfgFile) }); err != nil {
						logger.Error("config watcher stopped", "error", err)
					}
					return nil
				})
			}
		}
	}

	// HTTP endpoints
	a.checker.RegisterCheck("in_flight", health.InFlightCheck(a.engine.InFlight, cfg.Capture.QueueSize))
	opts := server.Options{
		Health:       a.checker,
		HealthConfig: &cfg.Telemetry.Health,
		Version:      Version,
		Commit:       GitCommit,
		BuildTime:    BuildDate,
		State:        a.controller,
		InFlight:     a.engine.InFlight,
		Logger:       logger,
	}
	if a.collector.Enabled() {
		opts.Metrics = a.collector.Handler()
		opts.MetricsPath = cfg.Telemetry.Metrics.Path
	}
	if a.store != nil {
		opts.Spans = a.store
	}
	srv := server.NewServer(&cfg.Server, opts)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	runErr := g.Wait()
	fmt.Fprintln(out, "\nShutting down...")
	scheduler.Stop()

	if err := shutdownWith(a, cfg.Server.ShutdownTimeout, runErr); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Agent stopped")
	return nil
}

// shutdownWith shuts the agent down within timeout and joins any error with
// cause.
func shutdownWith(a *agent, timeout time.Duration, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.shutdown(ctx); err != nil {
		a.slog().Error("shutdown failed", "error", err)
		if cause == nil {
			return err
		}
	}
	return cause
}

func watchReloadSignal(ctx context.Context, a *agent, logger *slog.Logger) error {
	sig, stop := cli.ReloadSignal()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			if err := a.reload(cfgFile); err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			logger.Info("config reloaded on SIGHUP", "path", cfgFile)
		}
	}
}

func printBanner(out io.Writer, a *agent, fromFile bool) {
	fmt.Fprintf(out, "nettrace v%s\n", Version)
	if fromFile {
		fmt.Fprintf(out, "✓ Configuration loaded from %s\n", cfgFile)
	} else {
		fmt.Fprintln(out, "✓ Using default configuration")
	}

	if a.tracer.Enabled() {
		fmt.Fprintf(out, "✓ Tracing enabled (exporter: %s)\n", a.tracer.Exporter())
	} else {
		fmt.Fprintln(out, "✓ Tracing disabled, requests will not be captured")
	}
	if a.store != nil {
		fmt.Fprintf(out, "✓ Span store opened (%s)\n", a.cfg.Store.Path)
	}
}
