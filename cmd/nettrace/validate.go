package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/nettrace/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults and environment overrides, and
report every validation error.

Examples:
  # Validate the default config file
  nettrace validate

  # Validate a specific file
  nettrace validate --config /etc/nettrace/nettrace.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateConfig(cmd.OutOrStdout(), cfgFile)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(out io.Writer, path string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
	if verbose {
		printConfigSummary(out, cfg)
	}
	return nil
}

func printConfigSummary(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "  capture:   enabled=%t inject_trace_context=%t queue_size=%d watch=%t\n",
		cfg.Capture.IsEnabled(), cfg.Capture.InjectionEnabled(), cfg.Capture.QueueSize, cfg.Capture.Watch)
	fmt.Fprintf(out, "  tracing:   enabled=%t exporter=%s sampler=%s\n",
		cfg.Telemetry.Tracing.IsEnabled(), cfg.Telemetry.Tracing.Exporter, cfg.Telemetry.Tracing.Sampler)
	if cfg.Store.Enabled {
		fmt.Fprintf(out, "  store:     driver=%s path=%s retention_days=%d\n",
			cfg.Store.Driver, cfg.Store.Path, cfg.Store.Retention.Days)
	} else {
		fmt.Fprintln(out, "  store:     disabled")
	}
	fmt.Fprintf(out, "  probes:    %d\n", len(cfg.Probes))
	fmt.Fprintf(out, "  server:    %s\n", cfg.Server.ListenAddress)
}
