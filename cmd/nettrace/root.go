package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/nettrace/pkg/cli"
)

const defaultConfigFile = "nettrace.yaml"

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "nettrace",
	Short: "Nettrace - HTTP client tracing agent",
	Long: `Nettrace records outgoing HTTP client requests as OpenTelemetry client spans.

Each captured request gets a span named after its method and path, carrying the
URL, server address, request and response sizes, status code and any transport
error. A W3C traceparent header is added to requests that do not carry one, so
downstream services join the same trace.

Spans are exported to OTLP, Zipkin or a local SQLite span store.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, csv)")
}

// configFlagSet reports whether --config was given explicitly.
func configFlagSet(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("config")
	return f != nil && f.Changed
}

func formatter() (cli.Formatter, error) {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}
