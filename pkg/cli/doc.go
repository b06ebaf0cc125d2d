/*
Package cli provides command-line helpers for the nettrace command.

Output Formatting:

Commands render results as text, JSON or CSV. Values implementing Table are
aligned in columns for text output and written row by row for CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Errors:

ConfigError and CommandError wrap failures with the field or command that
caused them. ExitCode maps an error to the process exit status.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
