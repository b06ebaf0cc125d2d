package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/nettrace/pkg/cli"
	"mercator-hq/nettrace/pkg/config"
	"mercator-hq/nettrace/pkg/server"
	"mercator-hq/nettrace/pkg/spanstore"
	"mercator-hq/nettrace/pkg/spanstore/retention"
)

var spansFlags struct {
	dbPath      string
	traceID     string
	name        string
	method      string
	server      string
	errorsOnly  bool
	minDuration time.Duration
	since       string
	until       string
	limit       int
	offset      int
	order       string
	olderThan   time.Duration
	keep        int64
}

var spansCmd = &cobra.Command{
	Use:   "spans",
	Short: "Query the local span store",
	Long: `Query, count and prune spans in the local SQLite span store.

Subcommands:
  query   - List stored spans matching filters
  count   - Count stored spans matching filters
  prune   - Delete spans by age or count

Times given to --since and --until are RFC 3339 timestamps or durations
relative to now (e.g. 1h, 30m).`,
}

var spansQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List stored spans",
	Long: `List stored spans, newest first.

Examples:
  # Failed requests in the last hour
  nettrace spans query --errors --since 1h

  # All spans of one trace as JSON
  nettrace spans query --trace-id 4bf92f3577b34da6a3ce929d0e0e4736 -o json

  # Slow requests to one host
  nettrace spans query --server api.example.com --min-duration 500ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, "spans query", func(ctx context.Context, store *spanstore.Store) error {
			return querySpans(ctx, store, cmd.OutOrStdout())
		})
	},
}

var spansCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count stored spans",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, "spans count", func(ctx context.Context, store *spanstore.Store) error {
			return countSpans(ctx, store, cmd.OutOrStdout())
		})
	},
}

var spansPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old spans",
	Long: `Delete spans older than --older-than and keep at most --keep spans. Without
flags the configured retention policy is applied.

Examples:
  # Apply store.retention from the config file
  nettrace spans prune

  # Delete spans older than one day
  nettrace spans prune --older-than 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cfgFile, configFlagSet(cmd))
		if err != nil {
			return cli.NewCommandError("spans prune", err)
		}
		return withStore(cmd, "spans prune", func(ctx context.Context, store *spanstore.Store) error {
			return pruneSpans(ctx, store, retentionFromFlags(cfg.Store.Retention), cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(spansCmd)
	spansCmd.AddCommand(spansQueryCmd, spansCountCmd, spansPruneCmd)

	spansCmd.PersistentFlags().StringVar(&spansFlags.dbPath, "db", "", "span store path (default: store.path from config)")

	for _, c := range []*cobra.Command{spansQueryCmd, spansCountCmd} {
		c.Flags().StringVar(&spansFlags.traceID, "trace-id", "", "filter by trace ID")
		c.Flags().StringVar(&spansFlags.name, "name", "", "filter by span name")
		c.Flags().StringVar(&spansFlags.method, "method", "", "filter by HTTP method")
		c.Flags().StringVar(&spansFlags.server, "server", "", "filter by server address")
		c.Flags().BoolVar(&spansFlags.errorsOnly, "errors", false, "only spans with error status")
		c.Flags().DurationVar(&spansFlags.minDuration, "min-duration", 0, "minimum span duration")
		c.Flags().StringVar(&spansFlags.since, "since", "", "spans started at or after (RFC 3339 or duration ago)")
		c.Flags().StringVar(&spansFlags.until, "until", "", "spans started at or before (RFC 3339 or duration ago)")
	}
	spansQueryCmd.Flags().IntVar(&spansFlags.limit, "limit", 0, "max results (default: store.query.default_limit)")
	spansQueryCmd.Flags().IntVar(&spansFlags.offset, "offset", 0, "pagination offset")
	spansQueryCmd.Flags().StringVar(&spansFlags.order, "order", spanstore.SortDesc, "sort order by start time (asc, desc)")

	spansPruneCmd.Flags().DurationVar(&spansFlags.olderThan, "older-than", 0, "delete spans that ended before now minus this duration")
	spansPruneCmd.Flags().Int64Var(&spansFlags.keep, "keep", 0, "keep at most this many spans")
}

// withStore opens the span store named by --db or the config file and runs
// fn against it.
func withStore(cmd *cobra.Command, name string, fn func(context.Context, *spanstore.Store) error) error {
	cfg, _, err := loadConfig(cfgFile, configFlagSet(cmd))
	if err != nil {
		return cli.NewCommandError(name, err)
	}
	if spansFlags.dbPath != "" {
		cfg.Store.Path = spansFlags.dbPath
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return cli.NewCommandError(name, fmt.Errorf("span store %q: %w", cfg.Store.Path, err))
	}

	store, err := spanstore.Open(spanstore.ConfigFromStore(&cfg.Store))
	if err != nil {
		return cli.NewCommandError(name, err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx, store); err != nil {
		return cli.NewCommandError(name, err)
	}
	return nil
}

// queryFromFlags builds a span query from the filter flags.
func queryFromFlags(now time.Time) (*spanstore.Query, error) {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("trace_id", spansFlags.traceID)
	set("name", spansFlags.name)
	set("method", spansFlags.method)
	set("server", spansFlags.server)
	set("order", spansFlags.order)
	if spansFlags.errorsOnly {
		v.Set("errors", "true")
	}
	if spansFlags.minDuration > 0 {
		v.Set("min_duration", spansFlags.minDuration.String())
	}
	if spansFlags.limit > 0 {
		v.Set("limit", strconv.Itoa(spansFlags.limit))
	}
	if spansFlags.offset > 0 {
		v.Set("offset", strconv.Itoa(spansFlags.offset))
	}
	for _, p := range []struct{ key, val string }{{"since", spansFlags.since}, {"until", spansFlags.until}} {
		if p.val == "" {
			continue
		}
		t, err := parseTimeFlag(p.val, now)
		if err != nil {
			return nil, cli.NewConfigError(p.key, err.Error())
		}
		v.Set(p.key, t.Format(time.RFC3339))
	}

	q, err := server.ParseQuery(v)
	if err != nil {
		return nil, cli.NewConfigError("query", err.Error())
	}
	return q, nil
}

// parseTimeFlag accepts an RFC 3339 timestamp or a duration before now.
func parseTimeFlag(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or a duration", s)
	}
	return now.Add(-d), nil
}

// spanTable renders records as a cli.Table.
type spanTable []*spanstore.Record

func (spanTable) Header() []string {
	return []string{"START", "TRACE ID", "SPAN ID", "NAME", "STATUS", "HTTP", "DURATION", "SERVER"}
}

func (t spanTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		httpStatus := "-"
		if r.StatusCode != 0 {
			httpStatus = strconv.Itoa(r.StatusCode)
		} else if r.ErrorType != "" {
			httpStatus = r.ErrorType
		}
		rows = append(rows, []string{
			r.StartTime.UTC().Format(time.RFC3339Nano),
			r.TraceID,
			r.SpanID,
			r.Name,
			r.Status,
			httpStatus,
			r.Duration.String(),
			r.ServerAddress,
		})
	}
	return rows
}

func querySpans(ctx context.Context, store *spanstore.Store, out io.Writer) error {
	q, err := queryFromFlags(time.Now())
	if err != nil {
		return err
	}
	records, err := store.Query(ctx, q)
	if err != nil {
		return err
	}

	f, err := formatter()
	if err != nil {
		return err
	}
	if _, ok := f.(*cli.JSONFormatter); ok {
		if records == nil {
			records = []*spanstore.Record{}
		}
		return f.FormatTo(out, records)
	}
	return f.FormatTo(out, spanTable(records))
}

func countSpans(ctx context.Context, store *spanstore.Store, out io.Writer) error {
	q, err := queryFromFlags(time.Now())
	if err != nil {
		return err
	}
	n, err := store.Count(ctx, q)
	if err != nil {
		return err
	}

	f, err := formatter()
	if err != nil {
		return err
	}
	if _, ok := f.(*cli.JSONFormatter); ok {
		return f.FormatTo(out, map[string]int64{"count": n})
	}
	_, err = fmt.Fprintln(out, n)
	return err
}

// retentionFromFlags overrides the configured retention with --older-than
// and --keep. When either flag is set the other phase is disabled unless
// also given.
func retentionFromFlags(cfg config.RetentionConfig) config.RetentionConfig {
	if spansFlags.olderThan <= 0 && spansFlags.keep <= 0 {
		return cfg
	}
	cfg.Days = 0
	cfg.MaxRecords = spansFlags.keep
	return cfg
}

func pruneSpans(ctx context.Context, store *spanstore.Store, cfg config.RetentionConfig, out io.Writer) error {
	var deleted int64

	if spansFlags.olderThan > 0 {
		n, err := store.DeleteBefore(ctx, time.Now().Add(-spansFlags.olderThan))
		if err != nil {
			return err
		}
		deleted += n
	}

	if cfg.Days > 0 || cfg.MaxRecords > 0 {
		n, err := retention.NewPruner(store, cfg).Prune(ctx)
		if err != nil {
			return err
		}
		deleted += n
	}

	_, err := fmt.Fprintf(out, "✓ Pruned %d spans\n", deleted)
	return err
}
