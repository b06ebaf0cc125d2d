package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"mercator-hq/nettrace/pkg/cli"
	"mercator-hq/nettrace/pkg/config"
	"mercator-hq/nettrace/pkg/probe"
	"mercator-hq/nettrace/pkg/telemetry/tracing"
)

var probeFlags struct {
	method   string
	headers  []string
	retries  int
	timeout  time.Duration
	noInject bool
}

var probeCmd = &cobra.Command{
	Use:   "probe [URL]",
	Short: "Send a traced request and print its spans",
	Long: `Send one HTTP request through the capture transport and print the client
span recorded for every attempt, including the traceparent sent upstream.

Without a URL, every probe in the config file runs once.

Examples:
  # Probe a URL
  nettrace probe https://example.com/healthz

  # POST with a header and no retries
  nettrace probe -X POST -H "Authorization: Bearer token" --retries 0 https://api.example.com/ping

  # Run the configured probes as JSON
  nettrace probe -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVarP(&probeFlags.method, "method", "X", http.MethodGet, "HTTP method")
	probeCmd.Flags().StringArrayVarP(&probeFlags.headers, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	probeCmd.Flags().IntVar(&probeFlags.retries, "retries", config.DefaultProbeMaxRetries, "maximum retries")
	probeCmd.Flags().DurationVar(&probeFlags.timeout, "timeout", config.DefaultProbeTimeout, "per-attempt timeout")
	probeCmd.Flags().BoolVar(&probeFlags.noInject, "no-inject", false, "do not add a traceparent header")
}

// probeSpan is a finished attempt span as printed by the probe command.
// TraceParentOK is set when the sent traceparent parses and names the span
// as the parent.
type probeSpan struct {
	TraceID       string `json:"trace_id"`
	SpanID        string `json:"span_id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	StatusCode    int64  `json:"status_code,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
	TraceParentOK bool   `json:"traceparent_ok,omitempty"`
	ErrorType     string `json:"error_type,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

// probeReport is the output of the probe command.
type probeReport struct {
	Probe      string      `json:"probe"`
	TaskID     string      `json:"task_id"`
	Result     string      `json:"result"`
	StatusCode int         `json:"status_code,omitempty"`
	Attempts   int         `json:"attempts"`
	Bytes      int64       `json:"bytes"`
	DurationMS int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
	Spans      []probeSpan `json:"spans"`
}

type probeReports []probeReport

// Header implements cli.Table.
func (probeReports) Header() []string {
	return []string{"PROBE", "RESULT", "ATTEMPT", "STATUS", "TRACEPARENT", "DURATION"}
}

// Rows implements cli.Table with one row per attempt span.
func (r probeReports) Rows() [][]string {
	var rows [][]string
	for _, rep := range r {
		if len(rep.Spans) == 0 {
			rows = append(rows, []string{rep.Probe, rep.Result, "-", statusText(int64(rep.StatusCode), rep.Error), "-", formatMS(rep.DurationMS)})
			continue
		}
		for i, s := range rep.Spans {
			rows = append(rows, []string{
				rep.Probe, rep.Result, strconv.Itoa(i + 1),
				statusText(s.StatusCode, s.ErrorType), s.TraceParent, formatMS(s.DurationMS),
			})
		}
	}
	return rows
}

func statusText(code int64, errType string) string {
	if errType != "" {
		return errType
	}
	if code == 0 {
		return "-"
	}
	return strconv.FormatInt(code, 10)
}

func formatMS(ms int64) string {
	return strconv.FormatInt(ms, 10) + "ms"
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cfgFile, configFlagSet(cmd))
	if err != nil {
		return cli.NewCommandError("probe", err)
	}
	format, err := formatter()
	if err != nil {
		return err
	}

	probes := cfg.Probes
	if len(args) == 1 {
		p, err := probeFromFlags(args[0])
		if err != nil {
			return err
		}
		probes = []config.ProbeConfig{p}
	}
	if len(probes) == 0 {
		return cli.NewConfigError("probes", "no URL given and no probes configured")
	}

	reports, err := executeProbes(cmd.Context(), cfg, probes, cmd.ErrOrStderr())
	if err != nil {
		return cli.NewCommandError("probe", err)
	}

	if err := format.FormatTo(cmd.OutOrStdout(), reports); err != nil {
		return err
	}
	for _, r := range reports {
		if r.Result != probe.ResultSuccess {
			return cli.NewCommandError("probe", cli.ErrProbeFailed)
		}
	}
	return nil
}

func probeFromFlags(url string) (config.ProbeConfig, error) {
	p := config.ProbeConfig{
		Name:         url,
		URL:          url,
		Method:       strings.ToUpper(probeFlags.method),
		Timeout:      probeFlags.timeout,
		MaxRetries:   probeFlags.retries,
		RetryWaitMin: config.DefaultProbeRetryWaitMin,
		RetryWaitMax: config.DefaultProbeRetryWaitMax,
		Headers:      make(map[string]string),
	}
	for _, h := range probeFlags.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return p, cli.NewConfigError("header", fmt.Sprintf("invalid header %q (want 'Name: value')", h))
		}
		p.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return p, nil
}

// executeProbes runs each probe once with capture forced on and returns a
// report per probe with the spans its attempts produced.
func executeProbes(ctx context.Context, cfg *config.Config, probes []config.ProbeConfig, logOut io.Writer) (probeReports, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg.Capture.Enabled = config.Bool(true)
	cfg.Telemetry.Tracing.Enabled = config.Bool(true)
	if probeFlags.noInject {
		cfg.Capture.InjectTraceContext = config.Bool(false)
	}
	if !verbose {
		cfg.Telemetry.Logging.Level = "warn"
	}

	collector := newSpanCollector()
	a, err := newAgent(cfg, agentOptions{
		logWriter:  logOut,
		processors: []sdktrace.SpanProcessor{collector},
	})
	if err != nil {
		return nil, err
	}
	if err := a.start(); err != nil {
		return nil, err
	}

	scheduler, err := probe.NewScheduler(probes, a.engine,
		probe.WithLogger(a.slog()),
		probe.WithObserver(a.collector),
	)
	if err != nil {
		_ = a.shutdown(context.Background())
		return nil, err
	}
	results := scheduler.RunAll(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		return nil, err
	}

	reports := make(probeReports, 0, len(results))
	for _, res := range results {
		rep := probeReport{
			Probe:      res.Probe,
			TaskID:     string(res.TaskID),
			Result:     res.Outcome(),
			StatusCode: res.StatusCode,
			Attempts:   res.Attempts,
			Bytes:      res.Bytes,
			DurationMS: res.Duration.Milliseconds(),
			Spans:      collector.forURL(probeURL(probes, res.Probe)),
		}
		if res.Err != nil {
			rep.Error = res.Err.Error()
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func probeURL(probes []config.ProbeConfig, name string) string {
	for _, p := range probes {
		if p.Name == name || (p.Name == "" && p.URL == name) {
			return p.URL
		}
	}
	return ""
}

// spanCollector is a span processor that keeps ended spans in memory.
type spanCollector struct {
	mu    sync.Mutex
	spans []sdktrace.ReadOnlySpan
}

var _ sdktrace.SpanProcessor = (*spanCollector)(nil)

func newSpanCollector() *spanCollector {
	return &spanCollector{}
}

func (c *spanCollector) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (c *spanCollector) OnEnd(s sdktrace.ReadOnlySpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, s)
}

func (c *spanCollector) Shutdown(context.Context) error   { return nil }
func (c *spanCollector) ForceFlush(context.Context) error { return nil }

// forURL returns the spans whose url.full matches rawURL, in end order.
// Recorded URLs may have userinfo and query parameters redacted, so only
// host and path are compared.
func (c *spanCollector) forURL(rawURL string) []probeSpan {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := hostPath(rawURL)
	out := []probeSpan{}
	for _, s := range c.spans {
		ps := probeSpan{
			TraceID:    s.SpanContext().TraceID().String(),
			SpanID:     s.SpanContext().SpanID().String(),
			Name:       s.Name(),
			Status:     s.Status().Code.String(),
			DurationMS: s.EndTime().Sub(s.StartTime()).Milliseconds(),
		}
		var url string
		for _, kv := range s.Attributes() {
			switch kv.Key {
			case tracing.AttrURLFull:
				url = kv.Value.AsString()
			case tracing.AttrStatusCode:
				ps.StatusCode = kv.Value.AsInt64()
			case tracing.AttrTraceParent:
				ps.TraceParent = kv.Value.AsString()
			case tracing.AttrErrorType:
				ps.ErrorType = kv.Value.AsString()
			}
		}
		if ps.TraceParent != "" {
			tp, err := tracing.ParseTraceParent(ps.TraceParent)
			ps.TraceParentOK = err == nil && tp.Sampled() && tp.Matches(s.SpanContext())
		}
		if hostPath(url) == want {
			out = append(out, ps)
		}
	}
	return out
}

func hostPath(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host + u.EscapedPath()
}
