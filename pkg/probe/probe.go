package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/zoobzio/clockz"

	"mercator-hq/nettrace/pkg/capture"
	"mercator-hq/nettrace/pkg/capture/httpcapture"
	"mercator-hq/nettrace/pkg/config"
)

// Probe results reported to the Observer.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Observer records probe runs. *metrics.Collector implements it.
type Observer interface {
	RecordProbe(probe, result string, duration time.Duration)
}

// Result describes one probe run, including its retries.
type Result struct {
	Probe      string
	TaskID     capture.TaskID
	StatusCode int
	Attempts   int
	Bytes      int64
	Duration   time.Duration
	Err        error
}

// Outcome classifies the run as success, failure or error.
func (r Result) Outcome() string {
	switch {
	case r.Err != nil:
		return ResultError
	case r.StatusCode >= 400:
		return ResultFailure
	default:
		return ResultSuccess
	}
}

// Option configures a Runner or Scheduler.
type Option func(*options)

type options struct {
	clock    clockz.Clock
	logger   *slog.Logger
	observer Observer
	base     http.RoundTripper
}

// WithClock sets the clock used to time runs.
func WithClock(c clockz.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver sets the observer notified after each run.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithBaseTransport sets the transport beneath the capture transport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:  clockz.RealClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type attemptsKey struct{}

// Runner performs one configured probe.
type Runner struct {
	cfg      config.ProbeConfig
	client   *retryablehttp.Client
	clock    clockz.Clock
	logger   *slog.Logger
	observer Observer
}

// NewRunner builds a runner whose requests are reported to recorder.
func NewRunner(cfg config.ProbeConfig, recorder httpcapture.Recorder, opts ...Option) (*Runner, error) {
	if cfg.URL == "" {
		return nil, errors.New("probe url is required")
	}
	if recorder == nil {
		return nil, errors.New("probe recorder is nil")
	}
	o := buildOptions(opts)
	name := cfg.Name
	if name == "" {
		name = cfg.URL
	}

	logger := o.logger.With("component", "probe", "probe", name)

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.Logger = nil
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if n, ok := req.Context().Value(attemptsKey{}).(*atomic.Int32); ok {
			n.Store(int32(attempt + 1))
		}
		if attempt > 0 {
			logger.Debug("retrying probe", "attempt", attempt+1)
		}
	}

	base := o.base
	if base == nil {
		base = client.HTTPClient.Transport
	}
	client.HTTPClient.Transport = httpcapture.NewTransport(base, recorder)
	client.HTTPClient.Timeout = cfg.Timeout

	cfg.Name = name
	return &Runner{
		cfg:      cfg,
		client:   client,
		clock:    o.clock,
		logger:   logger,
		observer: o.observer,
	}, nil
}

// Name returns the probe name.
func (r *Runner) Name() string {
	return r.cfg.Name
}

// Run performs the probe. Every attempt carries the same TaskID, so a retry
// is only captured once the previous attempt's span has ended.
func (r *Runner) Run(ctx context.Context) Result {
	id := capture.NewTaskID()
	res := Result{Probe: r.cfg.Name, TaskID: id}
	start := r.clock.Now()

	var attempts atomic.Int32
	ctx = context.WithValue(capture.WithTaskID(ctx, id), attemptsKey{}, &attempts)

	res.StatusCode, res.Bytes, res.Err = r.do(ctx)
	res.Attempts = int(attempts.Load())
	res.Duration = r.clock.Since(start)

	if r.observer != nil {
		r.observer.RecordProbe(r.cfg.Name, res.Outcome(), res.Duration)
	}

	if res.Err != nil {
		r.logger.Warn("probe failed",
			"task_id", string(id),
			"attempts", res.Attempts,
			"error", res.Err,
		)
	} else {
		r.logger.Info("probe completed",
			"task_id", string(id),
			"status", res.StatusCode,
			"attempts", res.Attempts,
			"bytes", res.Bytes,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return res
}

func (r *Runner) do(ctx context.Context) (int, int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, r.cfg.Method, r.cfg.URL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build probe request: %w", err)
	}
	for k, v := range r.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return 0, 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return resp.StatusCode, n, fmt.Errorf("failed to read probe response: %w", err)
	}
	return resp.StatusCode, n, nil
}
