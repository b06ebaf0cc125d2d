package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/nettrace/pkg/telemetry/logging"
	"mercator-hq/nettrace/pkg/telemetry/tracing"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Observed outcomes.
const (
	OutcomeCaptured  = "captured"
	OutcomeInactive  = "inactive"
	OutcomeDuplicate = "duplicate"
	OutcomeNoURL     = "no_url"
	OutcomeNoFactory = "no_factory"
	OutcomeClosed    = "closed"
)

// Completion outcomes.
const (
	OutcomeEnded   = "ended"
	OutcomeNoMatch = "no_match"
)

// Injection outcomes.
const (
	InjectionInjected = "injected"
	InjectionPresent  = "present"
	InjectionRejected = "rejected"
	InjectionDisabled = "disabled"
	InjectionInvalid  = "invalid"
)

const defaultQueueSize = 1024

// Metrics receives engine counters. *metrics.Collector implements it.
type Metrics interface {
	RecordObserved(outcome string)
	RecordCompletion(outcome string)
	RecordInjection(outcome string)
	RecordRequest(method string, statusCode int, errorType string, duration time.Duration, responseBytes int64)
	SetInFlight(n int)
}

type nopMetrics struct{}

func (nopMetrics) RecordObserved(string)                                   {}
func (nopMetrics) RecordCompletion(string)                                 {}
func (nopMetrics) RecordInjection(string)                                  {}
func (nopMetrics) RecordRequest(string, int, string, time.Duration, int64) {}
func (nopMetrics) SetInFlight(int)                                         {}

// Options configures an Engine.
type Options struct {
	// State gates capture. A nil State never enables capture.
	State StateSource

	// Factory creates spans. Requests are not captured without one.
	Factory tracing.SpanFactory

	// Transform rewrites snapshots before attribute extraction.
	Transform Transform

	// InjectTraceContext adds a traceparent header to requests that lack one.
	InjectTraceContext bool

	// Clock supplies span start and end times. Defaults to clockz.RealClock.
	Clock clockz.Clock

	Logger  *slog.Logger
	Metrics Metrics

	// QueueSize is the executor queue capacity. Defaults to 1024.
	QueueSize int

	// EndOrphansOnShutdown ends spans still open at Shutdown with
	// nettrace.orphaned=true. Otherwise they are only reported.
	EndOrphansOnShutdown bool
}

// requestInfo is kept per open span for request metrics.
type requestInfo struct {
	method string
	start  time.Time
}

// Engine turns observed and completed request events into client spans.
//
// All event handling runs on one goroutine fed by a FIFO queue, so two
// events for the same TaskID never interleave and a completion is always
// applied before an observation enqueued after it.
type Engine struct {
	state      StateSource
	factory    tracing.SpanFactory
	transform  Transform
	inject     bool
	clock      clockz.Clock
	logger     *slog.Logger
	metrics    Metrics
	endOrphans bool

	registry *Registry

	// Owned by the executor goroutine.
	requests map[TaskID]requestInfo
	recorded map[TaskID]error

	tasks  chan func()
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewEngine creates an engine and starts its executor.
func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockz.RealClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	e := &Engine{
		state:      opts.State,
		factory:    opts.Factory,
		transform:  opts.Transform,
		inject:     opts.InjectTraceContext,
		clock:      opts.Clock,
		logger:     opts.Logger.With("component", "capture"),
		metrics:    opts.Metrics,
		endOrphans: opts.EndOrphansOnShutdown,
		registry:   NewRegistry(),
		requests:   make(map[TaskID]requestInfo),
		recorded:   make(map[TaskID]error),
		tasks:      make(chan func(), opts.QueueSize),
		done:       make(chan struct{}),
	}

	go e.run()
	return e
}

// run executes queued tasks in order until the queue is closed.
func (e *Engine) run() {
	defer close(e.done)
	for task := range e.tasks {
		e.execute(task)
	}
}

func (e *Engine) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("capture task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// enqueue adds task to the queue. It blocks while the queue is full and
// returns false once the engine is shut down.
func (e *Engine) enqueue(task func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}
	e.tasks <- task
	return true
}

// Observed handles a request that is about to be sent. It returns true if a
// span was started for id.
func (e *Engine) Observed(id TaskID, snap Snapshot) bool {
	result := make(chan bool, 1)
	ok := e.enqueue(func() {
		captured := false
		defer func() { result <- captured }()
		captured = e.observe(id, snap)
	})
	if !ok {
		e.metrics.RecordObserved(OutcomeClosed)
		return false
	}
	return <-result
}

// Completed handles a finished request. It returns without waiting for the
// span to end; use Flush to wait. The capture state is read at the call, so
// a completion reported while active is applied even if capture stops
// before the executor reaches it.
func (e *Engine) Completed(id TaskID, meta *ResponseMeta, err error) {
	active := e.active()
	e.enqueue(func() {
		e.complete(id, meta, err, active)
	})
}

// RecordError stores err against an open request. It is used when the
// request completes without an explicit error, such as a failed body read
// followed by Close.
func (e *Engine) RecordError(id TaskID, err error) {
	if err == nil {
		return
	}
	e.enqueue(func() {
		if e.registry.Contains(id) {
			e.recorded[id] = err
		}
	})
}

// Flush waits until every event enqueued before the call has been handled.
func (e *Engine) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	if !e.enqueue(func() { close(flushed) }) {
		return nil
	}

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of spans started and not yet ended.
func (e *Engine) InFlight() int {
	return e.registry.Len()
}

// Registry returns the engine's task registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Shutdown drains the queue and stops the executor. Spans still open are
// logged and, when configured, ended as orphans. Later events are ignored.
func (e *Engine) Shutdown(ctx context.Context) error {
	flushErr := e.Flush(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	orphans := e.registry.Drain()
	if len(orphans) > 0 {
		e.logger.Warn("spans still open at shutdown",
			"count", len(orphans),
			"ended", e.endOrphans,
		)
		if e.endOrphans {
			now := e.clock.Now()
			for _, span := range orphans {
				span.SetAttributes(tracing.AttrOrphaned.Bool(true))
				span.End(now)
			}
		}
	}
	e.metrics.SetInFlight(0)

	return flushErr
}

func (e *Engine) active() bool {
	return e.state != nil && e.state.State() == StateActive
}

// observe runs on the executor.
func (e *Engine) observe(id TaskID, snap Snapshot) bool {
	if !e.active() {
		e.skip(id, OutcomeInactive)
		return false
	}
	if e.registry.Contains(id) {
		e.skip(id, OutcomeDuplicate)
		return false
	}
	if snap.URL == nil {
		e.skip(id, OutcomeNoURL)
		return false
	}
	if e.factory == nil {
		e.skip(id, OutcomeNoFactory)
		return false
	}

	if e.transform != nil {
		snap = e.transform.Modify(snap)
		if snap.URL == nil {
			e.skip(id, OutcomeNoURL)
			return false
		}
	}

	start := e.clock.Now()
	span := e.factory.BuildSpan(SpanName(snap.Method, snap.URL.Path), trace.SpanKindClient, requestAttributes(snap)...).Start(start)

	e.register(id, span, start)
	e.requests[id] = requestInfo{method: snap.Method, start: start}
	delete(e.recorded, id)

	e.injectTraceParent(id, span, snap.Headers)

	e.metrics.RecordObserved(OutcomeCaptured)
	e.metrics.SetInFlight(e.registry.Len())
	return true
}

// register stores span under id. An open span already stored there is
// ended at the given time and marked abandoned.
func (e *Engine) register(id TaskID, span tracing.Span, at time.Time) {
	if displaced, replaced := e.registry.Put(id, span); replaced {
		displaced.SetAttributes(tracing.AttrAbandoned.Bool(true))
		displaced.End(at)
		e.logger.Warn("replaced open span for request", "task_id", string(id))
	}
}

func (e *Engine) skip(id TaskID, outcome string) {
	e.metrics.RecordObserved(outcome)
	e.logger.Debug("request not captured", "task_id", string(id), "reason", outcome)
}

// injectTraceParent adds a traceparent header unless one is present. The
// header value is recorded on the span only if the write succeeded.
func (e *Engine) injectTraceParent(id TaskID, span tracing.Span, headers Headers) {
	if !e.inject {
		e.metrics.RecordInjection(InjectionDisabled)
		return
	}
	if headers == nil {
		e.metrics.RecordInjection(InjectionRejected)
		return
	}
	if hasHeader(headers, tracing.HeaderTraceParent) {
		e.metrics.RecordInjection(InjectionPresent)
		return
	}

	sc := span.SpanContext()
	if !sc.IsValid() {
		e.metrics.RecordInjection(InjectionInvalid)
		return
	}

	value := tracing.FormatTraceParent(sc.TraceID(), sc.SpanID())
	if err := headers.Set(tracing.HeaderTraceParent, value); err != nil {
		e.metrics.RecordInjection(InjectionRejected)
		e.logger.Debug("traceparent not injected", "task_id", string(id), "error", err)
		return
	}

	span.SetAttributes(tracing.AttrTraceParent.String(value))
	e.metrics.RecordInjection(InjectionInjected)
}

// complete runs on the executor. active is the state when the completion
// was reported.
func (e *Engine) complete(id TaskID, meta *ResponseMeta, err error, active bool) {
	if !active {
		e.metrics.RecordCompletion(OutcomeInactive)
		return
	}

	span, ok := e.registry.TakeAndRemove(id)
	if !ok {
		e.metrics.RecordCompletion(OutcomeNoMatch)
		return
	}
	info := e.requests[id]
	delete(e.requests, id)
	if err == nil {
		err = e.recorded[id]
	}
	delete(e.recorded, id)

	statusCode := 0
	responseBytes := int64(-1)
	if meta != nil {
		if meta.StatusCode != 0 {
			statusCode = meta.StatusCode
			span.SetAttributes(tracing.AttrStatusCode.Int(statusCode))
		}
		if size, ok := meta.responseSize(); ok {
			responseBytes = size
			span.SetAttributes(tracing.AttrResponseBodySize.Int64(responseBytes))
		}
	}

	errorType := ""
	if err != nil {
		desc := DescribeError(err)
		tracing.SetErrorAttributes(span, desc.Domain, desc.Code, desc.Message)
		errorType = desc.Domain
	}

	end := e.clock.Now()
	span.End(end)

	ctx := logging.WithTraceID(context.Background(), span.SpanContext().TraceID().String())
	e.logger.DebugContext(ctx, "span ended",
		"task_id", string(id),
		"status_code", statusCode,
		"error_type", errorType,
	)

	e.metrics.RecordCompletion(OutcomeEnded)
	e.metrics.RecordRequest(info.method, statusCode, errorType, end.Sub(info.start), responseBytes)
	e.metrics.SetInFlight(e.registry.Len())
}

// SpanName returns "{METHOD} {path}", or the path alone when method is
// empty. An empty path is rendered as "/".
func SpanName(method, path string) string {
	if path == "" {
		path = "/"
	}
	if method == "" {
		return path
	}
	return method + " " + path
}

// requestAttributes extracts span attributes from a snapshot.
func requestAttributes(snap Snapshot) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	attrs = append(attrs,
		tracing.AttrURLFull.String(snap.URL.String()),
		tracing.AttrServerAddress.String(snap.URL.Hostname()),
	)
	if snap.Method != "" {
		attrs = append(attrs, tracing.AttrHTTPMethod.String(snap.Method))
	}
	if snap.BodySize != nil {
		attrs = append(attrs, tracing.AttrRequestBodySize.Int64(*snap.BodySize))
	}
	return attrs
}
