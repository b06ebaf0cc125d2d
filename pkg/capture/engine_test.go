package capture

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/nettrace/pkg/telemetry/tracing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var traceParentPattern = regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	engine   *Engine
	recorder *tracetest.SpanRecorder
	state    *AtomicState
	metrics  *recordingMetrics
	clock    clockz.Clock
	advance  func(time.Duration)
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	clock := clockz.NewFakeClockAt(epoch)

	h := &harness{
		recorder: recorder,
		state:    NewAtomicState(StateActive),
		metrics:  newRecordingMetrics(),
		clock:    clock,
		advance:  func(d time.Duration) { clock.Advance(d) },
	}

	opts := Options{
		State:              h.state,
		Factory:            tracing.NewFromProvider(provider),
		InjectTraceContext: true,
		Clock:              clock,
		Metrics:            h.metrics,
	}
	if mutate != nil {
		mutate(&opts)
	}

	h.engine = NewEngine(opts)
	t.Cleanup(func() {
		_ = h.engine.Shutdown(context.Background())
		_ = provider.Shutdown(context.Background())
	})
	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Flush(ctx))
}

func snapshot(t *testing.T, method, rawURL string, header http.Header) Snapshot {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return Snapshot{Method: method, URL: u, Headers: NewHTTPHeaders(header)}
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

// recordingMetrics counts outcomes reported by the engine.
type recordingMetrics struct {
	mu         sync.Mutex
	observed   map[string]int
	completed  map[string]int
	injections map[string]int
	requests   int
	lastBytes  int64
	inFlight   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		observed:   make(map[string]int),
		completed:  make(map[string]int),
		injections: make(map[string]int),
	}
}

func (m *recordingMetrics) RecordObserved(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed[outcome]++
}

func (m *recordingMetrics) RecordCompletion(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[outcome]++
}

func (m *recordingMetrics) RecordInjection(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injections[outcome]++
}

func (m *recordingMetrics) RecordRequest(_ string, _ int, _ string, _ time.Duration, responseBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.lastBytes = responseBytes
}

func (m *recordingMetrics) SetInFlight(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = n
}

func (m *recordingMetrics) get(set map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return set[key]
}

func TestEngine_GetRequestWithInjection(t *testing.T) {
	h := newHarness(t, nil)
	header := make(http.Header)

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/users/5", header)))

	h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	h.flush(t)

	ended := h.recorder.Ended()
	require.Len(t, ended, 1)
	span := ended[0]

	assert.Equal(t, "GET /users/5", span.Name())
	assert.Equal(t, trace.SpanKindClient, span.SpanKind())

	a := attrs(span)
	assert.Equal(t, "http://x.io/users/5", a[tracing.AttrURLFull].AsString())
	assert.Equal(t, "x.io", a[tracing.AttrServerAddress].AsString())
	assert.Equal(t, "GET", a[tracing.AttrHTTPMethod].AsString())
	assert.Equal(t, int64(200), a[tracing.AttrStatusCode].AsInt64())

	injected := header.Get("traceparent")
	require.NotEmpty(t, injected)
	assert.Regexp(t, traceParentPattern, injected)
	assert.Equal(t, injected, a[tracing.AttrTraceParent].AsString())
	tp, err := tracing.ParseTraceParent(injected)
	require.NoError(t, err)
	assert.True(t, tp.Sampled())
	assert.True(t, tp.Matches(span.SpanContext()), "header should carry the client span")
	assert.Equal(t, 1, h.metrics.get(h.metrics.injections, InjectionInjected))
}

func TestEngine_ExistingTraceParentKept(t *testing.T) {
	h := newHarness(t, nil)
	const existing = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"

	header := make(http.Header)
	header.Set("TraceParent", existing)

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/users/5", header)))
	h.engine.Completed(id, nil, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	_, ok := attrs(h.recorder.Ended()[0])[tracing.AttrTraceParent]
	assert.False(t, ok, "traceparent attribute must not be recorded")
	assert.Equal(t, existing, header.Get("traceparent"))
	assert.Len(t, header.Values("traceparent"), 1)
	assert.Equal(t, 1, h.metrics.get(h.metrics.injections, InjectionPresent))
}

func TestEngine_CompletedWithError(t *testing.T) {
	h := newHarness(t, nil)

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, snapshot(t, "POST", "https://api.example.com/v1/orders", nil)))

	h.engine.Completed(id, &ResponseMeta{StatusCode: 500}, NewRequestError("NetworkError", 7, "timeout"))
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	span := h.recorder.Ended()[0]
	a := attrs(span)

	assert.Equal(t, int64(500), a[tracing.AttrStatusCode].AsInt64())
	assert.Equal(t, "NetworkError", a[tracing.AttrErrorType].AsString())
	assert.Equal(t, int64(7), a[tracing.AttrErrorCode].AsInt64())
	assert.Equal(t, "timeout", a[tracing.AttrErrorMessage].AsString())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, 0, h.engine.InFlight())
}

func TestEngine_ConcurrentObservedSameID(t *testing.T) {
	h := newHarness(t, nil)
	id := NewTaskID()
	u, _ := url.Parse("http://x.io/race")

	const workers = 64
	var captured atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if h.engine.Observed(id, Snapshot{Method: "GET", URL: u}) {
				captured.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), captured.Load())
	assert.Equal(t, 1, h.engine.InFlight())
	assert.Len(t, h.recorder.Started(), 1)
	assert.Equal(t, workers-1, h.metrics.get(h.metrics.observed, OutcomeDuplicate))
}

func TestEngine_ConcurrentDistinctIDs(t *testing.T) {
	h := newHarness(t, nil)
	u, _ := url.Parse("http://x.io/many")

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewTaskID()
			if h.engine.Observed(id, Snapshot{Method: "GET", URL: u}) {
				h.engine.Completed(id, &ResponseMeta{StatusCode: 204}, nil)
			}
		}()
	}
	wg.Wait()
	h.flush(t)

	assert.Len(t, h.recorder.Ended(), workers)
	assert.Equal(t, 0, h.engine.InFlight())
}

func TestEngine_InactiveStateHasNoEffect(t *testing.T) {
	for _, state := range []State{StateNotActive, StateStarting, StateStopping} {
		t.Run(state.String(), func(t *testing.T) {
			h := newHarness(t, nil)
			h.state.Set(state)
			header := make(http.Header)

			id := NewTaskID()
			assert.False(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/a", header)))
			h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
			h.flush(t)

			assert.Empty(t, h.recorder.Started())
			assert.Empty(t, header.Get("traceparent"))
			assert.Equal(t, 0, h.engine.InFlight())
			assert.Equal(t, 1, h.metrics.get(h.metrics.observed, OutcomeInactive))
		})
	}
}

func TestEngine_NilStateNeverCaptures(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.State = nil })
	assert.False(t, h.engine.Observed(NewTaskID(), snapshot(t, "GET", "http://x.io/", nil)))
}

func TestEngine_GateChecks(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		h := newHarness(t, nil)
		assert.False(t, h.engine.Observed(NewTaskID(), Snapshot{Method: "GET"}))
		assert.Equal(t, 1, h.metrics.get(h.metrics.observed, OutcomeNoURL))
	})

	t.Run("missing factory", func(t *testing.T) {
		h := newHarness(t, func(o *Options) { o.Factory = nil })
		assert.False(t, h.engine.Observed(NewTaskID(), snapshot(t, "GET", "http://x.io/", nil)))
		assert.Equal(t, 1, h.metrics.get(h.metrics.observed, OutcomeNoFactory))
	})

	t.Run("transform drops url", func(t *testing.T) {
		h := newHarness(t, func(o *Options) {
			o.Transform = TransformFunc(func(s Snapshot) Snapshot {
				s.URL = nil
				return s
			})
		})
		assert.False(t, h.engine.Observed(NewTaskID(), snapshot(t, "GET", "http://x.io/", nil)))
		assert.Empty(t, h.recorder.Started())
	})
}

func TestEngine_CompletedWithoutObserved(t *testing.T) {
	h := newHarness(t, nil)

	h.engine.Completed(NewTaskID(), &ResponseMeta{StatusCode: 200}, nil)
	h.engine.Completed(NewTaskID(), nil, nil)
	h.flush(t)

	assert.Empty(t, h.recorder.Ended())
	assert.Equal(t, 2, h.metrics.get(h.metrics.completed, OutcomeNoMatch))
}

func TestEngine_SpanEndsExactlyOnce(t *testing.T) {
	h := newHarness(t, nil)

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/once", nil)))
	h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	h.engine.Completed(id, &ResponseMeta{StatusCode: 500}, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	assert.Equal(t, int64(200), attrs(h.recorder.Ended()[0])[tracing.AttrStatusCode].AsInt64())
	assert.Equal(t, 1, h.metrics.get(h.metrics.completed, OutcomeEnded))
}

func TestEngine_RetryAfterCompletionGetsFreshSpan(t *testing.T) {
	h := newHarness(t, nil)
	id := NewTaskID()

	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/retry", nil)))
	assert.False(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/retry", nil)))

	h.engine.Completed(id, &ResponseMeta{StatusCode: 503}, nil)
	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/retry", nil)))
	h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	h.flush(t)

	ended := h.recorder.Ended()
	require.Len(t, ended, 2)
	assert.NotEqual(t, ended[0].SpanContext().SpanID(), ended[1].SpanContext().SpanID())
}

func TestEngine_ImmutableHeadersStillCaptured(t *testing.T) {
	h := newHarness(t, nil)
	header := make(http.Header)
	u, _ := url.Parse("http://x.io/ro")

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, Snapshot{Method: "GET", URL: u, Headers: ReadOnlyHeaders(header)}))
	h.engine.Completed(id, nil, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	_, ok := attrs(h.recorder.Ended()[0])[tracing.AttrTraceParent]
	assert.False(t, ok)
	assert.Empty(t, header.Get("traceparent"))
	assert.Equal(t, 1, h.metrics.get(h.metrics.injections, InjectionRejected))
}

func TestEngine_InjectionDisabled(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.InjectTraceContext = false })
	header := make(http.Header)

	require.True(t, h.engine.Observed(NewTaskID(), snapshot(t, "GET", "http://x.io/", header)))
	assert.Empty(t, header.Get("traceparent"))
	assert.Equal(t, 1, h.metrics.get(h.metrics.injections, InjectionDisabled))
}

func TestEngine_NoopFactorySkipsInjection(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Factory = tracing.NewFromProvider(noop.NewTracerProvider())
	})
	header := make(http.Header)

	require.True(t, h.engine.Observed(NewTaskID(), snapshot(t, "GET", "http://x.io/", header)))
	assert.Empty(t, header.Get("traceparent"))
	assert.Equal(t, 1, h.metrics.get(h.metrics.injections, InjectionInvalid))
}

func TestEngine_TransformIsHonored(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Transform = RedactTransform([]string{"token"}, true)
	})

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "https://user:pw@x.io/search?q=go&token=abc", nil)))
	h.engine.Completed(id, nil, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	assert.Equal(t, "https://x.io/search?q=go&token=REDACTED",
		attrs(h.recorder.Ended()[0])[tracing.AttrURLFull].AsString())
}

func TestEngine_OptionalAttributes(t *testing.T) {
	h := newHarness(t, nil)
	u, _ := url.Parse("http://x.io")
	size := int64(42)

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, Snapshot{URL: u, BodySize: &size}))
	h.engine.Completed(id, nil, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	span := h.recorder.Ended()[0]
	a := attrs(span)

	assert.Equal(t, "/", span.Name())
	assert.Equal(t, int64(42), a[tracing.AttrRequestBodySize].AsInt64())
	_, hasMethod := a[tracing.AttrHTTPMethod]
	assert.False(t, hasMethod)
	_, hasStatus := a[tracing.AttrStatusCode]
	assert.False(t, hasStatus)
}

func TestEngine_ResponseBodySize(t *testing.T) {
	tests := []struct {
		name    string
		meta    ResponseMeta
		want    int64
		wantSet bool
	}{
		{"buffered body", ResponseMeta{StatusCode: 200, BodyBytes: []byte("hello")}, 5, true},
		{"accumulated overrides", ResponseMeta{StatusCode: 200, BodyBytes: []byte("hi"), AccumulatedBytes: 1024}, 1024, true},
		{"empty buffer", ResponseMeta{StatusCode: 200, BodyBytes: []byte{}}, 0, true},
		{"no body data", ResponseMeta{StatusCode: 204}, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			id := NewTaskID()
			require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/body", nil)))
			meta := tt.meta
			h.engine.Completed(id, &meta, nil)
			h.flush(t)

			require.Len(t, h.recorder.Ended(), 1)
			size, ok := attrs(h.recorder.Ended()[0])[tracing.AttrResponseBodySize]
			assert.Equal(t, tt.wantSet, ok)
			if tt.wantSet {
				assert.Equal(t, tt.want, size.AsInt64())
			}
			assert.Equal(t, tt.want, h.metrics.lastBytes)
		})
	}
}

func TestEngine_RecordedErrorUsedOnCompletion(t *testing.T) {
	h := newHarness(t, nil)

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/stream", nil)))
	h.engine.RecordError(id, context.DeadlineExceeded)
	h.engine.Completed(id, &ResponseMeta{StatusCode: 200, AccumulatedBytes: 10}, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	a := attrs(h.recorder.Ended()[0])
	assert.Equal(t, DomainNetwork, a[tracing.AttrErrorType].AsString())
	assert.Equal(t, int64(ErrCodeTimeout), a[tracing.AttrErrorCode].AsInt64())
}

func TestEngine_RecordErrorWithoutSpanIgnored(t *testing.T) {
	h := newHarness(t, nil)
	id := NewTaskID()

	h.engine.RecordError(id, context.Canceled)
	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/", nil)))
	h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	_, ok := attrs(h.recorder.Ended()[0])[tracing.AttrErrorType]
	assert.False(t, ok)
}

func TestEngine_UsesClockForTimestamps(t *testing.T) {
	h := newHarness(t, nil)

	id := NewTaskID()
	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/slow", nil)))
	h.advance(250 * time.Millisecond)
	h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	span := h.recorder.Ended()[0]
	assert.True(t, span.StartTime().Equal(epoch))
	assert.Equal(t, 250*time.Millisecond, span.EndTime().Sub(span.StartTime()))
}

func TestEngine_ShutdownEndsOrphans(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.EndOrphansOnShutdown = true })

	require.True(t, h.engine.Observed(NewTaskID(), snapshot(t, "GET", "http://x.io/orphan", nil)))
	require.NoError(t, h.engine.Shutdown(context.Background()))

	require.Len(t, h.recorder.Ended(), 1)
	assert.True(t, attrs(h.recorder.Ended()[0])[tracing.AttrOrphaned].AsBool())
	assert.Equal(t, 0, h.engine.InFlight())

	assert.False(t, h.engine.Observed(NewTaskID(), snapshot(t, "GET", "http://x.io/late", nil)))
	assert.Equal(t, 1, h.metrics.get(h.metrics.observed, OutcomeClosed))
}

func TestEngine_ShutdownReportsOrphans(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.engine.Observed(NewTaskID(), snapshot(t, "GET", "http://x.io/orphan", nil)))
	require.NoError(t, h.engine.Shutdown(context.Background()))

	assert.Empty(t, h.recorder.Ended())
	assert.Equal(t, 0, h.engine.InFlight())
	require.NoError(t, h.engine.Shutdown(context.Background()))
}

func TestEngine_SeededEntryBlocksObserved(t *testing.T) {
	h := newHarness(t, nil)
	id := NewTaskID()

	seeded := h.engine.factory.BuildSpan("seeded", trace.SpanKindClient).Start(epoch)
	h.engine.Registry().Put(id, seeded)

	assert.False(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/again", nil)))
	assert.Equal(t, 1, h.metrics.get(h.metrics.observed, OutcomeDuplicate))

	h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	h.flush(t)

	require.Len(t, h.recorder.Ended(), 1)
	assert.Equal(t, "seeded", h.recorder.Ended()[0].Name())
}

func TestEngine_RegisterAbandonsDisplacedSpan(t *testing.T) {
	h := newHarness(t, nil)
	id := NewTaskID()

	old := h.engine.factory.BuildSpan("old", trace.SpanKindClient).Start(epoch)
	h.engine.Registry().Put(id, old)

	h.advance(time.Second)
	current := h.engine.factory.BuildSpan("current", trace.SpanKindClient).Start(h.clock.Now())
	h.engine.register(id, current, h.clock.Now())

	require.Len(t, h.recorder.Ended(), 1)
	abandoned := h.recorder.Ended()[0]
	assert.Equal(t, "old", abandoned.Name())
	assert.True(t, attrs(abandoned)[tracing.AttrAbandoned].AsBool())
	assert.True(t, abandoned.EndTime().Equal(epoch.Add(time.Second)))

	span, ok := h.engine.Registry().TakeAndRemove(id)
	require.True(t, ok)
	assert.Equal(t, current.SpanContext(), span.SpanContext())
}

func TestEngine_CompletionAfterStateChange(t *testing.T) {
	tests := []struct {
		name      string
		stopFirst bool
		wantEnded int
	}{
		// Reported while active, applied after capture stopped.
		{"completed then stopped", false, 1},
		// Reported after capture stopped: the span stays open.
		{"stopped then completed", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			id := NewTaskID()
			require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/switch", nil)))

			if tt.stopFirst {
				h.state.Set(StateStopping)
				h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
			} else {
				h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
				h.state.Set(StateStopping)
			}
			h.flush(t)

			assert.Len(t, h.recorder.Ended(), tt.wantEnded)
			assert.Equal(t, 1-tt.wantEnded, h.engine.InFlight())
		})
	}
}

func TestEngine_CompletedWhileInactiveReportedAtShutdown(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.EndOrphansOnShutdown = true })
	id := NewTaskID()

	require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/late", nil)))
	h.state.Set(StateNotActive)
	h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	h.flush(t)

	assert.Empty(t, h.recorder.Ended())
	assert.Equal(t, 1, h.engine.InFlight())
	assert.Equal(t, 1, h.metrics.get(h.metrics.completed, OutcomeInactive))

	require.NoError(t, h.engine.Shutdown(context.Background()))
	require.Len(t, h.recorder.Ended(), 1)
	assert.True(t, attrs(h.recorder.Ended()[0])[tracing.AttrOrphaned].AsBool())
	_, hasStatus := attrs(h.recorder.Ended()[0])[tracing.AttrStatusCode]
	assert.False(t, hasStatus)
}

func TestEngine_QueuedCompletionsSurviveShutdown(t *testing.T) {
	h := newHarness(t, nil)
	const n = 200

	ids := make([]TaskID, n)
	for i := range ids {
		ids[i] = NewTaskID()
		require.True(t, h.engine.Observed(ids[i], snapshot(t, "GET", "http://x.io/burst", nil)))
	}
	for _, id := range ids {
		h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	}
	h.state.Set(StateStopping)
	require.NoError(t, h.engine.Shutdown(context.Background()))

	assert.Len(t, h.recorder.Ended(), n)
	assert.Equal(t, 0, h.engine.InFlight())
}

func TestEngine_CompletionsAppliedInOrder(t *testing.T) {
	h := newHarness(t, nil)
	id := NewTaskID()

	for i := 0; i < 20; i++ {
		require.True(t, h.engine.Observed(id, snapshot(t, "GET", "http://x.io/loop", nil)), "attempt %d", i)
		h.engine.Completed(id, &ResponseMeta{StatusCode: 200}, nil)
	}
	h.flush(t)

	assert.Len(t, h.recorder.Ended(), 20)
}

func TestSpanName(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"GET", "/users/5", "GET /users/5"},
		{"POST", "", "POST /"},
		{"", "/health", "/health"},
		{"", "", "/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SpanName(tt.method, tt.path))
	}
}
