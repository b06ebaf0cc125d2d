package capture

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"mercator-hq/nettrace/pkg/config"
	"mercator-hq/nettrace/pkg/telemetry/tracing"
)

func benchmarkEngine(b *testing.B, state State) *Engine {
	b.Helper()

	tracer, err := tracing.New(&config.TracingConfig{
		Enabled:     config.Bool(true),
		Sampler:     tracing.SamplerAlways,
		Exporter:    tracing.ExporterNone,
		ServiceName: "bench",
	})
	if err != nil {
		b.Fatalf("Failed to create tracer: %v", err)
	}
	b.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	engine := NewEngine(Options{
		State:              NewAtomicState(state),
		Factory:            tracer,
		InjectTraceContext: true,
	})
	b.Cleanup(func() { _ = engine.Shutdown(context.Background()) })
	return engine
}

// BenchmarkEngine_ObservedCompleted measures one captured request from
// observation to span end.
func BenchmarkEngine_ObservedCompleted(b *testing.B) {
	engine := benchmarkEngine(b, StateActive)
	u, _ := url.Parse("https://api.example.com/v1/items?page=2")
	meta := &ResponseMeta{StatusCode: http.StatusOK, AccumulatedBytes: 512}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		id := TaskID(strconv.Itoa(i))
		engine.Observed(id, Snapshot{
			Method:  http.MethodGet,
			URL:     u,
			Headers: NewHTTPHeaders(make(http.Header)),
		})
		engine.Completed(id, meta, nil)
	}
	b.StopTimer()
	_ = engine.Flush(context.Background())
}

// BenchmarkEngine_Observed_Inactive measures the gating cost when capture
// is off.
func BenchmarkEngine_Observed_Inactive(b *testing.B) {
	engine := benchmarkEngine(b, StateNotActive)
	u, _ := url.Parse("https://api.example.com/v1/items")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.Observed(TaskID(strconv.Itoa(i)), Snapshot{Method: http.MethodGet, URL: u})
	}
}

// BenchmarkRedactTransform measures query redaction on a typical URL.
func BenchmarkRedactTransform(b *testing.B) {
	transform := RedactTransform([]string{"token", "api_key"}, true)
	u, _ := url.Parse("https://user:pw@api.example.com/v1/items?page=2&token=abc&api_key=xyz")
	snap := Snapshot{Method: http.MethodGet, URL: u}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = transform.Modify(snap)
	}
}
