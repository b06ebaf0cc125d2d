package tracing

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var sampleTraceID = trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}

func decide(t *testing.T, sampler sdktrace.Sampler, parent context.Context) sdktrace.SamplingDecision {
	t.Helper()
	return sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parent,
		TraceID:       sampleTraceID,
		Name:          "GET api.example.com",
		Kind:          trace.SpanKindClient,
	}).Decision
}

func TestCreateSampler_Decisions(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		want     sdktrace.SamplingDecision
	}{
		{"default", "", 0, sdktrace.RecordAndSample},
		{"always", SamplerAlways, 0, sdktrace.RecordAndSample},
		{"never", SamplerNever, 0, sdktrace.Drop},
		{"ratio zero", SamplerRatio, 0, sdktrace.Drop},
		{"ratio one", SamplerRatio, 1, sdktrace.RecordAndSample},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := createSampler(tt.strategy, tt.ratio)
			if err != nil {
				t.Fatalf("createSampler(%q, %v) error = %v", tt.strategy, tt.ratio, err)
			}
			if got := decide(t, sampler, context.Background()); got != tt.want {
				t.Errorf("root span decision = %v, want %v", got, tt.want)
			}
		})
	}
}

// A sampled remote parent wins over the local strategy, so captured
// requests stay in the trace of an instrumented caller.
func TestCreateSampler_FollowsParent(t *testing.T) {
	sampler, err := createSampler(SamplerNever, 0)
	if err != nil {
		t.Fatal(err)
	}

	parent := func(flags trace.TraceFlags) context.Context {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    sampleTraceID,
			SpanID:     trace.SpanID{0, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
			TraceFlags: flags,
			Remote:     true,
		})
		return trace.ContextWithRemoteSpanContext(context.Background(), sc)
	}

	if got := decide(t, sampler, parent(trace.FlagsSampled)); got != sdktrace.RecordAndSample {
		t.Errorf("sampled parent: decision = %v", got)
	}
	if got := decide(t, sampler, parent(0)); got != sdktrace.Drop {
		t.Errorf("unsampled parent: decision = %v", got)
	}
}

func TestCreateSampler_Invalid(t *testing.T) {
	for _, tc := range []struct {
		strategy string
		ratio    float64
	}{
		{SamplerRatio, -0.1},
		{SamplerRatio, 1.5},
		{"sometimes", 0.5},
	} {
		if _, err := createSampler(tc.strategy, tc.ratio); err == nil {
			t.Errorf("createSampler(%q, %v) succeeded", tc.strategy, tc.ratio)
		}
	}
}
