package tracing

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanFactory produces spans for observed requests.
type SpanFactory interface {
	BuildSpan(name string, kind trace.SpanKind, attrs ...attribute.KeyValue) SpanHandle
}

// SpanHandle is a prepared span that has not started yet.
type SpanHandle interface {
	Start(at time.Time) Span
}

// Span is an open span. End is valid once; later calls do nothing.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	SetStatus(code codes.Code, description string)
	End(at time.Time)
	SpanContext() trace.SpanContext
}

// otelSpan adapts an OpenTelemetry span to Span.
type otelSpan struct {
	span trace.Span
	once sync.Once
}

func (s *otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s *otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *otelSpan) End(at time.Time) {
	s.once.Do(func() {
		s.span.End(trace.WithTimestamp(at))
	})
}

func (s *otelSpan) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}
