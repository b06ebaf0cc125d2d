// Package tracing builds the OpenTelemetry span pipeline used by the capture
// engine.
//
// A Tracer implements SpanFactory: BuildSpan prepares a span with a name,
// kind and attributes, and SpanHandle.Start starts it at an explicit time so
// callers can drive timestamps from an injected clock. Spans returned by the
// factory end at most once.
//
// # Exporters
//
//	telemetry:
//	  tracing:
//	    exporter: otlp        # gRPC, endpoint localhost:4317
//	    exporter: otlphttp    # HTTP/protobuf, endpoint localhost:4318
//	    exporter: zipkin      # endpoint http://localhost:9411/api/v2/spans
//	    exporter: none        # only extra processors (e.g. the span store)
//
// Additional exporters, such as the local span store, are attached with
// WithExporter. Tests attach a tracetest.SpanRecorder with WithSpanProcessor.
//
// # Trace Context
//
// FormatTraceParent renders the W3C traceparent value injected into outbound
// requests:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// ParseTraceParent reads such a value back, and TraceParent.Matches checks
// that it names a given span. Extract reads the traceparent of an inbound
// request through the global propagator.
package tracing
