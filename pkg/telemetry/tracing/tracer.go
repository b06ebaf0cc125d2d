package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/nettrace/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the tracer name reported with every span.
const InstrumentationName = "mercator-hq/nettrace"

// Tracer wraps the OpenTelemetry tracer provider and implements SpanFactory.
type Tracer struct {
	config   *config.TracingConfig
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
}

type options struct {
	processors     []sdktrace.SpanProcessor
	serviceVersion string
	global         bool
}

// Option configures a Tracer.
type Option func(*options)

// WithExporter adds an exporter behind a batch span processor, in addition
// to the exporter named by the configuration.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.processors = append(o.processors, sdktrace.NewBatchSpanProcessor(exp))
	}
}

// WithSpanProcessor adds a span processor. Tests use this with a
// tracetest.SpanRecorder.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) {
		o.processors = append(o.processors, sp)
	}
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) Option {
	return func(o *options) {
		o.serviceVersion = v
	}
}

// WithGlobal installs the provider and the W3C propagator as the otel globals.
func WithGlobal() Option {
	return func(o *options) {
		o.global = true
	}
}

// New creates a new Tracer with the given configuration. It builds the
// sampler, the configured remote exporter and any extra processors passed
// as options.
//
// If tracing is disabled in the config, a noop tracer is returned and
// Enabled reports false.
//
// The tracer must be shut down when no longer needed:
//
//	defer tracer.Shutdown(context.Background())
func New(cfg *config.TracingConfig, opts ...Option) (*Tracer, error) {
	if cfg == nil {
		return nil, errors.New("tracing config is nil")
	}

	o := &options{serviceVersion: "dev"}
	for _, opt := range opts {
		opt(o)
	}

	t := &Tracer{
		config:  cfg,
		enabled: cfg.IsEnabled(),
	}

	if !t.enabled {
		t.tracer = noop.NewTracerProvider().Tracer(InstrumentationName)
		return t, nil
	}

	sampler, err := createSampler(cfg.Sampler, cfg.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	exporter, err := createExporter(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	for _, sp := range o.processors {
		providerOpts = append(providerOpts, sdktrace.WithSpanProcessor(sp))
	}

	t.provider = sdktrace.NewTracerProvider(providerOpts...)
	t.tracer = t.provider.Tracer(InstrumentationName)

	if o.global {
		otel.SetTracerProvider(t.provider)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			),
		)
	}

	return t, nil
}

// NewFromProvider wraps an existing provider. The caller keeps ownership of
// the provider; Shutdown on the returned Tracer is a no-op.
func NewFromProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer:  tp.Tracer(InstrumentationName),
		enabled: true,
	}
}

// BuildSpan prepares a span with the given name, kind and attributes. The
// span is not started until Start is called on the returned handle.
func (t *Tracer) BuildSpan(name string, kind trace.SpanKind, attrs ...attribute.KeyValue) SpanHandle {
	return &spanHandle{
		tracer: t.tracer,
		name:   name,
		kind:   kind,
		attrs:  attrs,
	}
}

// Start creates a new span linked to the parent span in ctx.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// ForceFlush exports all ended spans that have not been exported yet.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// Shutdown flushes any pending spans and shuts down the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.enabled || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Enabled returns whether tracing is enabled.
func (t *Tracer) Enabled() bool {
	return t.enabled
}

// Exporter returns the configured remote exporter name.
func (t *Tracer) Exporter() string {
	if t.config == nil {
		return ""
	}
	return t.config.Exporter
}

// spanHandle is a span prepared by BuildSpan.
type spanHandle struct {
	tracer trace.Tracer
	name   string
	kind   trace.SpanKind
	attrs  []attribute.KeyValue
}

// Start starts the span as a new root at the given time.
func (h *spanHandle) Start(at time.Time) Span {
	_, s := h.tracer.Start(
		context.Background(),
		h.name,
		trace.WithNewRoot(),
		trace.WithSpanKind(h.kind),
		trace.WithAttributes(h.attrs...),
		trace.WithTimestamp(at),
	)
	return &otelSpan{span: s}
}

// SpanContext returns the span context from the given context.
// Returns an invalid span context if no span exists.
func SpanContext(ctx context.Context) trace.SpanContext {
	return trace.SpanFromContext(ctx).SpanContext()
}

// TraceID returns the trace ID from the context as a string.
// Returns empty string if no trace context exists.
func TraceID(ctx context.Context) string {
	sc := SpanContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// SetStatus sets the span status based on an error.
// If err is nil, status is set to OK, otherwise to Error.
func SetStatus(span Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}
