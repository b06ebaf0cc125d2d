package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for common log fields.
type contextKey string

const (
	// TaskIDKey is the context key for capture task identities.
	TaskIDKey contextKey = "task_id"

	// ProbeKey is the context key for synthetic probe names.
	ProbeKey contextKey = "probe"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"

	// SpanIDKey is the context key for span IDs.
	SpanIDKey contextKey = "span_id"
)

// WithTaskID adds a task identity to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskID retrieves the task identity from the context.
func GetTaskID(ctx context.Context) string {
	if id, ok := ctx.Value(TaskIDKey).(string); ok {
		return id
	}
	return ""
}

// WithProbe adds a probe name to the context.
func WithProbe(ctx context.Context, probe string) context.Context {
	return context.WithValue(ctx, ProbeKey, probe)
}

// GetProbe retrieves the probe name from the context.
func GetProbe(ctx context.Context) string {
	if probe, ok := ctx.Value(ProbeKey).(string); ok {
		return probe
	}
	return ""
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context. An explicit value set
// with WithTraceID wins over an OpenTelemetry span in the context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithSpanID adds a span ID to the context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// GetSpanID retrieves the span ID from the context.
func GetSpanID(ctx context.Context) string {
	if spanID, ok := ctx.Value(SpanIDKey).(string); ok {
		return spanID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var fields []slog.Attr
	if id := GetTaskID(ctx); id != "" {
		fields = append(fields, slog.String(string(TaskIDKey), id))
	}
	if probe := GetProbe(ctx); probe != "" {
		fields = append(fields, slog.String(string(ProbeKey), probe))
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, slog.String(string(TraceIDKey), traceID))
	}
	if spanID := GetSpanID(ctx); spanID != "" {
		fields = append(fields, slog.String(string(SpanIDKey), spanID))
	}
	return fields
}
