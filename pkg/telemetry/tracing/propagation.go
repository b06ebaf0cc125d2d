package tracing

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// W3C Trace Context (https://www.w3.org/TR/trace-context/)
//
// traceparent: version-trace_id-parent_id-trace_flags
// Example: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// Outbound requests carry the identifiers of the client span created for
// them, so the receiving service joins the same trace with that span as
// its parent.

// HeaderTraceParent is the propagation header name.
const HeaderTraceParent = "traceparent"

const (
	traceParentVersion = "00"
	traceParentSampled = "01"
	flagSampled        = 0x01
)

// ErrInvalidTraceParent is returned by ParseTraceParent for malformed values.
var ErrInvalidTraceParent = errors.New("invalid traceparent")

// FormatTraceParent renders a traceparent value for the given identifiers.
// Version is always 00 and flags always 01 (sampled).
func FormatTraceParent(traceID trace.TraceID, spanID trace.SpanID) string {
	var sb strings.Builder
	sb.Grow(55)
	sb.WriteString(traceParentVersion)
	sb.WriteByte('-')
	sb.WriteString(hex.EncodeToString(traceID[:]))
	sb.WriteByte('-')
	sb.WriteString(hex.EncodeToString(spanID[:]))
	sb.WriteByte('-')
	sb.WriteString(traceParentSampled)
	return sb.String()
}

// TraceParent is a parsed traceparent value.
type TraceParent struct {
	Version  byte
	TraceID  trace.TraceID
	ParentID trace.SpanID
	Flags    byte
}

// Sampled reports whether the sampled flag is set.
func (tp TraceParent) Sampled() bool {
	return tp.Flags&flagSampled != 0
}

// Matches reports whether tp carries the trace and span identifiers of sc.
func (tp TraceParent) Matches(sc trace.SpanContext) bool {
	return tp.TraceID == sc.TraceID() && tp.ParentID == sc.SpanID()
}

// ParseTraceParent parses a traceparent value. Identifiers must be lowercase
// hex and not all zero; version ff is rejected.
func ParseTraceParent(value string) (TraceParent, error) {
	var tp TraceParent

	parts := strings.Split(value, "-")
	if len(parts) != 4 {
		return tp, fmt.Errorf("%w: want 4 fields, got %d", ErrInvalidTraceParent, len(parts))
	}

	version, err := parseByte(parts[0])
	if err != nil || version == 0xff {
		return tp, fmt.Errorf("%w: bad version %q", ErrInvalidTraceParent, parts[0])
	}

	traceID, err := trace.TraceIDFromHex(parts[1])
	if err != nil {
		return tp, fmt.Errorf("%w: trace id: %v", ErrInvalidTraceParent, err)
	}
	spanID, err := trace.SpanIDFromHex(parts[2])
	if err != nil {
		return tp, fmt.Errorf("%w: parent id: %v", ErrInvalidTraceParent, err)
	}

	flags, err := parseByte(parts[3])
	if err != nil {
		return tp, fmt.Errorf("%w: bad flags %q", ErrInvalidTraceParent, parts[3])
	}

	return TraceParent{Version: version, TraceID: traceID, ParentID: spanID, Flags: flags}, nil
}

// ValidateTraceParent reports whether value is a well-formed traceparent.
func ValidateTraceParent(value string) bool {
	_, err := ParseTraceParent(value)
	return err == nil
}

func parseByte(s string) (byte, error) {
	if len(s) != 2 || strings.ToLower(s) != s {
		return 0, fmt.Errorf("want 2 lowercase hex digits")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Extract returns ctx with the remote span context found in headers, using
// the global propagator. Invalid or missing headers leave ctx unchanged.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}
