package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Attribute keys recorded on request spans. Keys follow the OpenTelemetry
// HTTP semantic conventions where one exists; the rest use the nettrace.*
// namespace.
const (
	// Request attributes
	AttrServerAddress   = attribute.Key("server.address")
	AttrURLFull         = attribute.Key("url.full")
	AttrHTTPMethod      = attribute.Key("http.request.method")
	AttrRequestBodySize = attribute.Key("http.request.body.size")
	AttrTraceParent     = attribute.Key("nettrace.traceparent")

	// Response attributes
	AttrStatusCode       = attribute.Key("http.response.status_code")
	AttrResponseBodySize = attribute.Key("http.response.body.size")

	// Error attributes
	AttrErrorType    = attribute.Key("error.type")
	AttrErrorCode    = attribute.Key("nettrace.error.code")
	AttrErrorMessage = attribute.Key("nettrace.error.message")

	// Lifecycle markers
	AttrAbandoned = attribute.Key("nettrace.abandoned")
	AttrOrphaned  = attribute.Key("nettrace.orphaned")
)

// SetErrorAttributes records a request failure on the span and marks its
// status as Error.
func SetErrorAttributes(span Span, domain string, code int, message string) {
	span.SetAttributes(
		AttrErrorType.String(domain),
		AttrErrorCode.Int(code),
		AttrErrorMessage.String(message),
	)
	span.SetStatus(codes.Error, message)
}
