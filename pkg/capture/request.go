package capture

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// TaskID identifies one outbound request for the lifetime of the call.
// It is only used as a lookup key.
type TaskID string

// NewTaskID returns a random TaskID.
func NewTaskID() TaskID {
	return TaskID(uuid.NewString())
}

type taskIDKey struct{}

// WithTaskID returns a context carrying id. The HTTP transport uses it so
// every attempt of one logical request shares an identity.
func WithTaskID(ctx context.Context, id TaskID) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// TaskIDFromContext returns the TaskID stored in ctx, if any.
func TaskIDFromContext(ctx context.Context) (TaskID, bool) {
	id, ok := ctx.Value(taskIDKey{}).(TaskID)
	return id, ok && id != ""
}

// ErrHeadersImmutable is returned by Headers.Set when the request can no
// longer be modified.
var ErrHeadersImmutable = errors.New("request headers are immutable")

// Headers is the mutable header set of an outbound request.
type Headers interface {
	// Get returns the first value for name, matched case-insensitively.
	Get(name string) (string, bool)
	// Set replaces the values for name.
	Set(name, value string) error
	// Keys returns the header names present.
	Keys() []string
}

// HTTPHeaders adapts http.Header to Headers.
type HTTPHeaders struct {
	header   http.Header
	readOnly bool
}

// NewHTTPHeaders wraps h. Set writes through to h.
func NewHTTPHeaders(h http.Header) *HTTPHeaders {
	if h == nil {
		h = make(http.Header)
	}
	return &HTTPHeaders{header: h}
}

// ReadOnlyHeaders wraps h so that Set fails with ErrHeadersImmutable.
func ReadOnlyHeaders(h http.Header) *HTTPHeaders {
	hh := NewHTTPHeaders(h)
	hh.readOnly = true
	return hh
}

// Get implements Headers.
func (h *HTTPHeaders) Get(name string) (string, bool) {
	for k, v := range h.header {
		if len(v) > 0 && strings.EqualFold(k, name) {
			return v[0], true
		}
	}
	return "", false
}

// Set implements Headers.
func (h *HTTPHeaders) Set(name, value string) error {
	if h.readOnly {
		return ErrHeadersImmutable
	}
	h.header.Set(name, value)
	return nil
}

// Keys implements Headers. Names are returned sorted.
func (h *HTTPHeaders) Keys() []string {
	keys := make([]string, 0, len(h.header))
	for k := range h.header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Header returns the underlying http.Header.
func (h *HTTPHeaders) Header() http.Header {
	return h.header
}

// hasHeader reports whether a header named name exists, ignoring case.
func hasHeader(h Headers, name string) bool {
	if h == nil {
		return false
	}
	for _, k := range h.Keys() {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// Snapshot is the observable state of an outbound request at the moment it
// is sent.
type Snapshot struct {
	// Method is the request method. It may be empty.
	Method string

	// URL is the target. Requests without one are not captured.
	URL *url.URL

	// BodySize is the request body size in bytes, when known.
	BodySize *int64

	// Headers is the outbound header set. Nil disables injection.
	Headers Headers
}

// ResponseMeta describes a finished request.
type ResponseMeta struct {
	// StatusCode is the response status. Zero means no status was received.
	StatusCode int

	// BodyBytes is the buffered response body, when the host buffers it.
	// Nil means no body data is available.
	BodyBytes []byte

	// AccumulatedBytes is the streamed body size. When positive it takes
	// precedence over len(BodyBytes).
	AccumulatedBytes int64
}

// responseSize returns the body size to record. ok is false when no body
// data was supplied.
func (m *ResponseMeta) responseSize() (size int64, ok bool) {
	if m.AccumulatedBytes > 0 {
		return m.AccumulatedBytes, true
	}
	if m.BodyBytes != nil {
		return int64(len(m.BodyBytes)), true
	}
	return 0, false
}
