package spanstore

import (
	"errors"
	"fmt"
	"time"
)

// Record is a finished span as stored.
type Record struct {
	TraceID      string `json:"trace_id"`
	SpanID       string `json:"span_id"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	// Status is "Unset", "Ok" or "Error".
	Status        string `json:"status"`
	StatusMessage string `json:"status_message,omitempty"`

	// Request columns, empty when the span is not a captured request.
	Method        string `json:"method,omitempty"`
	URL           string `json:"url,omitempty"`
	ServerAddress string `json:"server_address,omitempty"`
	StatusCode    int    `json:"status_code,omitempty"`
	ErrorType     string `json:"error_type,omitempty"`

	// Attributes holds every span attribute.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Query filters stored spans. Zero-valued fields do not filter.
type Query struct {
	TraceID       string
	Name          string
	Method        string
	ServerAddress string

	// StartTime and EndTime bound the span start time, inclusive.
	StartTime *time.Time
	EndTime   *time.Time

	// ErrorsOnly selects spans with status Error.
	ErrorsOnly bool

	// MinDuration selects spans at least this long.
	MinDuration time.Duration

	// Limit caps the number of results. Zero uses the store default.
	Limit  int
	Offset int

	// SortOrder is "asc" or "desc" by start time. Defaults to "desc".
	SortOrder string
}

// Validate checks the query for invalid values.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return &QueryError{Field: "limit", Cause: errors.New("must not be negative")}
	}
	if q.Offset < 0 {
		return &QueryError{Field: "offset", Cause: errors.New("must not be negative")}
	}
	if q.MinDuration < 0 {
		return &QueryError{Field: "min_duration", Cause: errors.New("must not be negative")}
	}
	if q.StartTime != nil && q.EndTime != nil && q.EndTime.Before(*q.StartTime) {
		return &QueryError{Field: "end_time", Cause: errors.New("must not be before start_time")}
	}
	switch q.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return &QueryError{Field: "sort_order", Cause: fmt.Errorf("unknown order %q", q.SortOrder)}
	}
	return nil
}
