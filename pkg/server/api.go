package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mercator-hq/nettrace/pkg/spanstore"
)

// CaptureStatus is the body of GET /api/v1/capture.
type CaptureStatus struct {
	State    string `json:"state"`
	InFlight int    `json:"in_flight"`
}

// SpanList is the body of GET /api/v1/spans.
type SpanList struct {
	Spans  []*spanstore.Record `json:"spans"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	status := CaptureStatus{State: s.opts.State.State().String()}
	if s.opts.InFlight != nil {
		status.InFlight = s.opts.InFlight()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.opts.Spans.Query(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if records == nil {
		records = []*spanstore.Record{}
	}
	writeJSON(w, http.StatusOK, SpanList{Spans: records, Limit: q.Limit, Offset: q.Offset})
}

func (s *Server) handleSpanCount(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := s.opts.Spans.Count(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var qErr *spanstore.QueryError
	if errors.As(err, &qErr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("span query failed", "error", err)
	writeError(w, http.StatusInternalServerError, "span query failed")
}

// ParseQuery builds a span query from URL parameters: trace_id, name,
// method, server, errors, min_duration, since, until, limit, offset and
// order. Times are RFC 3339.
func ParseQuery(v url.Values) (*spanstore.Query, error) {
	q := &spanstore.Query{
		TraceID:       v.Get("trace_id"),
		Name:          v.Get("name"),
		Method:        v.Get("method"),
		ServerAddress: v.Get("server"),
		SortOrder:     v.Get("order"),
	}

	if raw := v.Get("errors"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid errors: %w", err)
		}
		q.ErrorsOnly = b
	}
	if raw := v.Get("min_duration"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid min_duration: %w", err)
		}
		q.MinDuration = d
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &q.StartTime}, {"until", &q.EndTime}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", p.name, err)
		}
		*p.dst = &t
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &q.Limit}, {"offset", &q.Offset}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", p.name, err)
		}
		*p.dst = n
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
