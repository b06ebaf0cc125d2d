package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/nettrace/pkg/capture"
	"mercator-hq/nettrace/pkg/config"
	"mercator-hq/nettrace/pkg/spanstore"
	"mercator-hq/nettrace/pkg/telemetry/health"
)

type fakeSpans struct {
	records []*spanstore.Record
	err     error
	last    *spanstore.Query
}

func (f *fakeSpans) Query(_ context.Context, q *spanstore.Query) ([]*spanstore.Record, error) {
	f.last = q
	return f.records, f.err
}

func (f *fakeSpans) Count(_ context.Context, q *spanstore.Query) (int64, error) {
	f.last = q
	return int64(len(f.records)), f.err
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(spans SpanQuerier) *Server {
	healthCfg := &config.HealthConfig{
		Enabled:       config.Bool(true),
		LivenessPath:  "/health",
		ReadinessPath: "/ready",
		VersionPath:   "/version",
		CheckTimeout:  time.Second,
	}
	return NewServer(testServerConfig(), Options{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
		MetricsPath:  "/metrics",
		Health:       health.NewFromConfig(healthCfg),
		HealthConfig: healthCfg,
		Version:      "1.0.0",
		State:        capture.NewAtomicState(capture.StateActive),
		InFlight:     func() int { return 2 },
		Spans:        spans,
		Logger:       quietLogger(),
	})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	s := newTestServer(&fakeSpans{})

	tests := []struct {
		path string
		want int
	}{
		{"/metrics", http.StatusOK},
		{"/health", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/version", http.StatusOK},
		{"/api/v1/capture", http.StatusOK},
		{"/api/v1/spans", http.StatusOK},
		{"/api/v1/spans/count", http.StatusOK},
		{"/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, s.Handler(), tt.path)
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
			if rec.Header().Get(RequestIDHeader) == "" {
				t.Error("response missing request id")
			}
		})
	}
}

func TestRoutes_Disabled(t *testing.T) {
	s := NewServer(testServerConfig(), Options{Logger: quietLogger()})

	for _, path := range []string{"/metrics", "/health", "/api/v1/capture", "/api/v1/spans"} {
		if rec := get(t, s.Handler(), path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
	}
}

func TestCaptureEndpoint(t *testing.T) {
	s := newTestServer(nil)

	rec := get(t, s.Handler(), "/api/v1/capture")
	var status CaptureStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != "active" || status.InFlight != 2 {
		t.Errorf("status = %+v, want active/2", status)
	}
}

func TestSpansEndpoint(t *testing.T) {
	spans := &fakeSpans{records: []*spanstore.Record{{TraceID: "t1", SpanID: "s1", Name: "GET /"}}}
	s := newTestServer(spans)

	rec := get(t, s.Handler(), "/api/v1/spans?method=GET&errors=true&min_duration=50ms&limit=10&order=asc&since=2025-03-01T00:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var list SpanList
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Spans) != 1 || list.Spans[0].TraceID != "t1" {
		t.Errorf("spans = %+v", list.Spans)
	}

	q := spans.last
	if q.Method != "GET" || !q.ErrorsOnly || q.MinDuration != 50*time.Millisecond || q.Limit != 10 || q.SortOrder != "asc" {
		t.Errorf("query = %+v", q)
	}
	if q.StartTime == nil || !q.StartTime.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartTime = %v", q.StartTime)
	}
}

func TestSpansEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"bad limit", "/api/v1/spans?limit=abc", nil, http.StatusBadRequest},
		{"negative offset", "/api/v1/spans?offset=-1", nil, http.StatusBadRequest},
		{"bad order", "/api/v1/spans?order=sideways", nil, http.StatusBadRequest},
		{"bad time", "/api/v1/spans?until=yesterday", nil, http.StatusBadRequest},
		{"store failure", "/api/v1/spans", errors.New("disk gone"), http.StatusInternalServerError},
		{"store query error", "/api/v1/spans/count", &spanstore.QueryError{Field: "limit", Cause: errors.New("too big")}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeSpans{err: tt.err})
			if rec := get(t, s.Handler(), tt.target); rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.target, rec.Code, tt.want)
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("request id = %q, want req-123", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := get(t, h, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := newTestServer(nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Addr() == nil {
		t.Fatal("server did not start")
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after start")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
