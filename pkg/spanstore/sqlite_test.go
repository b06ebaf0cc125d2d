package spanstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/nettrace/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

var base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(&Config{
		Driver:      DriverModernc,
		Path:        filepath.Join(t.TempDir(), "spans.db"),
		WALMode:     true,
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func stub(n byte, name, method, host string, status int, start time.Time, d time.Duration, failed bool) tracetest.SpanStub {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, n},
		SpanID:     trace.SpanID{0x0b, n},
		TraceFlags: trace.FlagsSampled,
	})

	attrs := []attribute.KeyValue{
		tracing.AttrURLFull.String("https://" + host + "/x"),
		tracing.AttrServerAddress.String(host),
		tracing.AttrHTTPMethod.String(method),
	}
	if status != 0 {
		attrs = append(attrs, tracing.AttrStatusCode.Int(status))
	}

	s := tracetest.SpanStub{
		Name:        name,
		SpanContext: sc,
		SpanKind:    trace.SpanKindClient,
		StartTime:   start,
		EndTime:     start.Add(d),
		Attributes:  attrs,
	}
	if failed {
		s.Attributes = append(s.Attributes, tracing.AttrErrorType.String("NetworkError"))
		s.Status = sdktrace.Status{Code: codes.Error, Description: "timeout"}
	}
	return s
}

func seed(t *testing.T, store *Store) {
	t.Helper()

	stubs := tracetest.SpanStubs{
		stub(1, "GET /a", "GET", "api.example.com", 200, base, 100*time.Millisecond, false),
		stub(2, "POST /b", "POST", "api.example.com", 500, base.Add(time.Minute), 2*time.Second, true),
		stub(3, "GET /c", "GET", "cdn.example.com", 200, base.Add(2*time.Minute), 10*time.Millisecond, false),
		stub(4, "GET /d", "GET", "cdn.example.com", 0, base.Add(3*time.Minute), 5*time.Second, true),
	}
	if err := store.ExportSpans(context.Background(), stubs.Snapshots()); err != nil {
		t.Fatalf("ExportSpans() error = %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&Config{Driver: "postgres", Path: filepath.Join(t.TempDir(), "x.db")})

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if storageErr.Operation != "open" {
		t.Errorf("Operation = %q, want open", storageErr.Operation)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.db")

	first, err := Open(&Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	seed(t, first)
	first.Close()

	second, err := Open(&Config{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()

	n, err := second.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Count() = %d, want 4", n)
	}
}

func TestStore_ExportAndQuery(t *testing.T) {
	store := openTestStore(t)
	seed(t, store)

	records, err := store.Query(context.Background(), &Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}

	// Newest first by default
	if records[0].Name != "GET /d" {
		t.Errorf("first record = %q, want GET /d", records[0].Name)
	}

	r := records[2]
	if r.Method != "POST" || r.StatusCode != 500 || r.ErrorType != "NetworkError" {
		t.Errorf("unexpected request columns: %+v", r)
	}
	if r.Status != "Error" || r.StatusMessage != "timeout" {
		t.Errorf("unexpected status: %q %q", r.Status, r.StatusMessage)
	}
	if r.Kind != "client" {
		t.Errorf("Kind = %q, want client", r.Kind)
	}
	if r.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", r.Duration)
	}
	if !r.StartTime.Equal(base.Add(time.Minute)) {
		t.Errorf("StartTime = %v", r.StartTime)
	}
	if r.Attributes["server.address"] != "api.example.com" {
		t.Errorf("attributes not decoded: %v", r.Attributes)
	}
	if r.TraceID != (trace.TraceID{0x0a, 2}).String() {
		t.Errorf("TraceID = %q", r.TraceID)
	}
}

func TestStore_QueryFilters(t *testing.T) {
	store := openTestStore(t)
	seed(t, store)

	from := base.Add(90 * time.Second)
	until := base.Add(150 * time.Second)

	tests := []struct {
		name  string
		query *Query
		want  []string
	}{
		{"by host", &Query{ServerAddress: "cdn.example.com", SortOrder: SortAsc}, []string{"GET /c", "GET /d"}},
		{"by method", &Query{Method: "post"}, []string{"POST /b"}},
		{"errors only", &Query{ErrorsOnly: true, SortOrder: SortAsc}, []string{"POST /b", "GET /d"}},
		{"min duration", &Query{MinDuration: time.Second, SortOrder: SortAsc}, []string{"POST /b", "GET /d"}},
		{"time window", &Query{StartTime: &from, EndTime: &until}, []string{"GET /c"}},
		{"by name", &Query{Name: "GET /a"}, []string{"GET /a"}},
		{"by trace", &Query{TraceID: (trace.TraceID{0x0a, 3}).String()}, []string{"GET /c"}},
		{"limit and offset", &Query{Limit: 2, Offset: 1, SortOrder: SortAsc}, []string{"POST /b", "GET /c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.Query(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}

			var got []string
			for _, r := range records {
				got = append(got, r.Name)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestStore_QueryLimitCapped(t *testing.T) {
	store := openTestStore(t)
	store.config.MaxLimit = 2
	seed(t, store)

	records, err := store.Query(context.Background(), &Query{Limit: 100})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestStore_InvalidQuery(t *testing.T) {
	store := openTestStore(t)
	earlier := base.Add(-time.Hour)

	tests := []struct {
		name  string
		query *Query
		field string
	}{
		{"negative limit", &Query{Limit: -1}, "limit"},
		{"negative offset", &Query{Offset: -1}, "offset"},
		{"bad order", &Query{SortOrder: "sideways"}, "sort_order"},
		{"inverted window", &Query{StartTime: &base, EndTime: &earlier}, "end_time"},
		{"negative duration", &Query{MinDuration: -time.Second}, "min_duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Query(context.Background(), tt.query)
			var qe *QueryError
			if !errors.As(err, &qe) {
				t.Fatalf("expected QueryError, got %v", err)
			}
			if qe.Field != tt.field {
				t.Errorf("Field = %q, want %q", qe.Field, tt.field)
			}
		})
	}
}

func TestStore_Count(t *testing.T) {
	store := openTestStore(t)
	seed(t, store)

	n, err := store.Count(context.Background(), &Query{ErrorsOnly: true})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestStore_DeleteBefore(t *testing.T) {
	store := openTestStore(t)
	seed(t, store)

	deleted, err := store.DeleteBefore(context.Background(), base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("DeleteBefore() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	n, _ := store.Count(context.Background(), nil)
	if n != 2 {
		t.Errorf("remaining = %d, want 2", n)
	}
}

func TestStore_DeleteOldest(t *testing.T) {
	store := openTestStore(t)
	seed(t, store)

	deleted, err := store.DeleteOldest(context.Background(), 1)
	if err != nil {
		t.Fatalf("DeleteOldest() error = %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	records, _ := store.Query(context.Background(), &Query{})
	if len(records) != 1 || records[0].Name != "GET /d" {
		t.Errorf("expected only the newest span to remain, got %v", records)
	}
}

type countingObserver struct {
	mu     sync.Mutex
	spans  int
	errors int
}

func (o *countingObserver) RecordExport(spans int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.errors++
		return
	}
	o.spans += spans
}

func TestStore_AsProviderExporter(t *testing.T) {
	store := openTestStore(t)
	observer := &countingObserver{}
	store.SetObserver(observer)

	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(store))
	tracer := tracing.NewFromProvider(provider)

	span := tracer.BuildSpan("GET /users/5", trace.SpanKindClient,
		tracing.AttrHTTPMethod.String("GET"),
		tracing.AttrServerAddress.String("x.io"),
	).Start(base)
	span.SetAttributes(tracing.AttrStatusCode.Int(200))
	span.End(base.Add(40 * time.Millisecond))

	records, err := store.Query(context.Background(), &Query{ServerAddress: "x.io"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].StatusCode != 200 || records[0].Duration != 40*time.Millisecond {
		t.Errorf("unexpected record: %+v", records[0])
	}
	if observer.spans != 1 {
		t.Errorf("observer saw %d spans, want 1", observer.spans)
	}
}

func TestStore_Closed(t *testing.T) {
	store := openTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := store.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() = %v, want ErrClosed", err)
	}
	if _, err := store.Count(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Count() = %v, want ErrClosed", err)
	}
	if err := store.ExportSpans(context.Background(), tracetest.SpanStubs{stub(9, "x", "GET", "h", 200, base, 0, false)}.Snapshots()); err != nil {
		t.Errorf("ExportSpans() after close = %v, want nil", err)
	}
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Driver: DriverModernc, Path: "a.db", WALMode: true, BusyTimeout: 5 * time.Second},
			"file:a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{Config{Driver: DriverModernc, Path: "a.db"}, "file:a.db?_pragma=busy_timeout(0)"},
		{Config{Driver: DriverMattn, Path: "a.db", WALMode: true, BusyTimeout: time.Second},
			"file:a.db?_busy_timeout=1000&_journal_mode=WAL"},
	}

	for _, tt := range tests {
		cfg := tt.cfg
		got, err := buildDSN(&cfg)
		if err != nil {
			t.Fatalf("buildDSN() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("buildDSN() = %q, want %q", got, tt.want)
		}
	}
}
