package spanstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mercator-hq/nettrace/pkg/config"
	"mercator-hq/nettrace/pkg/telemetry/tracing"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3" (cgo)
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	_ "modernc.org/sqlite" // driver "sqlite" (pure Go)
)

// Supported SQL drivers.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// Config contains configuration for the SQLite span store.
type Config struct {
	// Driver is "sqlite" (modernc.org/sqlite) or "sqlite3" (mattn/go-sqlite3).
	Driver string

	// Path is the database file path.
	Path string

	MaxOpenConns int
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	BusyTimeout time.Duration

	// DefaultLimit and MaxLimit bound Query results.
	DefaultLimit int
	MaxLimit     int
}

// ConfigFromStore converts the store section of the agent configuration.
func ConfigFromStore(cfg *config.StoreConfig) *Config {
	return &Config{
		Driver:       cfg.Driver,
		Path:         cfg.Path,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		WALMode:      cfg.WALEnabled(),
		BusyTimeout:  cfg.BusyTimeout,
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
	}
}

// ExportObserver is notified after every export batch.
type ExportObserver interface {
	RecordExport(spans int, err error)
}

// Store persists finished spans in SQLite. It implements
// sdktrace.SpanExporter so it can be registered on the tracer provider.
type Store struct {
	db       *sql.DB
	config   *Config
	logger   *slog.Logger
	observer ExportObserver

	mu     sync.RWMutex
	closed bool
}

var _ sdktrace.SpanExporter = (*Store)(nil)

// Open opens (creating if needed) the span database and applies the schema.
func Open(cfg *Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = config.DefaultQueryDefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = config.DefaultQueryMaxLimit
	}

	logger := slog.Default().With("component", "spanstore")

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, NewStorageError(cfg.Driver, "open", err)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, NewStorageError(cfg.Driver, "open", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	s := &Store{
		db:     db,
		config: cfg,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("span store opened",
		"driver", cfg.Driver,
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
	)

	return s, nil
}

// buildDSN encodes per-connection pragmas in the driver's DSN syntax so
// every pooled connection gets them.
func buildDSN(cfg *Config) (string, error) {
	busy := cfg.BusyTimeout.Milliseconds()

	switch cfg.Driver {
	case DriverModernc:
		params := []string{fmt.Sprintf("_pragma=busy_timeout(%d)", busy)}
		if cfg.WALMode {
			params = append(params, "_pragma=journal_mode(WAL)")
		}
		return "file:" + cfg.Path + "?" + strings.Join(params, "&"), nil
	case DriverMattn:
		params := []string{fmt.Sprintf("_busy_timeout=%d", busy)}
		if cfg.WALMode {
			params = append(params, "_journal_mode=WAL")
		}
		return "file:" + cfg.Path + "?" + strings.Join(params, "&"), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

// initialize creates the schema and verifies its version.
func (s *Store) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return NewStorageError(s.config.Driver, "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion, time.Now().UnixNano()); err != nil {
		return NewStorageError(s.config.Driver, "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return NewStorageError(s.config.Driver, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError(s.config.Driver, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// SetObserver registers an observer for export batches.
func (s *Store) SetObserver(o ExportObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// ExportSpans writes a batch of finished spans in one transaction.
func (s *Store) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	err := s.insert(ctx, spans)
	if s.observer != nil {
		s.observer.RecordExport(len(spans), err)
	}
	if err != nil {
		s.logger.Error("span export failed", "spans", len(spans), "error", err)
	}
	return err
}

func (s *Store) insert(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError(s.config.Driver, "export", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSpan)
	if err != nil {
		return NewStorageError(s.config.Driver, "export", err)
	}
	defer stmt.Close()

	for _, span := range spans {
		r := recordFromSpan(span)
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return NewStorageError(s.config.Driver, "export", err)
		}

		_, err = stmt.ExecContext(ctx,
			r.TraceID, r.SpanID, nullString(r.ParentSpanID), r.Name, r.Kind,
			r.StartTime.UnixNano(), r.EndTime.UnixNano(), int64(r.Duration),
			r.Status, nullString(r.StatusMessage),
			nullString(r.Method), nullString(r.URL), nullString(r.ServerAddress), nullInt(r.StatusCode), nullString(r.ErrorType),
			string(attrs),
		)
		if err != nil {
			return NewStorageError(s.config.Driver, "export", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStorageError(s.config.Driver, "export", err)
	}
	return nil
}

// Shutdown closes the store. It implements sdktrace.SpanExporter.
func (s *Store) Shutdown(ctx context.Context) error {
	return s.Close()
}

// Close releases the database handle. Further exports are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return NewStorageError(s.config.Driver, "close", err)
	}
	s.logger.Info("span store closed")
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return NewStorageError(s.config.Driver, "ping", err)
	}
	return nil
}

// Query returns stored spans matching q.
func (s *Store) Query(ctx context.Context, q *Query) ([]*Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	whereClause, args := buildWhereClause(q)

	sqlQuery := "SELECT " + selectColumns + " FROM spans"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	order := "DESC"
	if q.SortOrder == SortAsc {
		order = "ASC"
	}
	sqlQuery += " ORDER BY start_unix_nano " + order

	limit := s.config.DefaultLimit
	if q.Limit > 0 {
		limit = q.Limit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	sqlQuery += " LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, NewStorageError(s.config.Driver, "query", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		record, err := scanRow(rows)
		if err != nil {
			return nil, NewStorageError(s.config.Driver, "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(s.config.Driver, "query", err)
	}

	return records, nil
}

// Count returns the number of stored spans matching q. Limit and offset
// are ignored.
func (s *Store) Count(ctx context.Context, q *Query) (int64, error) {
	if q == nil {
		q = &Query{}
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	whereClause, args := buildWhereClause(q)
	sqlQuery := "SELECT COUNT(*) FROM spans"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, NewStorageError(s.config.Driver, "count", err)
	}
	return count, nil
}

// DeleteBefore removes spans that started before cutoff and returns how
// many were removed.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.exec(ctx, "delete",
		"DELETE FROM spans WHERE start_unix_nano < ?", cutoff.UnixNano())
}

// DeleteOldest removes the oldest spans until at most keep remain.
func (s *Store) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	return s.exec(ctx, "delete_oldest", `
		DELETE FROM spans WHERE rowid IN (
			SELECT rowid FROM spans ORDER BY start_unix_nano DESC LIMIT -1 OFFSET ?
		)`, keep)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, NewStorageError(s.config.Driver, op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, NewStorageError(s.config.Driver, op, err)
	}
	return n, nil
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the WHERE clause (without "WHERE" keyword) and the query arguments.
func buildWhereClause(q *Query) (string, []any) {
	var conditions []string
	var args []any

	if q.TraceID != "" {
		conditions = append(conditions, "trace_id = ?")
		args = append(args, strings.ToLower(q.TraceID))
	}
	if q.Name != "" {
		conditions = append(conditions, "name = ?")
		args = append(args, q.Name)
	}
	if q.Method != "" {
		conditions = append(conditions, "method = ?")
		args = append(args, strings.ToUpper(q.Method))
	}
	if q.ServerAddress != "" {
		conditions = append(conditions, "server_address = ?")
		args = append(args, q.ServerAddress)
	}
	if q.StartTime != nil {
		conditions = append(conditions, "start_unix_nano >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conditions = append(conditions, "start_unix_nano <= ?")
		args = append(args, q.EndTime.UnixNano())
	}
	if q.ErrorsOnly {
		conditions = append(conditions, "status = ?")
		args = append(args, codes.Error.String())
	}
	if q.MinDuration > 0 {
		conditions = append(conditions, "duration_nano >= ?")
		args = append(args, int64(q.MinDuration))
	}

	return strings.Join(conditions, " AND "), args
}

// scanRow scans a database row into a Record.
func scanRow(rows *sql.Rows) (*Record, error) {
	var (
		r                                Record
		parent, statusMsg                sql.NullString
		method, url, server, errorType   sql.NullString
		statusCode                       sql.NullInt64
		startNano, endNano, durationNano int64
		attrs                            sql.NullString
	)

	err := rows.Scan(
		&r.TraceID, &r.SpanID, &parent, &r.Name, &r.Kind,
		&startNano, &endNano, &durationNano,
		&r.Status, &statusMsg,
		&method, &url, &server, &statusCode, &errorType,
		&attrs,
	)
	if err != nil {
		return nil, err
	}

	r.ParentSpanID = parent.String
	r.StatusMessage = statusMsg.String
	r.Method = method.String
	r.URL = url.String
	r.ServerAddress = server.String
	r.StatusCode = int(statusCode.Int64)
	r.ErrorType = errorType.String
	r.StartTime = time.Unix(0, startNano).UTC()
	r.EndTime = time.Unix(0, endNano).UTC()
	r.Duration = time.Duration(durationNano)

	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &r.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}

	return &r, nil
}

// recordFromSpan flattens a finished span.
func recordFromSpan(span sdktrace.ReadOnlySpan) *Record {
	sc := span.SpanContext()
	r := &Record{
		TraceID:       sc.TraceID().String(),
		SpanID:        sc.SpanID().String(),
		Name:          span.Name(),
		Kind:          span.SpanKind().String(),
		StartTime:     span.StartTime(),
		EndTime:       span.EndTime(),
		Duration:      span.EndTime().Sub(span.StartTime()),
		Status:        span.Status().Code.String(),
		StatusMessage: span.Status().Description,
		Attributes:    make(map[string]any, len(span.Attributes())),
	}
	if parent := span.Parent(); parent.HasSpanID() {
		r.ParentSpanID = parent.SpanID().String()
	}

	for _, kv := range span.Attributes() {
		r.Attributes[string(kv.Key)] = kv.Value.AsInterface()

		switch kv.Key {
		case tracing.AttrHTTPMethod:
			r.Method = kv.Value.AsString()
		case tracing.AttrURLFull:
			r.URL = kv.Value.AsString()
		case tracing.AttrServerAddress:
			r.ServerAddress = kv.Value.AsString()
		case tracing.AttrStatusCode:
			if kv.Value.Type() == attribute.INT64 {
				r.StatusCode = int(kv.Value.AsInt64())
			}
		case tracing.AttrErrorType:
			r.ErrorType = kv.Value.AsString()
		}
	}

	return r
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
