// Package spanstore persists finished spans in a local SQLite database.
//
// Store implements sdktrace.SpanExporter, so it can be attached to the
// tracer provider next to (or instead of) a remote exporter:
//
//	store, err := spanstore.Open(spanstore.ConfigFromStore(&cfg.Store))
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithExporter(store))
//
// Two drivers are supported. "sqlite" uses modernc.org/sqlite and needs no
// cgo; "sqlite3" uses github.com/mattn/go-sqlite3.
//
// Stored spans are read back with Query and Count and removed with
// DeleteBefore and DeleteOldest, which the retention subpackage drives.
package spanstore
