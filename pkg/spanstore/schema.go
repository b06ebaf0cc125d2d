package spanstore

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the span store schema.
// Times are stored as Unix nanoseconds so both drivers read them back
// identically.
const Schema = `
CREATE TABLE IF NOT EXISTS spans (
    trace_id TEXT NOT NULL,
    span_id TEXT NOT NULL,
    parent_span_id TEXT,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,

    start_unix_nano INTEGER NOT NULL,
    end_unix_nano INTEGER NOT NULL,
    duration_nano INTEGER NOT NULL,

    status TEXT NOT NULL,
    status_message TEXT,

    method TEXT,
    url TEXT,
    server_address TEXT,
    status_code INTEGER,
    error_type TEXT,

    attributes TEXT,

    PRIMARY KEY (trace_id, span_id)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spans_start ON spans(start_unix_nano);
CREATE INDEX IF NOT EXISTS idx_spans_server_address ON spans(server_address);
CREATE INDEX IF NOT EXISTS idx_spans_status ON spans(status);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, ?)
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertSpan = `
INSERT OR REPLACE INTO spans (
    trace_id, span_id, parent_span_id, name, kind,
    start_unix_nano, end_unix_nano, duration_nano,
    status, status_message,
    method, url, server_address, status_code, error_type,
    attributes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `
    trace_id, span_id, parent_span_id, name, kind,
    start_unix_nano, end_unix_nano, duration_nano,
    status, status_message,
    method, url, server_address, status_code, error_type,
    attributes
`
