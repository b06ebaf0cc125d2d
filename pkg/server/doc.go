/*
Package server serves the nettrace agent's local HTTP endpoints.

Routes, each enabled only when its backing component is configured:

	GET /metrics              Prometheus metrics
	GET /health               liveness
	GET /ready                readiness (capture state, span store)
	GET /version              build information
	GET /api/v1/capture       capture state and in-flight span count
	GET /api/v1/spans         stored spans, filtered by query parameters
	GET /api/v1/spans/count   number of stored spans matching the filters

Span filters: trace_id, name, method, server, errors, min_duration, since,
until, limit, offset and order. Every response carries an X-Request-ID
header.
*/
package server
