// Package health serves liveness, readiness and version endpoints for the
// nettrace agent.
//
// Readiness aggregates registered checks. The agent registers a capture
// state check, a span store ping and an in-flight span limit:
//
//	checker := health.NewFromConfig(&cfg.Telemetry.Health)
//	checker.RegisterCheck("capture", health.CaptureStateCheck(controller))
//	checker.RegisterCheck("span_store", health.PingCheck(store))
//	checker.ReportCapture(controller, engine.InFlight)
//	health.Mount(mux, &cfg.Telemetry.Health, checker, version, commit, buildTime)
//
// /ready returns 503 with status "degraded" when any check fails. Its payload
// also carries the capture state and the number of spans in flight.
package health
