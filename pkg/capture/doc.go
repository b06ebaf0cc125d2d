// Package capture turns outbound network requests into client spans.
//
// A host hook reports two events per request: Observed, just before the
// request is sent, and Completed, once the response or error is known. The
// Engine starts a span on the first, keeps it in a Registry keyed by TaskID,
// and ends it on the second. Each request is captured at most once while it
// is in flight and each span is ended exactly once.
//
// When enabled, the engine also injects a W3C traceparent header into
// requests that do not already carry one.
//
//	engine := capture.NewEngine(capture.Options{
//	    State:              capture.NewAtomicState(capture.StateActive),
//	    Factory:            tracer,
//	    InjectTraceContext: true,
//	})
//	defer engine.Shutdown(ctx)
//
// The shipped host hook for net/http lives in the httpcapture subpackage.
package capture
