// Package probe runs synthetic HTTP probes through the capture transport.
//
// Each probe uses a retrying client (go-retryablehttp) whose transport is
// httpcapture.Transport, so every attempt becomes a client span. All
// attempts of one run share a TaskID. Scheduler runs probes on standard
// cron expressions.
package probe
