// Nettrace records outgoing HTTP client requests as OpenTelemetry client
// spans and propagates W3C trace context to the servers it calls.
//
// Usage:
//
//	# Start the agent: scheduled probes, metrics and health endpoints,
//	# span retention and config watching
//	nettrace run --config nettrace.yaml
//
//	# Send one traced request and print the resulting span
//	nettrace probe https://example.com/healthz
//
//	# Query the local span store
//	nettrace spans query --errors --since 1h
//
//	# Validate a configuration file
//	nettrace validate --config nettrace.yaml
package main

import "os"

func main() {
	os.Exit(Execute())
}
