// Package lifecycle controls when capture is active.
//
// Controller is the capture.StateSource handed to the engine. The agent
// calls Start once its exporters are ready and Stop during shutdown; in
// between, capture follows the capture.enabled setting, which
// ConfigWatcher can switch at runtime when the configuration file changes.
package lifecycle
