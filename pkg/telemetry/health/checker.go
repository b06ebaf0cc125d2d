package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"mercator-hq/nettrace/pkg/capture"
	"mercator-hq/nettrace/pkg/config"

	"github.com/zoobzio/clockz"
)

// Status values reported by checks and by the aggregate.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc is a function that performs a health check for a component.
// It returns nil if the component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Status is "ok" or "unhealthy".
	Status string `json:"status"`

	// Message describes the failure.
	Message string `json:"message,omitempty"`

	// DurationMS is how long the check took in milliseconds.
	DurationMS float64 `json:"duration_ms"`
}

// HealthStatus represents the overall health status of the agent.
type HealthStatus struct {
	// Status is "ok" for liveness, "ready" or "degraded" for readiness.
	Status string `json:"status"`

	// Checks contains the status of individual components (for readiness)
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Capture is set on readiness once a capture source is reported.
	Capture *CaptureStatus `json:"capture,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// CaptureStatus is the capture section of the readiness payload.
type CaptureStatus struct {
	State    string `json:"state"`
	InFlight int    `json:"in_flight"`
}

// Checker manages health checks for agent components.
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]CheckFunc
	capture  capture.StateSource
	inFlight func() int

	checkTimeout time.Duration
	clock        clockz.Clock
}

// ErrCheckTimeout is reported when a health check does not return in time.
var ErrCheckTimeout = errors.New("health check timeout")

// New creates a new health checker with the specified check timeout.
// If timeout is 0, defaults to 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	return NewWithClock(checkTimeout, clockz.RealClock)
}

// NewWithClock is New with an explicit clock for timestamps and durations.
func NewWithClock(checkTimeout time.Duration, clock clockz.Clock) *Checker {
	if checkTimeout == 0 {
		checkTimeout = config.DefaultHealthCheckTimeout
	}

	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
		clock:        clock,
	}
}

// NewFromConfig creates a checker using the configured check timeout.
func NewFromConfig(cfg *config.HealthConfig) *Checker {
	return New(cfg.CheckTimeout)
}

// RegisterCheck registers a health check function for a named component.
// If a check with the same name already exists, it will be replaced.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = check
}

// ReportCapture adds the capture state and in-flight span count to every
// readiness result. inFlight may be nil.
func (c *Checker) ReportCapture(source capture.StateSource, inFlight func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capture = source
	c.inFlight = inFlight
}

// UnregisterCheck removes a health check for a named component.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.checks, name)
}

// CheckLiveness reports that the process is running.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Timestamp: c.clock.Now(),
	}
}

// CheckReadiness runs every registered check concurrently. The agent is
// ready only when all of them pass.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	source, inFlight := c.capture, c.inFlight
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()

			result := c.runCheck(ctx, check)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := StatusReady
	for _, result := range results {
		if result.Status == StatusUnhealthy {
			status = StatusDegraded
			break
		}
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Capture:   captureStatus(source, inFlight),
		Timestamp: c.clock.Now(),
	}
}

func captureStatus(source capture.StateSource, inFlight func() int) *CaptureStatus {
	if source == nil {
		return nil
	}
	cs := &CaptureStatus{State: source.State().String()}
	if inFlight != nil {
		cs.InFlight = inFlight()
	}
	return cs
}

// runCheck executes a single health check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := c.clock.Now()

	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	var err error
	select {
	case err = <-errChan:
	case <-checkCtx.Done():
		err = ErrCheckTimeout
	}

	result := CheckResult{
		Status:     StatusOK,
		DurationMS: float64(c.clock.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

// ListChecks returns the names of all registered health checks, sorted.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// CheckCount returns the number of registered health checks.
func (c *Checker) CheckCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.checks)
}
