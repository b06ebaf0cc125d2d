package lifecycle

import (
	"log/slog"
	"sync"

	"mercator-hq/nettrace/pkg/capture"
	"mercator-hq/nettrace/pkg/config"
)

// Controller owns the capture state of the agent. It implements
// capture.StateSource; the engine reads it on every event.
type Controller struct {
	state  *capture.AtomicState
	logger *slog.Logger

	// mu serializes transitions; reads go through state only.
	mu      sync.Mutex
	enabled bool
	started bool
}

// NewController returns a controller in StateNotActive. enabled is the
// configured capture.enabled value applied on Start.
func NewController(enabled bool, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		state:   capture.NewAtomicState(capture.StateNotActive),
		logger:  logger.With("component", "lifecycle"),
		enabled: enabled,
	}
}

// State implements capture.StateSource.
func (c *Controller) State() capture.State {
	return c.state.State()
}

// Start moves through StateStarting to StateActive, or to StateNotActive
// when capture is disabled. ready runs while the state is StateStarting.
func (c *Controller) Start(ready func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transition(capture.StateStarting)
	if ready != nil {
		if err := ready(); err != nil {
			c.transition(capture.StateNotActive)
			return err
		}
	}

	c.started = true
	c.transition(c.runningState())
	return nil
}

// Stop moves through StateStopping to StateNotActive. drain runs while the
// state is StateStopping, so events reported during it are ignored.
func (c *Controller) Stop(drain func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transition(capture.StateStopping)
	if drain != nil {
		drain()
	}
	c.started = false
	c.transition(capture.StateNotActive)
}

// SetEnabled switches capture on or off. It takes effect immediately when
// the controller is started and on the next Start otherwise.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = enabled
	if c.started {
		c.transition(c.runningState())
	}
}

// Apply applies a reloaded capture configuration.
func (c *Controller) Apply(cfg *config.CaptureConfig) {
	c.SetEnabled(cfg.IsEnabled())
}

// Enabled reports the configured capture.enabled value.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Controller) runningState() capture.State {
	if c.enabled {
		return capture.StateActive
	}
	return capture.StateNotActive
}

func (c *Controller) transition(to capture.State) {
	if from := c.state.Set(to); from != to {
		c.logger.Info("capture state changed", "from", from.String(), "to", to.String())
	}
}
