package health

import (
	"context"
	"fmt"

	"mercator-hq/nettrace/pkg/capture"
)

// Pinger is a dependency that can report its own reachability, such as the
// span store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CaptureStateCheck fails while capture is starting or stopping. A capture
// that is switched off by configuration is still ready.
func CaptureStateCheck(source capture.StateSource) CheckFunc {
	return func(ctx context.Context) error {
		if source == nil {
			return fmt.Errorf("capture state source not configured")
		}
		switch state := source.State(); state {
		case capture.StateActive, capture.StateNotActive:
			return nil
		default:
			return fmt.Errorf("capture is %s", state)
		}
	}
}

// PingCheck returns a CheckFunc that pings p.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// InFlightCheck fails when the number of open spans exceeds limit. It
// surfaces requests whose completion never arrived.
func InFlightCheck(inFlight func() int, limit int) CheckFunc {
	return func(ctx context.Context) error {
		if n := inFlight(); limit > 0 && n > limit {
			return fmt.Errorf("%d spans in flight exceeds limit %d", n, limit)
		}
		return nil
	}
}
