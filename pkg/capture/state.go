package capture

import "sync/atomic"

// State is the capture state of the host process. Only StateActive enables
// span creation.
type State int32

const (
	StateNotActive State = iota
	StateActive
	StateStarting
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotActive:
		return "not_active"
	case StateActive:
		return "active"
	case StateStarting:
		return "starting"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// StateSource reports the current capture state. The engine reads it on
// every event and never owns it.
type StateSource interface {
	State() State
}

// StateFunc adapts a function to StateSource.
type StateFunc func() State

// State implements StateSource.
func (f StateFunc) State() State { return f() }

// AtomicState is a StateSource whose value can be switched at runtime.
// The zero value is StateNotActive.
type AtomicState struct {
	v atomic.Int32
}

// NewAtomicState returns an AtomicState holding s.
func NewAtomicState(s State) *AtomicState {
	a := &AtomicState{}
	a.Set(s)
	return a
}

// State implements StateSource.
func (a *AtomicState) State() State { return State(a.v.Load()) }

// Set stores s and returns the previous state.
func (a *AtomicState) Set(s State) State { return State(a.v.Swap(int32(s))) }
