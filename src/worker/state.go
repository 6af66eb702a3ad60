package worker

import "sync/atomic"

// State captures the state of a worker: Running, Suspended, or Shutdown.
type State uint32

const (
	// Running is the initial state of a worker.
	Running State = iota
	// Suspended is initialised, but not executing tasks.
	Suspended
	// Shutdown is shutdown.
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Suspended:
		return "Suspended"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
