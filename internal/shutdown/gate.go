// Package shutdown runs the daemon's teardown exactly once.
//
// Signals only store flags. Watch polls those flags on a normal goroutine,
// forwards log reopen requests and returns when termination was requested so
// the control path can call Shutdown. The Gate makes Shutdown one-shot: the
// first caller runs every registered hook in phase order, later or concurrent
// callers return false at once.
package shutdown

import "sync/atomic"

// GateState is the state of a Gate.
type GateState int32

const (
	Armed GateState = iota
	Firing
	Fired
)

func (s GateState) String() string {
	switch s {
	case Armed:
		return "armed"
	case Firing:
		return "firing"
	case Fired:
		return "fired"
	default:
		return "unknown"
	}
}

// Gate is a one-shot token.
type Gate struct {
	state atomic.Int32
}

// TryFire moves the gate from Armed to Firing. Only one caller ever gets true.
func (g *Gate) TryFire() bool {
	return g.state.CompareAndSwap(int32(Armed), int32(Firing))
}

// Complete moves a firing gate to Fired.
func (g *Gate) Complete() {
	g.state.CompareAndSwap(int32(Firing), int32(Fired))
}

// State returns the current state.
func (g *Gate) State() GateState {
	return GateState(g.state.Load())
}
