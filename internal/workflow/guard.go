package workflow

import (
	"errors"
	"sync/atomic"
)

// ErrInFlight is returned when a mutating call is made while a previous one on
// the same workflow is still pending.
var ErrInFlight = errors.New("workflow: request already in flight")

// guard admits one mutating call at a time.
type guard struct {
	busy atomic.Bool
}

func (g *guard) acquire() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	return nil
}

func (g *guard) release() { g.busy.Store(false) }

// Busy reports whether a call is pending. Front ends use it to disable controls.
func (g *guard) Busy() bool { return g.busy.Load() }
