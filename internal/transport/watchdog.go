package transport

import (
	"sync"
	"time"
)

// PhaseWatchdog bounds how long a single protocol phase is allowed to block
// on the network. It is adapted from the teacher's HealthMonitor
// (internal/coordinator/health_monitor.go): the same
// ticker-plus-callback-on-the-bad-case shape, but watching one phase's
// deadline instead of polling a set of nodes forever.
//
// Start a watchdog at the top of a phase and Stop it once the phase's
// blocking transport call returns; if the deadline fires first, onTimeout
// runs exactly once, carrying the phase label, so the caller can fail the
// round with a named cause instead of hanging indefinitely.
type PhaseWatchdog struct {
	mu        sync.Mutex
	timer     *time.Timer
	onTimeout func(phase string)
	phase     string
	fired     bool
	stopped   bool
}

// NewPhaseWatchdog constructs a watchdog that calls onTimeout(phase) if Stop
// is not called within timeout.
//
// Example:
//
//	wd := transport.NewPhaseWatchdog("shuffle", 30*time.Second, func(phase string) {
//	    cancel() // abort the round's context
//	})
//	defer wd.Stop()
func NewPhaseWatchdog(phase string, timeout time.Duration, onTimeout func(phase string)) *PhaseWatchdog {
	w := &PhaseWatchdog{phase: phase, onTimeout: onTimeout}
	w.timer = time.AfterFunc(timeout, w.fire)
	return w
}

func (w *PhaseWatchdog) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.mu.Unlock()
	if w.onTimeout != nil {
		w.onTimeout(w.phase)
	}
}

// Stop disarms the watchdog. It is safe to call more than once and safe to
// call after the deadline has already fired — in that case Stop is a no-op
// and Fired reports true.
func (w *PhaseWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	w.timer.Stop()
}

// Fired reports whether the deadline elapsed before Stop was called.
func (w *PhaseWatchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}
