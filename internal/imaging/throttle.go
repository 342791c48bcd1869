package imaging

import (
	"sync"
	"sync/atomic"
)

// Throttle serializes decodes. Decoding is the largest transient memory
// user in the process, so at most one runs at a time; everything else
// (probing, cache lookups, progress delivery) stays outside it.
//
// Waiters block on a plain mutex. There is no fairness guarantee.
type Throttle struct {
	mu       sync.Mutex
	inFlight atomic.Int32
}

// DefaultThrottle is the process-wide decode gate. It is created at
// package initialization and lives for the lifetime of the process; every
// Pipeline uses it unless given another with WithThrottle.
var DefaultThrottle = NewThrottle()

// NewThrottle returns an unheld throttle.
func NewThrottle() *Throttle {
	return &Throttle{}
}

// Do runs fn while holding the throttle. The throttle is released when fn
// returns or panics.
func (t *Throttle) Do(fn func() error) error {
	t.mu.Lock()
	t.inFlight.Add(1)
	defer func() {
		t.inFlight.Add(-1)
		t.mu.Unlock()
	}()
	return fn()
}

// InFlight returns the number of callers currently inside Do (0 or 1).
func (t *Throttle) InFlight() int {
	return int(t.inFlight.Load())
}

// Idle reports whether the throttle is free right now, without blocking.
func (t *Throttle) Idle() bool {
	if !t.mu.TryLock() {
		return false
	}
	t.mu.Unlock()
	return true
}
