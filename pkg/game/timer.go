package game

import (
	"sync"
	"time"
)

// Timer is a cancellable, pausable one-shot timer. It fires its callback at
// most once; after Cancel it never fires. Pausing records the residual
// duration and Resume arms a fresh underlying timer with it, so the total
// running time before firing always equals the configured interval.
//
// A pending Timer does not keep the process alive; the underlying runtime
// timers carry no such guarantee either.
type Timer struct {
	mu        sync.Mutex
	fn        func()
	remaining time.Duration
	t         *time.Timer
	startedAt time.Time
	running   bool
	paused    bool
	done      bool // fired or cancelled
}

// NewTimer creates a timer that will run fn d after Start.
func NewTimer(d time.Duration, fn func()) *Timer {
	return &Timer{fn: fn, remaining: d}
}

// Start arms the timer. Starting an already running, cancelled or fired
// timer is a no-op.
func (tm *Timer) Start() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.running || tm.paused || tm.done {
		return
	}
	tm.arm()
}

// arm starts the underlying timer for the residual duration. Caller holds mu.
func (tm *Timer) arm() {
	tm.startedAt = time.Now()
	tm.running = true
	tm.paused = false
	tm.t = time.AfterFunc(tm.remaining, tm.fire)
}

func (tm *Timer) fire() {
	tm.mu.Lock()
	// A racing Cancel or Pause may have beaten the callback to the lock.
	if tm.done || !tm.running {
		tm.mu.Unlock()
		return
	}
	tm.done = true
	tm.running = false
	fn := tm.fn
	tm.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Cancel stops the timer. After Cancel the callback never runs. Cancel is
// idempotent and safe to call in any state.
func (tm *Timer) Cancel() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.done = true
	tm.running = false
	tm.paused = false
	if tm.t != nil {
		tm.t.Stop()
	}
}

// Pause suspends a running timer, keeping track of how much of the interval
// is left.
func (tm *Timer) Pause() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.done {
		return &PreconditionError{Op: "pause after fire or cancel"}
	}
	if tm.paused {
		return &PreconditionError{Op: "pause while paused"}
	}
	if !tm.running {
		return &PreconditionError{Op: "pause before start"}
	}
	tm.t.Stop()
	tm.remaining -= time.Since(tm.startedAt)
	if tm.remaining < 0 {
		tm.remaining = 0
	}
	tm.running = false
	tm.paused = true
	return nil
}

// Resume re-arms a paused timer for the residual duration.
func (tm *Timer) Resume() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.done {
		return &PreconditionError{Op: "resume after fire or cancel"}
	}
	if tm.running {
		return &PreconditionError{Op: "resume while running"}
	}
	if !tm.paused {
		return &PreconditionError{Op: "resume before pause"}
	}
	tm.arm()
	return nil
}

// Remaining returns how much of the interval is left. It is zero once the
// timer has fired or been cancelled.
func (tm *Timer) Remaining() time.Duration {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.done {
		return 0
	}
	if tm.running {
		r := tm.remaining - time.Since(tm.startedAt)
		if r < 0 {
			r = 0
		}
		return r
	}
	return tm.remaining
}
