package sched

import "time"

// Timer is a restartable one-shot countdown that calls back on expiry.
type Timer struct {
	s        *Scheduler
	h        *Handle
	started  time.Time
	duration time.Duration
	frozen   time.Duration
	running  bool
}

// NewTimer returns a stopped timer bound to s.
func NewTimer(s *Scheduler) *Timer {
	return &Timer{s: s}
}

// Start (re)starts the countdown. fn may be nil when the owner only polls Expired.
func (t *Timer) Start(d time.Duration, fn func()) {
	t.h.Cancel()
	t.started = t.s.Now()
	t.duration = d
	t.frozen = 0
	t.running = true
	if fn != nil {
		t.h = t.s.After(d, fn)
	} else {
		t.h = nil
	}
}

// Stop cancels the pending expiry callback. Elapsed time freezes at the stop point.
func (t *Timer) Stop() {
	t.h.Cancel()
	t.h = nil
	if t.running {
		t.frozen = t.Elapsed()
	}
	t.running = false
}

// Running reports whether the countdown is active.
func (t *Timer) Running() bool {
	return t.running
}

// Duration returns the configured countdown length.
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Elapsed returns the time since Start, capped at the duration.
func (t *Timer) Elapsed() time.Duration {
	if !t.running {
		return t.frozen
	}
	e := t.s.Now().Sub(t.started)
	if e > t.duration {
		return t.duration
	}
	return e
}

// Remaining returns the time left before expiry.
func (t *Timer) Remaining() time.Duration {
	if !t.running {
		return 0
	}
	return t.duration - t.Elapsed()
}

// Expired reports whether a started countdown has reached its deadline.
func (t *Timer) Expired() bool {
	return t.running && !t.s.Now().Before(t.started.Add(t.duration))
}
