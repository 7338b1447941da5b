// Package sched provides the cooperative single-threaded scheduler that drives
// periodic task re-checks and condition deadlines.
//
// Every callback runs on one logical thread: either the goroutine calling
// Advance (virtual time, used by tests and the validate command) or the
// goroutine running Run (wall clock). Other goroutines hand work to that
// thread with Post or Call.
package sched

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultInboxSize is the number of posted callbacks buffered before Post blocks.
const DefaultInboxSize = 256

// ErrStopped is returned by Call when the scheduler loop has exited.
var ErrStopped = errors.New("scheduler stopped")

// Scheduler orders callbacks by due time. Ties run in scheduling order.
type Scheduler struct {
	now   time.Time
	clock func() time.Time
	queue timerQueue
	seq   uint64
	inbox chan func()
	done  chan struct{}
}

// NewVirtual returns a scheduler whose clock only moves through Advance.
func NewVirtual(start time.Time) *Scheduler {
	return &Scheduler{
		now:   start,
		inbox: make(chan func(), DefaultInboxSize),
		done:  make(chan struct{}),
	}
}

// NewRealtime returns a scheduler that follows the wall clock once Run is called.
func NewRealtime() *Scheduler {
	s := NewVirtual(time.Now())
	s.clock = time.Now
	return s
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.now
}

// After schedules fn to run d from now. A non-positive d schedules it for the
// next tick, never inline.
func (s *Scheduler) After(d time.Duration, fn func()) *Handle {
	if d < 0 {
		d = 0
	}
	s.seq++
	h := &Handle{
		due:   s.now.Add(d),
		seq:   s.seq,
		fn:    fn,
		index: -1,
		s:     s,
	}
	heap.Push(&s.queue, h)
	return h
}

// Pending returns the number of scheduled callbacks.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Advance moves virtual time forward by d, running every callback that falls
// due on the way in due-time order. Posted callbacks are drained first.
func (s *Scheduler) Advance(d time.Duration) {
	target := s.now.Add(d)
	for {
		s.drainInbox()
		if s.queue.Len() == 0 || s.queue[0].due.After(target) {
			break
		}
		h := heap.Pop(&s.queue).(*Handle)
		s.now = h.due
		h.fire()
	}
	s.now = target
}

// RunDue runs every callback that is due at the current time and returns how
// many ran.
func (s *Scheduler) RunDue() int {
	n := 0
	for s.queue.Len() > 0 && !s.queue[0].due.After(s.now) {
		h := heap.Pop(&s.queue).(*Handle)
		h.fire()
		n++
	}
	return n
}

// Post queues fn to run on the scheduler thread. It blocks when the inbox is full.
func (s *Scheduler) Post(fn func()) {
	s.inbox <- fn
}

// Call runs fn on the scheduler thread and waits for it to return. It must not
// be called from the scheduler thread itself.
//
// When ctx ends before fn has started, fn is dropped and never runs. Once fn
// has started, Call waits for it to finish and returns nil.
func (s *Scheduler) Call(ctx context.Context, fn func()) error {
	var mu sync.Mutex
	abandoned := false
	started := make(chan struct{})
	finished := make(chan struct{})
	wrapped := func() {
		mu.Lock()
		if abandoned {
			mu.Unlock()
			return
		}
		close(started)
		mu.Unlock()
		defer close(finished)
		fn()
	}

	select {
	case s.inbox <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		mu.Lock()
		select {
		case <-started:
			mu.Unlock()
			<-finished
			return nil
		default:
			abandoned = true
			mu.Unlock()
			return ctx.Err()
		}
	}
}

// Run drives the scheduler from the wall clock until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.clock == nil {
		s.clock = time.Now
	}
	defer close(s.done)

	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	for {
		s.now = s.clock()
		s.drainInbox()
		s.RunDue()

		wait := time.Hour
		if s.queue.Len() > 0 {
			wait = s.queue[0].due.Sub(s.clock())
			if wait < 0 {
				wait = 0
			}
		}
		if !wake.Stop() {
			select {
			case <-wake.C:
			default:
			}
		}
		wake.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.inbox:
			s.now = s.clock()
			fn()
		case <-wake.C:
		}
	}
}

func (s *Scheduler) drainInbox() {
	for {
		select {
		case fn := <-s.inbox:
			fn()
		default:
			return
		}
	}
}

// Handle identifies a scheduled callback.
type Handle struct {
	due       time.Time
	seq       uint64
	fn        func()
	index     int
	cancelled bool
	fired     bool
	s         *Scheduler
}

// Cancel removes the callback if it has not run yet. Safe on a nil handle.
func (h *Handle) Cancel() {
	if h == nil || h.cancelled || h.fired {
		return
	}
	h.cancelled = true
	if h.index >= 0 {
		heap.Remove(&h.s.queue, h.index)
	}
}

// Pending reports whether the callback is still waiting to run.
func (h *Handle) Pending() bool {
	return h != nil && !h.cancelled && !h.fired
}

// Due returns the time the callback is scheduled for.
func (h *Handle) Due() time.Time {
	return h.due
}

func (h *Handle) fire() {
	if h.cancelled {
		return
	}
	h.fired = true
	h.fn()
}

type timerQueue []*Handle

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	h := x.(*Handle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]
	return h
}
