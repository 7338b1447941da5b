package orchestrator

import (
	"time"

	"github.com/AaronLay10/questgraph/internal/sched"
)

// Condition is an independently evaluated gate of a task. Implementations
// live in this package; they share conditionBase for state handling.
type Condition interface {
	Name() string
	Kind() string
	Result() Result
	Trigger() bool
	Owner() *Task

	// Start binds the condition to its owner and resets it to Running.
	Start(owner *Task)
	// Stop freezes the condition. It keeps its result and ignores further
	// evaluation until started again.
	Stop()
	Reset()

	// CheckState evaluates the condition and returns its current result.
	// Expensive gates are only evaluated when force is set.
	CheckState(force bool) Result
	// PostProcess runs once when the owner enters Success.
	PostProcess()

	SetSuccessful()
	SetFailed()
	SetRunning()

	base() *conditionBase
}

// conditionBase holds the state shared by every condition kind.
type conditionBase struct {
	name    string
	trigger bool
	result  Result
	owner   *Task
	stopped bool
	self    Condition

	// Optional countdown for arrival, defeat and survive conditions. Timer
	// and user conditions run it from their own duration instead.
	Deadline     time.Duration
	FailOnExpiry bool
	countdown    *sched.Timer
}

func newBase(name string) conditionBase {
	return conditionBase{name: name, stopped: true}
}

func (b *conditionBase) Name() string   { return b.name }
func (b *conditionBase) Result() Result { return b.result }
func (b *conditionBase) Trigger() bool  { return b.trigger }
func (b *conditionBase) Owner() *Task   { return b.owner }
func (b *conditionBase) base() *conditionBase {
	return b
}

// attach binds the owner at build time so manual triggers reach observers
// before the first start.
func (b *conditionBase) attach(owner *Task) { b.owner = owner }

// SetTrigger makes a consumed result fall back to Running so the condition
// can fire again.
func (b *conditionBase) SetTrigger(on bool) { b.trigger = on }

// Stopped reports whether the condition is frozen.
func (b *conditionBase) Stopped() bool { return b.stopped }

func (b *conditionBase) Start(owner *Task) {
	b.owner = owner
	b.stopped = false
	b.quietState(Running)
	b.startCountdown()
}

func (b *conditionBase) Stop() {
	b.stopped = true
	if b.countdown != nil {
		b.countdown.Stop()
	}
}

func (b *conditionBase) Reset() {
	b.Stop()
	b.quietState(Inactive)
}

func (b *conditionBase) PostProcess() {}

func (b *conditionBase) SetSuccessful() { b.setState(Success) }
func (b *conditionBase) SetFailed()     { b.setState(Failure) }
func (b *conditionBase) SetRunning()    { b.setState(Running) }

// Expired reports whether the countdown ran out.
func (b *conditionBase) Expired() bool {
	return b.countdown != nil && b.countdown.Expired()
}

// Remaining returns the time left on the countdown.
func (b *conditionBase) Remaining() time.Duration {
	if b.countdown == nil {
		return 0
	}
	return b.countdown.Remaining()
}

func (b *conditionBase) startCountdown() {
	if b.Deadline <= 0 || b.owner == nil {
		return
	}
	b.startTimer(b.Deadline)
}

func (b *conditionBase) startTimer(d time.Duration) {
	if b.countdown == nil {
		b.countdown = sched.NewTimer(b.owner.g.sched)
	}
	b.countdown.Start(d, func() { b.self.CheckState(false) })
}

func (b *conditionBase) expiryResult() Result {
	if b.FailOnExpiry {
		return Failure
	}
	return Success
}

// setState records a transition, tells observers and, unless stopped, makes
// the owner re-check.
func (b *conditionBase) setState(r Result) {
	if b.result == r {
		return
	}
	prev := b.result
	b.result = r
	if b.owner == nil {
		return
	}
	b.owner.g.notifyCondition(b.owner, b.self, prev)
	if !b.stopped {
		b.owner.conditionChanged()
	}
}

// quietState changes the result without waking the owner.
func (b *conditionBase) quietState(r Result) {
	if b.result == r {
		return
	}
	prev := b.result
	b.result = r
	if b.owner != nil {
		b.owner.g.notifyCondition(b.owner, b.self, prev)
	}
}

// revert hands a consumed trigger result back to Running.
func (b *conditionBase) revert() {
	b.quietState(Running)
}

// settled reports whether evaluation should leave the result alone.
func (b *conditionBase) settled() bool {
	return b.stopped || b.result != Running
}
