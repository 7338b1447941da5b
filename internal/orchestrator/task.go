package orchestrator

import (
	"time"

	"github.com/AaronLay10/questgraph/internal/sched"
)

// DefaultCheckPeriod is the re-check interval used when neither the task nor
// the graph configures one.
const DefaultCheckPeriod = 100 * time.Millisecond

// TaskID addresses a task in its graph's arena.
type TaskID int

// Kind selects the behaviour of a task node.
type Kind int

const (
	KindTask Kind = iota
	KindOperator
	KindSuccessEnd
	KindFailureEnd
)

var kindNames = [...]string{"task", "operator", "success_end", "failure_end"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Terminal reports whether k is one of the end node kinds.
func (k Kind) Terminal() bool {
	return k == KindSuccessEnd || k == KindFailureEnd
}

// Callbacks are side effects bound when the graph is built. Each fires once
// per transition into its state while the graph is simulating.
type Callbacks struct {
	OnRunning   func(*Task)
	OnSuccess   func(*Task)
	OnFailure   func(*Task)
	OnDisabled  func(*Task)
	OnActivated func(*Task)
}

// FanOut controls which successors an operator activates on one side.
type FanOut struct {
	Random  bool
	Min     int
	Max     int
	Weights []float64
}

// Task is a node of the activation graph. Plain tasks complete when their
// conditions do; operators add gating and fan-out; end nodes complete as soon
// as they are activated.
type Task struct {
	ID       TaskID
	Name     string
	Kind     Kind
	Category int
	Hidden   bool

	StartActive               bool
	Restartable               bool
	ActivationLimit           int
	MinActivationsBeforeStart int
	CheckPeriod               time.Duration

	Callbacks Callbacks

	// Operator settings.
	AndNode            bool
	ForceFailure       bool
	OverrideConcurrent bool
	SuccessFanOut      FanOut
	FailureFanOut      FanOut

	// End node settings.
	StopGraph bool

	g            *Graph
	result       Result
	activations  int
	activated    bool
	conditions   []Condition
	onSuccess    []TaskID
	onFailure    []TaskID
	predecessors []TaskID
	check        *sched.Handle
	checking     bool
}

// NewTask creates a detached task of the given kind.
func NewTask(name string, kind Kind) *Task {
	return &Task{Name: name, Kind: kind}
}

// Result returns the current state of the task.
func (t *Task) Result() Result { return t.result }

// Activations returns how many non-forced starts were attempted.
func (t *Task) Activations() int { return t.activations }

// Activated reports whether an end node has fired.
func (t *Task) Activated() bool { return t.activated }

// Conditions returns the attached conditions in order.
func (t *Task) Conditions() []Condition {
	return append([]Condition(nil), t.conditions...)
}

// Condition returns the attached condition with the given name, or nil.
func (t *Task) Condition(name string) Condition {
	for _, c := range t.conditions {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Successors returns the tasks started on the given result.
func (t *Task) Successors(r Result) []TaskID {
	if r == Failure {
		return append([]TaskID(nil), t.onFailure...)
	}
	return append([]TaskID(nil), t.onSuccess...)
}

// Predecessors returns every task with an edge into t.
func (t *Task) Predecessors() []TaskID {
	return append([]TaskID(nil), t.predecessors...)
}

// StartTask moves the task to Running. Unless forced, the start is refused
// for disabled tasks, finished non-restartable tasks, closed AND gates and the
// activation count limits. It returns false when refused.
func (t *Task) StartTask(force bool) bool {
	if t.Kind.Terminal() {
		return t.activate(force)
	}
	if !force {
		if t.result == Disabled {
			return false
		}
		if !t.Restartable && t.result != Inactive {
			return false
		}
		if t.Kind == KindOperator && t.AndNode && !t.predecessorsSettled() {
			return false
		}
		t.activations++
		if t.activations <= t.MinActivationsBeforeStart {
			return false
		}
		if t.ActivationLimit > 0 && t.activations > t.ActivationLimit {
			return false
		}
	}

	t.StopTask()
	t.setState(Running)
	for _, c := range t.conditions {
		c.Start(t)
	}
	t.schedule()
	return true
}

// StopTask cancels the pending re-check and stops every condition. The task
// and its conditions keep their results.
func (t *Task) StopTask() {
	t.check.Cancel()
	t.check = nil
	for _, c := range t.conditions {
		c.Stop()
	}
}

// Actualize re-validates a task after a predecessor went back to Inactive.
// Only AND operators react: they fall back to Inactive when the gate no
// longer holds.
func (t *Task) Actualize() {
	if t.Kind != KindOperator || !t.AndNode {
		return
	}
	if t.result == Inactive || t.predecessorsSettled() {
		return
	}
	t.StopTask()
	t.g.removeActive(t.ID)
	t.setState(Inactive)
}

func (t *Task) period() time.Duration {
	if t.CheckPeriod > 0 {
		return t.CheckPeriod
	}
	if t.g != nil && t.g.checkPeriod > 0 {
		return t.g.checkPeriod
	}
	return DefaultCheckPeriod
}

func (t *Task) schedule() {
	t.check.Cancel()
	t.check = t.g.sched.After(t.period(), t.runCheck)
}

// conditionChanged restarts the re-check so the new condition result is
// aggregated one period later.
func (t *Task) conditionChanged() {
	if t.checking || t.result != Running {
		return
	}
	t.schedule()
}

func (t *Task) runCheck() {
	t.check = nil
	if t.result != Running {
		return
	}

	t.checking = true
	failed, done := false, true
	for _, c := range t.conditions {
		switch c.CheckState(true) {
		case Failure:
			failed = true
		case Success:
		default:
			done = false
		}
	}
	t.checking = false

	switch {
	case failed:
		t.g.complete(t, Failure)
	case done:
		t.g.complete(t, Success)
	default:
		for _, c := range t.conditions {
			if c.Trigger() && c.Result().Terminal() {
				c.base().revert()
			}
		}
		t.schedule()
	}
}

// setState records a transition and runs its side effects. Same-state calls
// are ignored.
func (t *Task) setState(r Result) {
	if t.result == r {
		return
	}
	prev := t.result
	t.result = r

	if r == Success {
		for _, c := range t.conditions {
			c.PostProcess()
		}
	}

	if t.g.simulating {
		var fn func(*Task)
		switch r {
		case Running:
			fn = t.Callbacks.OnRunning
		case Success:
			fn = t.Callbacks.OnSuccess
		case Failure:
			fn = t.Callbacks.OnFailure
		case Disabled:
			fn = t.Callbacks.OnDisabled
		}
		if fn != nil {
			fn(t)
		}
	}

	t.g.notifyTask(t, prev)

	if r == Inactive {
		seen := make(map[TaskID]bool)
		for _, id := range append(t.Successors(Success), t.onFailure...) {
			if seen[id] {
				continue
			}
			seen[id] = true
			if succ := t.g.tasks[id]; succ.result != Inactive {
				succ.Actualize()
			}
		}
	}
}

// reset returns the task to its freshly built state without side effects
// other than observer notification.
func (t *Task) reset() {
	t.StopTask()
	prev := t.result
	t.result = Inactive
	t.activations = 0
	t.activated = false
	for _, c := range t.conditions {
		c.Reset()
	}
	if prev != Inactive {
		t.g.notifyTask(t, prev)
	}
}
