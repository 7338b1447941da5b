package orchestrator

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/AaronLay10/questgraph/internal/sched"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestGraph(t *testing.T) (*Graph, *sched.Scheduler) {
	t.Helper()
	s := sched.NewVirtual(epoch)
	g := NewGraph("test", s)
	g.SetRand(rand.New(rand.NewPCG(7, 11)))
	return g, s
}

func mustAdd(t *testing.T, g *Graph, name string, kind Kind) *Task {
	t.Helper()
	task := NewTask(name, kind)
	if _, err := g.AddTask(task); err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return task
}

func mustConnect(t *testing.T, g *Graph, from, to *Task, onFailure bool) {
	t.Helper()
	if err := g.Connect(from.ID, to.ID, onFailure); err != nil {
		t.Fatalf("connect %s -> %s: %v", from.Name, to.Name, err)
	}
}

// transitions records task results in notification order.
type transitions struct {
	ObserverFuncs
	tasks []string
}

func record(g *Graph) *transitions {
	tr := &transitions{}
	tr.OnTask = func(task *Task, prev Result) {
		tr.tasks = append(tr.tasks, task.Name+":"+task.Result().String())
	}
	g.AddObserver(tr)
	return tr
}

func (tr *transitions) count(entry string) int {
	n := 0
	for _, e := range tr.tasks {
		if e == entry {
			n++
		}
	}
	return n
}

func TestZeroConditionTaskSucceedsAfterOnePeriod(t *testing.T) {
	g, s := newTestGraph(t)
	task := mustAdd(t, g, "Idle", KindTask)

	if !task.StartTask(false) {
		t.Fatal("expected start to succeed")
	}
	if task.Result() != Running {
		t.Fatalf("expected running right after start, got %v", task.Result())
	}

	s.Advance(DefaultCheckPeriod - time.Millisecond)
	if task.Result() != Running {
		t.Fatalf("expected running before the first check, got %v", task.Result())
	}

	s.Advance(time.Millisecond)
	if task.Result() != Success {
		t.Fatalf("expected success after one period, got %v", task.Result())
	}
}

func TestTaskFailsWhenOneUserConditionFails(t *testing.T) {
	g, s := newTestGraph(t)
	task := mustAdd(t, g, "Defend", KindTask)
	task.StartActive = true
	first := NewUserCondition("first")
	second := NewUserCondition("second")
	g.AddCondition(task.ID, first)
	g.AddCondition(task.ID, second)

	failures := 0
	task.Callbacks.OnFailure = func(*Task) { failures++ }
	tr := record(g)

	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Advance(250 * time.Millisecond)
	if task.Result() != Running {
		t.Fatalf("expected task to keep running, got %v", task.Result())
	}

	first.SetFailed()
	if task.Result() != Running {
		t.Fatal("task must only fail on its next check")
	}

	s.Advance(task.period())
	if task.Result() != Failure {
		t.Fatalf("expected failure, got %v", task.Result())
	}
	if failures != 1 {
		t.Errorf("expected OnFailure once, got %d", failures)
	}
	if n := tr.count("Defend:failure"); n != 1 {
		t.Errorf("expected one failure transition, got %d", n)
	}
	if len(g.ActiveTasks()) != 0 {
		t.Errorf("expected no active tasks, got %d", len(g.ActiveTasks()))
	}

	s.Advance(time.Second)
	if failures != 1 {
		t.Errorf("expected no further failure callbacks, got %d", failures)
	}
}

func TestDisabledTaskOnlyRestartsWhenForced(t *testing.T) {
	g, _ := newTestGraph(t)
	task := mustAdd(t, g, "Build", KindTask)
	task.Restartable = true

	g.TaskDisabled(task.ID)
	if task.Result() != Disabled {
		t.Fatalf("expected disabled, got %v", task.Result())
	}
	if task.StartTask(false) {
		t.Fatal("disabled task must refuse a normal start")
	}
	if task.Result() != Disabled {
		t.Fatalf("refused start must not change state, got %v", task.Result())
	}

	if err := g.StartExternal(task.ID); err != nil {
		t.Fatalf("start external: %v", err)
	}
	if task.Result() != Running {
		t.Fatalf("expected forced start to run, got %v", task.Result())
	}
	if len(g.ActiveTasks()) != 1 {
		t.Errorf("expected forced task to be active")
	}
}

func TestActivationGates(t *testing.T) {
	g, _ := newTestGraph(t)

	delayed := mustAdd(t, g, "Delayed", KindTask)
	delayed.MinActivationsBeforeStart = 2
	for i := 0; i < 2; i++ {
		if delayed.StartTask(false) {
			t.Fatalf("start %d should be swallowed", i+1)
		}
	}
	if delayed.Result() != Inactive {
		t.Fatalf("expected inactive, got %v", delayed.Result())
	}
	if !delayed.StartTask(false) {
		t.Fatal("third start should go through")
	}

	limited := mustAdd(t, g, "Limited", KindTask)
	limited.Restartable = true
	limited.ActivationLimit = 2
	if !limited.StartTask(false) || !limited.StartTask(false) {
		t.Fatal("expected the first two starts to succeed")
	}
	if limited.StartTask(false) {
		t.Fatal("expected the third start to be refused")
	}
	if limited.Activations() != 3 {
		t.Errorf("expected 3 counted activations, got %d", limited.Activations())
	}
}

func TestNonRestartableTaskRefusesSecondStart(t *testing.T) {
	g, s := newTestGraph(t)
	task := mustAdd(t, g, "Once", KindTask)

	task.StartTask(false)
	s.Advance(DefaultCheckPeriod)
	if task.Result() != Success {
		t.Fatalf("expected success, got %v", task.Result())
	}
	if task.StartTask(false) {
		t.Fatal("finished non-restartable task must refuse")
	}
}

func TestCallbacksFireOnlyWhileSimulating(t *testing.T) {
	g, s := newTestGraph(t)
	task := mustAdd(t, g, "Quiet", KindTask)

	var fired []string
	task.Callbacks.OnRunning = func(*Task) { fired = append(fired, "running") }
	task.Callbacks.OnSuccess = func(*Task) { fired = append(fired, "success") }

	task.StartTask(false)
	s.Advance(DefaultCheckPeriod)
	if len(fired) != 0 {
		t.Fatalf("expected no callbacks outside a run, got %v", fired)
	}

	g.Reset()
	task.StartActive = true
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Advance(DefaultCheckPeriod)
	if len(fired) != 2 || fired[0] != "running" || fired[1] != "success" {
		t.Errorf("expected [running success], got %v", fired)
	}
}

func TestConditionChangeRestartsCheck(t *testing.T) {
	g, s := newTestGraph(t)
	task := mustAdd(t, g, "Wait", KindTask)
	c := NewUserCondition("switch")
	g.AddCondition(task.ID, c)

	task.StartTask(false)
	s.Advance(80 * time.Millisecond)
	c.SetSuccessful()

	s.Advance(90 * time.Millisecond)
	if task.Result() != Running {
		t.Fatalf("check should have been pushed back, got %v", task.Result())
	}
	s.Advance(10 * time.Millisecond)
	if task.Result() != Success {
		t.Fatalf("expected success one period after the change, got %v", task.Result())
	}
}

func TestStoppedConditionKeepsResult(t *testing.T) {
	g, _ := newTestGraph(t)
	task := mustAdd(t, g, "Hold", KindTask)
	c := NewTimerCondition("wait", time.Second)
	g.AddCondition(task.ID, c)

	task.StartTask(false)
	task.StopTask()
	if c.Result() != Running {
		t.Fatalf("expected running to be kept, got %v", c.Result())
	}
	if got := c.CheckState(true); got != Running {
		t.Errorf("stopped condition must not re-evaluate, got %v", got)
	}
}

func TestResultParse(t *testing.T) {
	for _, r := range []Result{Inactive, Running, Success, Failure, Disabled} {
		parsed, err := ParseResult(r.String())
		if err != nil || parsed != r {
			t.Errorf("round trip of %v gave %v, %v", r, parsed, err)
		}
	}
	if _, err := ParseResult("done"); err == nil {
		t.Error("expected error for unknown state")
	}
}
