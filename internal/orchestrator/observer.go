package orchestrator

import (
	"github.com/AaronLay10/questgraph/internal/events"
)

// Observer is notified of every transition before the next one is processed.
// Observers run on the scheduler goroutine and must not block.
type Observer interface {
	TaskStateChanged(t *Task, prev Result)
	ConditionStateChanged(t *Task, c Condition, prev Result)
	GraphInitialized(g *Graph)
	GraphStopped(g *Graph)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnTask        func(t *Task, prev Result)
	OnCondition   func(t *Task, c Condition, prev Result)
	OnInitialized func(g *Graph)
	OnStopped     func(g *Graph)
}

func (f ObserverFuncs) TaskStateChanged(t *Task, prev Result) {
	if f.OnTask != nil {
		f.OnTask(t, prev)
	}
}

func (f ObserverFuncs) ConditionStateChanged(t *Task, c Condition, prev Result) {
	if f.OnCondition != nil {
		f.OnCondition(t, c, prev)
	}
}

func (f ObserverFuncs) GraphInitialized(g *Graph) {
	if f.OnInitialized != nil {
		f.OnInitialized(g)
	}
}

func (f ObserverFuncs) GraphStopped(g *Graph) {
	if f.OnStopped != nil {
		f.OnStopped(g)
	}
}

// EventObserver forwards transitions to the events stream.
type EventObserver struct{}

var taskEvents = map[Result]string{
	Inactive: "task.inactive",
	Running:  "task.running",
	Success:  "task.succeeded",
	Failure:  "task.failed",
	Disabled: "task.disabled",
}

var conditionEvents = map[Result]string{
	Inactive: "condition.inactive",
	Running:  "condition.running",
	Success:  "condition.succeeded",
	Failure:  "condition.failed",
}

func (EventObserver) TaskStateChanged(t *Task, prev Result) {
	level := "info"
	if t.Result() == Failure {
		level = "warn"
	}
	events.Emit(level, taskEvents[t.Result()], "", map[string]interface{}{
		"task": t.Name,
		"kind": t.Kind.String(),
		"prev": prev.String(),
	})
}

func (EventObserver) ConditionStateChanged(t *Task, c Condition, prev Result) {
	name, ok := conditionEvents[c.Result()]
	if !ok {
		return
	}
	events.Emit("info", name, "", map[string]interface{}{
		"task":      t.Name,
		"condition": c.Name(),
		"kind":      c.Kind(),
		"prev":      prev.String(),
	})
}

func (EventObserver) GraphInitialized(g *Graph) {
	events.SetSession(g.Session())
	events.Emit("info", "graph.initialized", "", map[string]interface{}{
		"graph":   g.Name(),
		"session": g.Session(),
		"tasks":   len(g.tasks),
	})
}

func (EventObserver) GraphStopped(g *Graph) {
	events.Emit("info", "graph.stopped", "", map[string]interface{}{
		"graph":   g.Name(),
		"session": g.Session(),
	})
}
