package orchestrator

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/questgraph/internal/world"
)

// ErrUnknownAction is returned for a condition command the graph cannot apply.
var ErrUnknownAction = errors.New("unknown action")

// TaskCommand forces a task into a state by name.
type TaskCommand struct {
	Task  string `json:"task"`
	State string `json:"state"`
}

// ConditionCommand triggers a condition or edits its counter.
type ConditionCommand struct {
	Task      string `json:"task"`
	Condition string `json:"condition"`
	Action    string `json:"action"`
	Value     int    `json:"value,omitempty"`
}

// ApplyTask resolves cmd and hands it to SetStateExternal.
func (g *Graph) ApplyTask(cmd TaskCommand) error {
	t, err := g.TaskByName(cmd.Task)
	if err != nil {
		return err
	}
	r, err := ParseResult(cmd.State)
	if err != nil {
		return err
	}
	return g.SetStateExternal(t.ID, r)
}

// ApplyCondition resolves cmd and applies its action. Counter actions are
// only valid on user conditions.
func (g *Graph) ApplyCondition(cmd ConditionCommand) error {
	c, err := g.Condition(cmd.Task, cmd.Condition)
	if err != nil {
		return err
	}

	switch cmd.Action {
	case "succeed":
		c.SetSuccessful()
		return nil
	case "fail":
		c.SetFailed()
		return nil
	case "running":
		c.SetRunning()
		return nil
	}

	uc, ok := c.(*UserCondition)
	if !ok {
		return fmt.Errorf("%w %q for %s condition %s", ErrUnknownAction, cmd.Action, c.Kind(), c.Name())
	}
	switch cmd.Action {
	case "counter_set":
		uc.SetCounter(cmd.Value)
	case "counter_increase":
		uc.IncreaseCounter(cmd.Value)
	case "counter_decrease":
		uc.DecreaseCounter(cmd.Value)
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, cmd.Action)
	}
	return nil
}

// SpawnObject adds obj to the world. A spawn inside a region counts as an
// entry for running arrival conditions.
func (g *Graph) SpawnObject(obj world.Object) error {
	region := obj.Region
	obj.Region = ""
	if err := g.world.Spawn(&obj); err != nil {
		return err
	}
	if region != "" {
		g.ObjectEntered(obj.ID, region)
	}
	return nil
}
