package orchestrator

import (
	"time"
)

// TimerCondition settles once its duration elapsed. With MaxDuration above
// Duration the actual duration is drawn uniformly from [Duration, MaxDuration]
// on every start.
type TimerCondition struct {
	conditionBase
	Duration       time.Duration
	MaxDuration    time.Duration
	TriggerFailure bool

	drawn time.Duration
}

// NewTimerCondition creates a timer condition with a fixed duration.
func NewTimerCondition(name string, d time.Duration) *TimerCondition {
	c := &TimerCondition{conditionBase: newBase(name), Duration: d}
	c.self = c
	return c
}

func (c *TimerCondition) Kind() string { return "timer" }

// Drawn returns the duration chosen at the last start.
func (c *TimerCondition) Drawn() time.Duration { return c.drawn }

func (c *TimerCondition) Start(owner *Task) {
	c.conditionBase.Start(owner)
	c.drawn = c.Duration
	if c.MaxDuration > c.Duration {
		c.drawn += time.Duration(owner.g.rng.Int64N(int64(c.MaxDuration-c.Duration) + 1))
	}
	c.startTimer(c.drawn)
}

func (c *TimerCondition) CheckState(force bool) Result {
	if c.settled() {
		return c.result
	}
	if c.Expired() {
		if c.TriggerFailure {
			c.setState(Failure)
		} else {
			c.setState(Success)
		}
	}
	return c.result
}
