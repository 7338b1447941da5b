package orchestrator

import (
	"fmt"
	"time"
)

// Gate is one optional check of a UserCondition. A satisfied gate with
// SignalFailure fails the condition instead of contributing to success.
type Gate struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	SignalFailure bool `yaml:"signal_failure" json:"signal_failure"`
}

// Requirement is an item amount that must be obtainable from the
// condition's pool. Consume debits it when the owner succeeds.
type Requirement struct {
	Item    string `yaml:"item" json:"item"`
	Amount  int    `yaml:"amount" json:"amount"`
	Consume bool   `yaml:"consume" json:"consume"`
}

// UserCondition combines manual triggers with optional timer, counter and
// item-requirement gates.
type UserCondition struct {
	conditionBase

	TimerGate    Gate
	Duration     time.Duration
	CounterGate  Gate
	InitialCount int
	ItemsGate    Gate
	Pool         string

	counter      int
	divisor      int
	requirements []Requirement

	counterMet bool
	itemsMet   bool
}

// NewUserCondition creates a user condition with every gate disabled.
func NewUserCondition(name string) *UserCondition {
	c := &UserCondition{conditionBase: newBase(name), divisor: 1}
	c.self = c
	return c
}

func (c *UserCondition) Kind() string { return "user" }

func (c *UserCondition) Start(owner *Task) {
	c.conditionBase.Start(owner)
	c.counter = c.InitialCount
	c.counterMet = false
	c.itemsMet = false
	if c.TimerGate.Enabled && c.Duration > 0 {
		c.startTimer(c.Duration)
	}
}

func (c *UserCondition) Reset() {
	c.conditionBase.Reset()
	c.counter = c.InitialCount
	c.counterMet = false
	c.itemsMet = false
}

// Counter returns the current counter value.
func (c *UserCondition) Counter() int { return c.counter }

// SetCounter sets the counter. The gate is satisfied at zero or below.
func (c *UserCondition) SetCounter(n int) { c.counter = n }

// IncreaseCounter adds n to the counter.
func (c *UserCondition) IncreaseCounter(n int) { c.counter += n }

// DecreaseCounter subtracts n from the counter.
func (c *UserCondition) DecreaseCounter(n int) { c.counter -= n }

// Divisor returns the distribution divisor applied to requirements.
func (c *UserCondition) Divisor() int { return c.divisor }

// SetDivisor sets the distribution divisor. Values below one are treated as one.
func (c *UserCondition) SetDivisor(d int) {
	if d < 1 {
		d = 1
	}
	c.divisor = d
}

// Requirements returns a copy of the item requirements.
func (c *UserCondition) Requirements() []Requirement {
	return append([]Requirement(nil), c.requirements...)
}

// AddItem appends a requirement.
func (c *UserCondition) AddItem(item string, amount int, consume bool) {
	c.requirements = append(c.requirements, Requirement{Item: item, Amount: amount, Consume: consume})
}

// RemoveItem removes the requirement at index.
func (c *UserCondition) RemoveItem(index int) error {
	if index < 0 || index >= len(c.requirements) {
		return fmt.Errorf("requirement index %d out of range", index)
	}
	c.requirements = append(c.requirements[:index], c.requirements[index+1:]...)
	return nil
}

// ChangeValue sets the required amount of item.
func (c *UserCondition) ChangeValue(item string, amount int) error {
	for i := range c.requirements {
		if c.requirements[i].Item == item {
			c.requirements[i].Amount = amount
			return nil
		}
	}
	return fmt.Errorf("no requirement for item %q", item)
}

// Requires reports whether item is one of the requirements.
func (c *UserCondition) Requires(item string) bool {
	for _, r := range c.requirements {
		if r.Item == item {
			return true
		}
	}
	return false
}

// need scales a requirement by the divisor, rounding up.
func (c *UserCondition) need(r Requirement) int {
	if r.Amount <= 0 {
		return 0
	}
	return (r.Amount + c.divisor - 1) / c.divisor
}

func (c *UserCondition) CheckState(force bool) Result {
	if c.settled() {
		return c.result
	}
	if force {
		c.counterMet = c.counter <= 0
		c.itemsMet = c.probeItems()
	}

	gates := []struct {
		gate Gate
		met  bool
	}{
		{c.TimerGate, c.Expired()},
		{c.CounterGate, c.counterMet},
		{c.ItemsGate, c.itemsMet},
	}

	successGates, satisfied := 0, 0
	for _, g := range gates {
		if !g.gate.Enabled {
			continue
		}
		if g.gate.SignalFailure {
			if g.met {
				c.setState(Failure)
				return c.result
			}
			continue
		}
		successGates++
		if g.met {
			satisfied++
		}
	}
	if successGates > 0 && satisfied == successGates {
		c.setState(Success)
	}
	return c.result
}

// probeItems dry-runs a debit of every requirement.
func (c *UserCondition) probeItems() bool {
	if !c.ItemsGate.Enabled || c.owner == nil {
		return false
	}
	g := c.owner.g
	pool, err := g.pools.Lookup(c.Pool)
	if err != nil {
		g.log.Error("item requirement probe failed", "task", c.owner.Name, "condition", c.name, "error", err)
		return false
	}
	for _, r := range c.requirements {
		n := c.need(r)
		if n == 0 {
			continue
		}
		if left := pool.ModifyValue(r.Item, -n, 1, true, 0, 0); left != 0 {
			return false
		}
	}
	return true
}

// PostProcess debits the requirements flagged for consumption.
func (c *UserCondition) PostProcess() {
	if !c.ItemsGate.Enabled || c.owner == nil {
		return
	}
	g := c.owner.g
	for _, r := range c.requirements {
		if !r.Consume {
			continue
		}
		n := c.need(r)
		if n == 0 {
			continue
		}
		if _, err := g.pools.Modify(c.Pool, r.Item, -n, 1, false); err != nil {
			g.log.Error("consuming requirement failed", "task", c.owner.Name, "condition", c.name, "item", r.Item, "error", err)
		}
	}
}
