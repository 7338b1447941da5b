package orchestrator

// A target of a defeat or survive condition is resolved once the world no
// longer reports it alive. Unknown ids count as resolved.
func (g *Graph) resolvedCount(targets []string) int {
	n := 0
	for _, id := range targets {
		if g.world == nil || !g.world.Alive(id) {
			n++
		}
	}
	return n
}

func watches(targets []string, id string) bool {
	for _, t := range targets {
		if t == id {
			return true
		}
	}
	return false
}

// DefeatCondition succeeds once at least AtLeast targets are resolved, or all
// of them when AtLeast is zero. Deadline expiry fails it by default.
type DefeatCondition struct {
	conditionBase
	Targets []string
	AtLeast int
}

// NewDefeatCondition creates a defeat condition.
func NewDefeatCondition(name string, atLeast int, targets ...string) *DefeatCondition {
	c := &DefeatCondition{conditionBase: newBase(name), Targets: targets, AtLeast: atLeast}
	c.FailOnExpiry = true
	c.self = c
	return c
}

func (c *DefeatCondition) Kind() string { return "defeat" }

// Watches reports whether id is one of the targets.
func (c *DefeatCondition) Watches(id string) bool { return watches(c.Targets, id) }

// Required returns the number of resolved targets needed for success.
func (c *DefeatCondition) Required() int {
	if c.AtLeast <= 0 || c.AtLeast > len(c.Targets) {
		return len(c.Targets)
	}
	return c.AtLeast
}

func (c *DefeatCondition) CheckState(force bool) Result {
	if c.settled() {
		return c.result
	}
	switch {
	case c.owner.g.resolvedCount(c.Targets) >= c.Required():
		c.setState(Success)
	case c.Expired():
		c.setState(c.expiryResult())
	}
	return c.result
}

// SurviveCondition fails once more than AllowedLosses targets are resolved.
// Deadline expiry succeeds by default.
type SurviveCondition struct {
	conditionBase
	Targets       []string
	AllowedLosses int
}

// NewSurviveCondition creates a survive condition.
func NewSurviveCondition(name string, allowedLosses int, targets ...string) *SurviveCondition {
	c := &SurviveCondition{conditionBase: newBase(name), Targets: targets, AllowedLosses: allowedLosses}
	c.self = c
	return c
}

func (c *SurviveCondition) Kind() string { return "survive" }

// Watches reports whether id is one of the targets.
func (c *SurviveCondition) Watches(id string) bool { return watches(c.Targets, id) }

func (c *SurviveCondition) CheckState(force bool) Result {
	if c.settled() {
		return c.result
	}
	switch {
	case c.owner.g.resolvedCount(c.Targets) > c.AllowedLosses:
		c.setState(Failure)
	case c.Expired():
		c.setState(c.expiryResult())
	}
	return c.result
}
