package orchestrator

// ArrivalCondition waits until every target object entered the region. An
// empty Region accepts any region.
type ArrivalCondition struct {
	conditionBase
	Targets        []string
	Region         string
	TriggerFailure bool

	arrived map[string]bool
}

// NewArrivalCondition creates an arrival condition for the given targets.
func NewArrivalCondition(name, region string, targets ...string) *ArrivalCondition {
	c := &ArrivalCondition{
		conditionBase: newBase(name),
		Targets:       targets,
		Region:        region,
		arrived:       make(map[string]bool),
	}
	c.FailOnExpiry = true
	c.self = c
	return c
}

func (c *ArrivalCondition) Kind() string { return "arrival" }

func (c *ArrivalCondition) Start(owner *Task) {
	c.arrived = make(map[string]bool)
	c.conditionBase.Start(owner)
}

func (c *ArrivalCondition) Reset() {
	c.conditionBase.Reset()
	c.arrived = make(map[string]bool)
}

// Arrived returns how many targets are inside the region.
func (c *ArrivalCondition) Arrived() int { return len(c.arrived) }

func (c *ArrivalCondition) isTarget(id string) bool {
	for _, t := range c.Targets {
		if t == id {
			return true
		}
	}
	return false
}

// ObjectEntered records that id entered region.
func (c *ArrivalCondition) ObjectEntered(id, region string) {
	if c.settled() || !c.isTarget(id) {
		return
	}
	if c.Region != "" && region != c.Region {
		return
	}
	c.arrived[id] = true
	c.CheckState(true)
}

// ObjectExited withdraws an arrival while the condition is still open.
func (c *ArrivalCondition) ObjectExited(id, region string) {
	if c.settled() {
		return
	}
	if c.Region != "" && region != c.Region {
		return
	}
	delete(c.arrived, id)
}

func (c *ArrivalCondition) CheckState(force bool) Result {
	if c.settled() {
		return c.result
	}
	switch {
	case len(c.Targets) > 0 && len(c.arrived) >= len(c.Targets):
		if c.TriggerFailure {
			c.setState(Failure)
		} else {
			c.setState(Success)
		}
	case c.Expired():
		c.setState(c.expiryResult())
	}
	return c.result
}
