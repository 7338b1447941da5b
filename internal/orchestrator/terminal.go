package orchestrator

// activate fires an end node. It settles immediately on its kind's result
// and, with StopGraph, halts the whole graph.
func (t *Task) activate(force bool) bool {
	if !force {
		if t.result == Disabled {
			return false
		}
		if t.activated && !t.Restartable {
			return false
		}
	}

	t.activated = true
	r := Success
	if t.Kind == KindFailureEnd {
		r = Failure
	}
	t.setState(r)

	if t.g.simulating && t.Callbacks.OnActivated != nil {
		t.Callbacks.OnActivated(t)
	}
	if t.StopGraph {
		t.g.Stop()
	}
	return true
}
