package orchestrator

import (
	"math/rand/v2"
)

// predecessorsSettled reports whether every predecessor reached Success or
// Failure. Running, Inactive and Disabled predecessors keep an AND gate shut.
func (t *Task) predecessorsSettled() bool {
	for _, id := range t.predecessors {
		if !t.g.tasks[id].result.Terminal() {
			return false
		}
	}
	return true
}

// overrideConcurrent forces every unfinished predecessor of an operator to
// the operator's result. Their successors are not activated.
func (g *Graph) overrideConcurrent(op *Task, r Result) {
	for _, id := range op.predecessors {
		p := g.tasks[id]
		if p.result.Terminal() {
			continue
		}
		p.StopTask()
		g.removeActive(p.ID)
		p.setState(r)
	}
}

// fanOutPolicy returns the policy for the given side, or nil when every
// successor is started.
func (t *Task) fanOutPolicy(r Result) *FanOut {
	if t.Kind != KindOperator {
		return nil
	}
	p := &t.SuccessFanOut
	if r == Failure {
		p = &t.FailureFanOut
	}
	if !p.Random {
		return nil
	}
	return p
}

// pickSuccessors draws a random number of distinct successors, each draw
// weighted by the configured per-successor weight among those not yet drawn.
func pickSuccessors(rng *rand.Rand, succ []TaskID, p *FanOut) []TaskID {
	n := len(succ)
	if n == 0 {
		return nil
	}
	lo := min(max(p.Min, 0), n)
	hi := max(min(p.Max, n), lo)
	count := lo
	if hi > lo {
		count += rng.IntN(hi - lo + 1)
	}

	type candidate struct {
		id     TaskID
		weight float64
	}
	pool := make([]candidate, n)
	for i, id := range succ {
		w := 1.0
		if i < len(p.Weights) {
			w = max(p.Weights[i], 0)
		}
		pool[i] = candidate{id: id, weight: w}
	}

	picked := make([]TaskID, 0, count)
	for len(picked) < count && len(pool) > 0 {
		total := 0.0
		for _, c := range pool {
			total += c.weight
		}

		idx := len(pool) - 1
		if total <= 0 {
			idx = rng.IntN(len(pool))
		} else {
			x := rng.Float64() * total
			acc := 0.0
			for i, c := range pool {
				acc += c.weight
				if x < acc {
					idx = i
					break
				}
			}
		}

		picked = append(picked, pool[idx].id)
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return picked
}
