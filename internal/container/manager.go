package container

import (
	"fmt"
	"sort"
)

// Member is a pool referenced by a Manager. Lower priority numbers are served first.
type Member struct {
	Pool             Pool
	IncreasePriority int
	DecreasePriority int
}

func (m Member) priority(increase bool) int {
	if increase {
		return m.IncreasePriority
	}
	return m.DecreasePriority
}

// Manager is a composite pool that routes value changes across its members.
type Manager struct {
	notifier

	name    string
	members []Member

	// WeightedFanOut splits a change among equal-priority members by their
	// distribution weight instead of equally.
	WeightedFanOut bool
	IncreaseWeight float64
	DecreaseWeight float64
}

// NewManager creates an empty manager.
func NewManager(name string, weightedFanOut bool) *Manager {
	return &Manager{name: name, WeightedFanOut: weightedFanOut}
}

func (m *Manager) Name() string { return m.name }

// Add appends a member. A pool that would make the manager contain itself is rejected.
func (m *Manager) Add(member Member) error {
	if member.Pool == nil {
		return fmt.Errorf("manager %s: nil member", m.name)
	}
	if reaches(member.Pool, m) {
		return fmt.Errorf("manager %s: member %s would contain the manager itself", m.name, member.Pool.Name())
	}
	m.members = append(m.members, member)
	return nil
}

// RemoveAt removes the member at index.
func (m *Manager) RemoveAt(index int) error {
	if index < 0 || index >= len(m.members) {
		return fmt.Errorf("manager %s: remove member %d: %w", m.name, index, ErrIndexOutOfRange)
	}
	m.members = append(m.members[:index], m.members[index+1:]...)
	return nil
}

// Members returns the members in configured order.
func (m *Manager) Members() []Member {
	return append([]Member(nil), m.members...)
}

func (m *Manager) DistributionWeight(increase bool) float64 {
	if increase {
		return m.IncreaseWeight
	}
	return m.DecreaseWeight
}

// ItemValue sums the item over every member.
func (m *Manager) ItemValue(item string) int {
	total := 0
	for _, mb := range m.members {
		total += mb.Pool.ItemValue(item)
	}
	return total
}

// ItemNames returns the union of member item names in first-seen order.
func (m *Manager) ItemNames() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, mb := range m.members {
		for _, name := range mb.Pool.ItemNames() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// ItemNamesWithValue returns the item names whose summed value is positive.
func (m *Manager) ItemNamesWithValue() []string {
	var out []string
	for _, name := range m.ItemNames() {
		if m.ItemValue(name) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// AddValue applies delta without sibling weighting.
func (m *Manager) AddValue(item string, delta, divider int, dryRun bool) int {
	return m.ModifyValue(item, delta, divider, dryRun, 0, 0)
}

func (m *Manager) ModifyValue(item string, delta, divider int, dryRun bool, groupIncWeight, groupDecWeight float64) int {
	if delta == 0 {
		return 0
	}
	increase := delta > 0
	groupWeight := groupDecWeight
	if increase {
		groupWeight = groupIncWeight
	}
	offered, rest := share(delta, divider, m.DistributionWeight(increase), groupWeight)

	list := m.ordered(increase)
	if dryRun {
		return pass(list, item, offered, true) + rest
	}
	return m.distribute(list, item, offered, increase) + rest
}

// distribute walks priority groups in order until the amount is absorbed.
func (m *Manager) distribute(list []Member, item string, amount int, increase bool) int {
	remaining := amount
	for start := 0; start < len(list) && remaining != 0; {
		prio := list[start].priority(increase)
		end := start + 1
		for end < len(list) && list[end].priority(increase) == prio {
			end++
		}
		remaining = m.distributeGroup(list[start:end], item, remaining, increase)
		start = end
	}
	if m.WeightedFanOut && remaining != 0 {
		remaining = pass(list, item, remaining, false)
	}
	return remaining
}

// distributeGroup shares amount among equal-priority members, then re-offers
// what the shares left over to the same group before lower priorities see it.
func (m *Manager) distributeGroup(group []Member, item string, amount int, increase bool) int {
	if len(group) == 1 {
		return pass(group, item, amount, false)
	}

	var groupWeight float64
	if m.WeightedFanOut {
		for _, mb := range group {
			groupWeight += mb.Pool.DistributionWeight(increase)
		}
	}
	var gi, gd float64
	if increase {
		gi = groupWeight
	} else {
		gd = groupWeight
	}

	consumed := 0
	for _, mb := range group {
		left := mb.Pool.ModifyValue(item, amount, len(group), false, gi, gd)
		consumed += amount - left
	}
	return pass(group, item, amount-consumed, false)
}

// ordered returns the members sorted by priority for the direction, keeping
// configured order among equal priorities.
func (m *Manager) ordered(increase bool) []Member {
	list := append([]Member(nil), m.members...)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].priority(increase) < list[j].priority(increase)
	})
	return list
}

// pass offers amount to each member in turn without any sharing.
func pass(list []Member, item string, amount int, dryRun bool) int {
	remaining := amount
	for _, mb := range list {
		if remaining == 0 {
			break
		}
		remaining = mb.Pool.ModifyValue(item, remaining, 1, dryRun, 0, 0)
	}
	return remaining
}

func reaches(p Pool, target *Manager) bool {
	if mgr, ok := p.(*Manager); ok {
		if mgr == target {
			return true
		}
		for _, mb := range mgr.members {
			if reaches(mb.Pool, target) {
				return true
			}
		}
	}
	return false
}
