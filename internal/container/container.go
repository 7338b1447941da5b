// Package container implements countable resource pools with weight limits
// and the priority/weight distribution of value changes across pools.
package container

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDuplicatePool is returned when a pool name is registered twice.
	ErrDuplicatePool = errors.New("duplicate container name")
	// ErrUnknownPool is returned when a referenced pool is not registered.
	ErrUnknownPool = errors.New("unknown container")
	// ErrDuplicateItem is returned when a container already holds an item name.
	ErrDuplicateItem = errors.New("duplicate item")
	// ErrIndexOutOfRange is returned by positional list mutations.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Pool is anything that can absorb or release item value: a leaf Container or
// a Manager over other pools.
type Pool interface {
	Name() string
	// ModifyValue applies delta to item and returns the part that could not be
	// applied. divider > 1 means the pool is one of that many same-priority
	// siblings sharing delta; groupIncWeight/groupDecWeight carry the siblings'
	// total distribution weight for the direction of delta (0 = split equally).
	ModifyValue(item string, delta, divider int, dryRun bool, groupIncWeight, groupDecWeight float64) int
	ItemValue(item string) int
	ItemNames() []string
	DistributionWeight(increase bool) float64
}

// Item is one named stack of countable units.
type Item struct {
	Name             string  `yaml:"name" json:"name"`
	Value            int     `yaml:"value" json:"value"`
	Weight           float64 `yaml:"weight" json:"weight"`
	PerItemWeightCap float64 `yaml:"per_item_weight_cap" json:"per_item_weight_cap"`
}

// Container is a leaf pool holding an ordered list of items.
type Container struct {
	notifier

	name  string
	items []*Item

	// GlobalWeightCap bounds the summed weight of every item (0 = unbounded).
	GlobalWeightCap float64
	LockIncrease    bool
	LockDecrease    bool
	// IncreaseWeight and DecreaseWeight are only used when a manager shares a
	// change among same-priority siblings.
	IncreaseWeight float64
	DecreaseWeight float64
}

// New creates a container. Duplicate item names keep the first occurrence.
func New(name string, globalWeightCap float64, items ...Item) *Container {
	c := &Container{name: name, GlobalWeightCap: globalWeightCap}
	for _, it := range items {
		_ = c.AddItem(it)
	}
	return c
}

func (c *Container) Name() string { return c.name }

// AddItem appends an item definition.
func (c *Container) AddItem(it Item) error {
	if c.find(it.Name) != nil {
		return fmt.Errorf("container %s: %w: %s", c.name, ErrDuplicateItem, it.Name)
	}
	cpy := it
	c.items = append(c.items, &cpy)
	return nil
}

// RemoveItem removes the item at index.
func (c *Container) RemoveItem(index int) error {
	if index < 0 || index >= len(c.items) {
		return fmt.Errorf("container %s: remove item %d: %w", c.name, index, ErrIndexOutOfRange)
	}
	c.items = append(c.items[:index], c.items[index+1:]...)
	return nil
}

// Item returns a copy of the named item.
func (c *Container) Item(name string) (Item, bool) {
	if it := c.find(name); it != nil {
		return *it, true
	}
	return Item{}, false
}

// Items returns a copy of every item in order.
func (c *Container) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, *it)
	}
	return out
}

// ItemValue returns the named item's value, 0 if the item is unknown.
func (c *Container) ItemValue(name string) int {
	if it := c.find(name); it != nil {
		return it.Value
	}
	return 0
}

// ItemNames returns every item name in order.
func (c *Container) ItemNames() []string {
	out := make([]string, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it.Name)
	}
	return out
}

// ItemNamesWithValue returns the names of items holding a positive value.
func (c *Container) ItemNamesWithValue() []string {
	var out []string
	for _, it := range c.items {
		if it.Value > 0 {
			out = append(out, it.Name)
		}
	}
	return out
}

// TotalWeight returns the summed weight of every item.
func (c *Container) TotalWeight() float64 {
	var w float64
	for _, it := range c.items {
		w += float64(it.Value) * it.Weight
	}
	return w
}

func (c *Container) DistributionWeight(increase bool) float64 {
	if increase {
		return c.IncreaseWeight
	}
	return c.DecreaseWeight
}

// AddValue applies delta without sibling weighting.
func (c *Container) AddValue(item string, delta, divider int, dryRun bool) int {
	return c.ModifyValue(item, delta, divider, dryRun, 0, 0)
}

func (c *Container) ModifyValue(item string, delta, divider int, dryRun bool, groupIncWeight, groupDecWeight float64) int {
	if delta == 0 {
		return 0
	}
	it := c.find(item)
	if it == nil {
		return delta
	}

	increase := delta > 0
	if (increase && c.LockIncrease) || (!increase && c.LockDecrease) {
		return delta
	}

	groupWeight := groupDecWeight
	if increase {
		groupWeight = groupIncWeight
	}
	offered, _ := share(delta, divider, c.DistributionWeight(increase), groupWeight)

	var applied int
	if increase {
		applied = min(offered, c.room(it))
	} else {
		applied = -min(it.Value, -offered)
	}

	if !dryRun {
		it.Value += applied
	}
	return delta - applied
}

// room returns how many more units of it fit under both weight caps.
func (c *Container) room(it *Item) int {
	if it.Weight <= 0 {
		return math.MaxInt
	}
	room := math.MaxInt
	if it.PerItemWeightCap > 0 {
		room = min(room, fitting(it.PerItemWeightCap-float64(it.Value)*it.Weight, it.Weight))
	}
	if c.GlobalWeightCap > 0 {
		room = min(room, fitting(c.GlobalWeightCap-c.TotalWeight(), it.Weight))
	}
	return room
}

func (c *Container) find(name string) *Item {
	for _, it := range c.items {
		if it.Name == name {
			return it
		}
	}
	return nil
}

func fitting(free, weight float64) int {
	if free <= 0 {
		return 0
	}
	return int(math.Floor(free/weight + 1e-9))
}

// share scales delta for one member of a same-priority group of divider pools.
// It returns the part offered to the member and the part carried back to the
// caller untouched.
func share(delta, divider int, weight, groupWeight float64) (offered, rest int) {
	if divider <= 1 {
		return delta, 0
	}
	factor := 1 / float64(divider)
	if groupWeight > 0 {
		factor = weight / groupWeight
	}
	if factor > 1 {
		factor = 1
	}
	if factor < 0 {
		factor = 0
	}
	offered = int(float64(delta) * factor)
	return offered, delta - offered
}
