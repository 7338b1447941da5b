package container

import (
	"errors"
	"fmt"
)

// errNoRegistry is returned by UpdateConsumerConditions on an unregistered pool.
var errNoRegistry = errors.New("pool is not registered")

// notifier links a pool to the registry it was registered in.
type notifier struct {
	registry *Registry
}

func (n *notifier) attach(r *Registry) { n.registry = r }

// UpdateConsumerConditions tells every listener of the owning registry that
// item changed, so consumers re-evaluate without waiting for their next tick.
func (n *notifier) UpdateConsumerConditions(item string) error {
	if n.registry == nil {
		return errNoRegistry
	}
	n.registry.Notify(item)
	return nil
}

type attacher interface {
	attach(r *Registry)
}

// Registry holds the named pools of one graph instance.
type Registry struct {
	pools     map[string]Pool
	order     []string
	listeners []func(item string)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]Pool)}
}

// Register adds a pool under its name.
func (r *Registry) Register(p Pool) error {
	name := p.Name()
	if _, exists := r.pools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePool, name)
	}
	r.pools[name] = p
	r.order = append(r.order, name)
	if a, ok := p.(attacher); ok {
		a.attach(r)
	}
	return nil
}

// Lookup returns the named pool.
func (r *Registry) Lookup(name string) (Pool, error) {
	p, ok := r.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, name)
	}
	return p, nil
}

// Names returns every registered pool name in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// OnChange registers a listener invoked after a non-dry-run change of an item.
func (r *Registry) OnChange(fn func(item string)) {
	r.listeners = append(r.listeners, fn)
}

// Notify invokes every change listener in registration order.
func (r *Registry) Notify(item string) {
	for _, fn := range r.listeners {
		fn(item)
	}
}

// Modify applies delta to item in the named pool and notifies listeners when
// anything changed. It returns the unconsumed remainder.
func (r *Registry) Modify(pool, item string, delta, divider int, dryRun bool) (int, error) {
	p, err := r.Lookup(pool)
	if err != nil {
		return delta, err
	}
	left := p.ModifyValue(item, delta, divider, dryRun, 0, 0)
	if !dryRun && left != delta {
		r.Notify(item)
	}
	return left, nil
}
