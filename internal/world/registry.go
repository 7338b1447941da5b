// Package world tracks the external simulation objects that conditions refer
// to by id: units to defeat or protect and travellers that must reach a region.
package world

import (
	"fmt"
	"sort"
	"sync"
)

// Object holds runtime information about a simulation object.
type Object struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind"`
	Tags   []string `json:"tags,omitempty"`
	Region string   `json:"region,omitempty"`
	Alive  bool     `json:"alive"`
}

// Registry maps object ids to their current state. A destroyed object stays
// listed with Alive=false so late lookups can tell it apart from a typo.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[string]*Object),
	}
}

// Spawn adds or revives an object.
func (r *Registry) Spawn(obj *Object) error {
	if obj == nil || obj.ID == "" {
		return fmt.Errorf("object id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *obj
	cpy.Tags = append([]string{}, obj.Tags...)
	cpy.Alive = true
	r.objects[obj.ID] = &cpy
	return nil
}

// Destroy marks an object as gone. It returns false if the object was unknown
// or already destroyed.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok || !obj.Alive {
		return false
	}
	obj.Alive = false
	return true
}

// Alive reports whether the object exists and has not been destroyed.
func (r *Registry) Alive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	return ok && obj.Alive
}

// MoveTo records the region an object is currently in. Unknown objects are ignored.
func (r *Registry) MoveTo(id, region string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok {
		return false
	}
	obj.Region = region
	return true
}

// Get returns a copy of an object, or nil if not found.
func (r *Registry) Get(id string) *Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if obj, ok := r.objects[id]; ok {
		cpy := *obj
		cpy.Tags = append([]string{}, obj.Tags...)
		return &cpy
	}
	return nil
}

// All returns copies of every object sorted by id.
func (r *Registry) All() []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Object, 0, len(r.objects))
	for _, obj := range r.objects {
		cpy := *obj
		cpy.Tags = append([]string{}, obj.Tags...)
		result = append(result, &cpy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
