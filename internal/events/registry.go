package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// graph
	"graph.initialized":  {},
	"graph.started":      {},
	"graph.stopped":      {},
	"graph.reset":        {},
	"graph.file_changed": {},

	// task
	"task.inactive":  {},
	"task.running":   {},
	"task.succeeded": {},
	"task.failed":    {},
	"task.disabled":  {},

	// condition
	"condition.inactive":  {},
	"condition.running":   {},
	"condition.succeeded": {},
	"condition.failed":    {},

	// container
	"container.modified": {},

	// world objects
	"object.spawned":   {},
	"object.destroyed": {},
	"object.entered":   {},
	"object.exited":    {},

	// operator
	"operator.set_state": {},
	"operator.condition": {},
	"operator.container": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate returns an error for event names outside the allow-list.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
