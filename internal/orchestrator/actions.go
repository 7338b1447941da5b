package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AaronLay10/questgraph/internal/container"
	"github.com/AaronLay10/questgraph/internal/events"
)

// Publisher is the subset of the MQTT client used by publish actions.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, payload []byte) error
}

// ActionSpec declares a named side effect in a graph definition.
type ActionSpec struct {
	Name    string                 `yaml:"name"`
	Kind    string                 `yaml:"kind"`
	Topic   string                 `yaml:"topic,omitempty"`
	Payload map[string]interface{} `yaml:"payload,omitempty"`
	Pool    string                 `yaml:"pool,omitempty"`
	Item    string                 `yaml:"item,omitempty"`
	Delta   int                    `yaml:"delta,omitempty"`
	Message string                 `yaml:"message,omitempty"`
}

// CallbackRegistry maps names to callbacks registered by embedding code.
// The builder resolves callback names here before falling back to actions.
type CallbackRegistry struct {
	funcs map[string]func(*Task)
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{funcs: make(map[string]func(*Task))}
}

// Register binds fn to name, replacing any previous binding.
func (r *CallbackRegistry) Register(name string, fn func(*Task)) {
	r.funcs[name] = fn
}

// Lookup returns the callback bound to name.
func (r *CallbackRegistry) Lookup(name string) (func(*Task), bool) {
	if r == nil {
		return nil, false
	}
	fn, ok := r.funcs[name]
	return fn, ok
}

// ActionExecutor turns action specs into task callbacks.
type ActionExecutor struct {
	publisher Publisher
	pools     *container.Registry
	log       *slog.Logger
}

// NewActionExecutor creates an executor. publisher may be nil, in which case
// publish actions report an error when they fire.
func NewActionExecutor(publisher Publisher, pools *container.Registry, log *slog.Logger) *ActionExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &ActionExecutor{publisher: publisher, pools: pools, log: log}
}

// Bind validates spec and returns the callback that runs it.
func (e *ActionExecutor) Bind(spec ActionSpec) (func(*Task), error) {
	switch spec.Kind {
	case "mqtt.publish":
		if spec.Topic == "" {
			return nil, fmt.Errorf("action %s: missing topic", spec.Name)
		}
		return func(t *Task) { e.publish(spec, t) }, nil
	case "container.modify":
		if spec.Pool == "" || spec.Item == "" {
			return nil, fmt.Errorf("action %s: pool and item are required", spec.Name)
		}
		if _, err := e.pools.Lookup(spec.Pool); err != nil {
			return nil, fmt.Errorf("action %s: %w", spec.Name, err)
		}
		return func(t *Task) { e.modify(spec, t) }, nil
	case "log":
		return func(t *Task) {
			e.log.Info(spec.Message, "action", spec.Name, "task", t.Name, "state", t.Result().String())
		}, nil
	default:
		return nil, fmt.Errorf("action %s: unknown kind %q", spec.Name, spec.Kind)
	}
}

// publish sends the action payload, stamped with the task and its state.
func (e *ActionExecutor) publish(spec ActionSpec, t *Task) {
	payload := map[string]interface{}{
		"task":  t.Name,
		"state": t.Result().String(),
	}
	for k, v := range spec.Payload {
		payload[k] = v
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		e.actionError(spec, t, fmt.Sprintf("failed to marshal payload: %v", err))
		return
	}

	if e.publisher == nil || !e.publisher.IsConnected() {
		e.actionError(spec, t, "MQTT client not connected")
		return
	}

	if err := e.publisher.Publish(spec.Topic, payloadBytes); err != nil {
		e.actionError(spec, t, fmt.Sprintf("MQTT publish failed: %v", err))
	}
}

func (e *ActionExecutor) modify(spec ActionSpec, t *Task) {
	left, err := e.pools.Modify(spec.Pool, spec.Item, spec.Delta, 1, false)
	if err != nil {
		e.actionError(spec, t, err.Error())
		return
	}
	events.Emit("info", "container.modified", "", map[string]interface{}{
		"pool":      spec.Pool,
		"item":      spec.Item,
		"delta":     spec.Delta,
		"remainder": left,
		"task":      t.Name,
	})
}

// actionError logs a failed action and emits system.error with its context.
func (e *ActionExecutor) actionError(spec ActionSpec, t *Task, msg string) {
	fields := map[string]interface{}{
		"action": spec.Name,
		"task":   t.Name,
		"error":  msg,
	}
	if spec.Topic != "" {
		fields["topic"] = spec.Topic
	}
	e.log.Error("action failed", "action", spec.Name, "task", t.Name, "error", msg)
	events.Emit("error", "system.error", msg, fields)
}
