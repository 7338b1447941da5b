package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/questgraph/internal/events"
	"github.com/AaronLay10/questgraph/internal/orchestrator"
	"github.com/AaronLay10/questgraph/internal/world"
)

// Subscriber is the part of Client the bridge needs.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Dispatcher runs fn on the goroutine that owns the graph and waits for it.
type Dispatcher interface {
	Call(ctx context.Context, fn func()) error
}

// Bridge feeds world and operator messages from the broker into a graph.
// Every mutation runs through the dispatcher.
type Bridge struct {
	mu         sync.RWMutex
	client     Subscriber
	dispatch   Dispatcher
	graph      *orchestrator.Graph
	prefix     string
	log        *slog.Logger
	subscribed map[string]bool // topic -> subscribed

	// Timeout bounds how long a message waits for the graph loop.
	Timeout time.Duration
}

// NewBridge creates a bridge for topics below prefix.
func NewBridge(client Subscriber, dispatch Dispatcher, g *orchestrator.Graph, prefix string, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		client:     client,
		dispatch:   dispatch,
		graph:      g,
		prefix:     strings.TrimSuffix(prefix, "/"),
		log:        log.With("component", "mqtt"),
		subscribed: make(map[string]bool),
		Timeout:    5 * time.Second,
	}
}

var bridgeTopics = []string{
	"objects/spawned",
	"objects/entered",
	"objects/exited",
	"objects/destroyed",
	"tasks/set",
	"conditions/set",
	"containers/modify",
}

// Topics returns the full topic names the bridge listens on.
func (b *Bridge) Topics() []string {
	out := make([]string, len(bridgeTopics))
	for i, t := range bridgeTopics {
		out[i] = b.prefix + "/" + t
	}
	return out
}

// SubscribeAll subscribes to every bridge topic not yet subscribed. It is
// idempotent and keeps going past a failed topic.
func (b *Bridge) SubscribeAll() error {
	var firstErr error
	for _, topic := range b.Topics() {
		if b.IsSubscribed(topic) {
			continue
		}
		if err := b.client.Subscribe(topic, b.handler); err != nil {
			b.log.Error("subscribe failed", "topic", topic, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		b.mu.Lock()
		b.subscribed[topic] = true
		b.mu.Unlock()
	}
	return firstErr
}

// IsSubscribed returns true if the topic is already subscribed.
func (b *Bridge) IsSubscribed(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribed[topic]
}

// SubscribedTopics returns every subscribed topic in sorted order.
func (b *Bridge) SubscribedTopics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.subscribed))
	for topic := range b.subscribed {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// ClearSubscriptions clears the subscription tracking.
// Call this on disconnect to allow re-subscription on reconnect.
func (b *Bridge) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = make(map[string]bool)
}

func (b *Bridge) handler(_ paho.Client, msg paho.Message) {
	_ = b.Handle(msg.Topic(), msg.Payload())
}

// Handle parses payload according to topic and applies it to the graph.
// Failures are logged and reported as system.error.
func (b *Bridge) Handle(topic string, payload []byte) error {
	err := b.handle(topic, payload)
	if err != nil {
		b.log.Warn("message rejected", "topic", topic, "error", err)
		events.Emit("error", "system.error", "mqtt message rejected", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	}
	return err
}

func (b *Bridge) handle(topic string, payload []byte) error {
	suffix, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return fmt.Errorf("topic outside prefix %s", b.prefix)
	}

	var (
		apply  func() error
		event  string
		fields map[string]interface{}
	)
	switch suffix {
	case "objects/spawned", "objects/entered", "objects/exited", "objects/destroyed":
		msg, err := ParseObject(payload, suffix == "objects/entered" || suffix == "objects/exited")
		if err != nil {
			return err
		}
		event = "object." + strings.TrimPrefix(suffix, "objects/")
		fields = map[string]interface{}{"object": msg.ID}
		if msg.Region != "" {
			fields["region"] = msg.Region
		}
		apply = b.objectChange(suffix, msg)

	case "tasks/set":
		msg, err := ParseTask(payload)
		if err != nil {
			return err
		}
		event = "operator.set_state"
		fields = map[string]interface{}{"task": msg.Task, "state": msg.State, "source": "mqtt"}
		apply = func() error { return b.graph.ApplyTask(msg.TaskCommand) }

	case "conditions/set":
		msg, err := ParseCondition(payload)
		if err != nil {
			return err
		}
		event = "operator.condition"
		fields = map[string]interface{}{
			"task":      msg.Task,
			"condition": msg.Condition,
			"action":    msg.Action,
			"source":    "mqtt",
		}
		apply = func() error { return b.graph.ApplyCondition(msg.ConditionCommand) }

	case "containers/modify":
		msg, err := ParseContainer(payload)
		if err != nil {
			return err
		}
		event = "operator.container"
		fields = map[string]interface{}{
			"pool":   msg.Pool,
			"item":   msg.Item,
			"delta":  msg.Delta,
			"source": "mqtt",
		}
		apply = func() error {
			left, err := b.graph.Pools().Modify(msg.Pool, msg.Item, msg.Delta, msg.Divider, msg.DryRun)
			fields["remainder"] = left
			return err
		}

	default:
		return fmt.Errorf("unknown topic %s", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.Timeout)
	defer cancel()
	var applyErr error
	if err := b.dispatch.Call(ctx, func() { applyErr = apply() }); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if applyErr != nil {
		return applyErr
	}
	events.Emit("info", event, "", fields)
	return nil
}

func (b *Bridge) objectChange(suffix string, msg *ObjectMessage) func() error {
	switch suffix {
	case "objects/spawned":
		return func() error {
			return b.graph.SpawnObject(world.Object{ID: msg.ID, Kind: msg.Kind, Region: msg.Region, Tags: msg.Tags})
		}
	case "objects/entered":
		return func() error {
			b.graph.ObjectEntered(msg.ID, msg.Region)
			return nil
		}
	case "objects/exited":
		return func() error {
			b.graph.ObjectExited(msg.ID, msg.Region)
			return nil
		}
	default:
		return func() error {
			b.graph.ObjectDestroyed(msg.ID)
			return nil
		}
	}
}
