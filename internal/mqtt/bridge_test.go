package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/questgraph/internal/container"
	"github.com/AaronLay10/questgraph/internal/events"
	"github.com/AaronLay10/questgraph/internal/orchestrator"
	"github.com/AaronLay10/questgraph/internal/sched"
)

// MockMQTTClient records subscriptions and replays messages to them.
type MockMQTTClient struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	failTopic     string
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		subscriptions: make(map[string]paho.MessageHandler),
	}
}

func (m *MockMQTTClient) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic == m.failTopic {
		return &SubscribeTimeoutError{Topic: topic}
	}
	m.subscriptions[topic] = handler
	return nil
}

func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: payload})
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// inlineDispatcher runs fn on the caller's goroutine.
type inlineDispatcher struct{ calls int }

func (d *inlineDispatcher) Call(_ context.Context, fn func()) error {
	d.calls++
	fn()
	return nil
}

type stoppedDispatcher struct{}

func (stoppedDispatcher) Call(context.Context, func()) error { return sched.ErrStopped }

func newTestBridge(t *testing.T) (*Bridge, *MockMQTTClient, *orchestrator.Graph, *inlineDispatcher) {
	t.Helper()
	events.Clear()
	s := sched.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	g := orchestrator.NewGraph("test", s)
	if err := g.Pools().Register(container.New("Storage", 0, container.Item{Name: "Wood", Weight: 1})); err != nil {
		t.Fatalf("register pool: %v", err)
	}
	mock := NewMockMQTTClient()
	d := &inlineDispatcher{}
	return NewBridge(mock, d, g, "quest/", nil), mock, g, d
}

func lastEvent(t *testing.T) events.Event {
	t.Helper()
	snap := events.Snapshot()
	if len(snap) == 0 {
		t.Fatal("expected an event")
	}
	return snap[len(snap)-1]
}

func TestBridge_SubscribeAll(t *testing.T) {
	b, mock, _, _ := newTestBridge(t)

	if err := b.SubscribeAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.subscriptions) != 7 {
		t.Errorf("expected 7 subscriptions, got %d", len(mock.subscriptions))
	}
	if !b.IsSubscribed("quest/objects/destroyed") {
		t.Error("expected prefix without trailing slash")
	}

	// Idempotent until the tracking is cleared.
	delete(mock.subscriptions, "quest/tasks/set")
	b.SubscribeAll()
	if _, ok := mock.subscriptions["quest/tasks/set"]; ok {
		t.Error("expected no re-subscription while tracked")
	}
	b.ClearSubscriptions()
	b.SubscribeAll()
	if _, ok := mock.subscriptions["quest/tasks/set"]; !ok {
		t.Error("expected re-subscription after clear")
	}
}

func TestBridge_SubscribeAll_ContinuesPastFailure(t *testing.T) {
	b, mock, _, _ := newTestBridge(t)
	mock.failTopic = "quest/objects/entered"

	err := b.SubscribeAll()
	var timeout *SubscribeTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected SubscribeTimeoutError, got %v", err)
	}
	if len(b.SubscribedTopics()) != 6 {
		t.Errorf("expected 6 subscribed topics, got %d", len(b.SubscribedTopics()))
	}
}

func TestBridge_ObjectLifecycle(t *testing.T) {
	b, mock, g, d := newTestBridge(t)
	b.SubscribeAll()

	mock.SimulateMessage("quest/objects/spawned", []byte(`{"version": 1, "id": "orc-1", "kind": "orc"}`))
	if !g.World().Alive("orc-1") {
		t.Fatal("expected orc-1 spawned")
	}
	if ev := lastEvent(t); ev.Name != "object.spawned" || ev.Fields["object"] != "orc-1" {
		t.Errorf("unexpected event: %+v", ev)
	}

	mock.SimulateMessage("quest/objects/entered", []byte(`{"version": 1, "id": "orc-1", "region": "gate"}`))
	if got := g.World().Get("orc-1").Region; got != "gate" {
		t.Errorf("expected region gate, got %q", got)
	}

	mock.SimulateMessage("quest/objects/destroyed", []byte(`{"version": 1, "id": "orc-1"}`))
	if g.World().Alive("orc-1") {
		t.Error("expected orc-1 destroyed")
	}
	if d.calls != 3 {
		t.Errorf("expected 3 dispatches, got %d", d.calls)
	}
}

func TestBridge_ConditionAndTask(t *testing.T) {
	b, _, g, _ := newTestBridge(t)
	task := orchestrator.NewTask("Gather", orchestrator.KindTask)
	g.AddTask(task)
	flag := orchestrator.NewUserCondition("flag")
	g.AddCondition(task.ID, flag)

	if err := b.Handle("quest/tasks/set", []byte(`{"version": 1, "task": "Gather", "state": "running"}`)); err != nil {
		t.Fatalf("task: %v", err)
	}
	if task.Result() != orchestrator.Running {
		t.Fatalf("expected running, got %v", task.Result())
	}

	if err := b.Handle("quest/conditions/set", []byte(`{"version": 1, "task": "Gather", "condition": "flag", "action": "fail"}`)); err != nil {
		t.Fatalf("condition: %v", err)
	}
	if flag.Result() != orchestrator.Failure {
		t.Errorf("expected failed condition, got %v", flag.Result())
	}
	if ev := lastEvent(t); ev.Name != "operator.condition" || ev.Fields["source"] != "mqtt" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestBridge_ContainerModify(t *testing.T) {
	b, _, g, _ := newTestBridge(t)

	if err := b.Handle("quest/containers/modify", []byte(`{"version": 1, "pool": "Storage", "item": "Wood", "delta": 12}`)); err != nil {
		t.Fatalf("modify: %v", err)
	}
	storage, _ := g.Pools().Lookup("Storage")
	if storage.ItemValue("Wood") != 12 {
		t.Errorf("expected 12 wood, got %d", storage.ItemValue("Wood"))
	}
	ev := lastEvent(t)
	if ev.Name != "operator.container" || ev.Fields["remainder"] != 0 {
		t.Errorf("unexpected event: %+v", ev)
	}

	err := b.Handle("quest/containers/modify", []byte(`{"version": 1, "pool": "Vault", "item": "Gold", "delta": 1}`))
	if !errors.Is(err, container.ErrUnknownPool) {
		t.Errorf("expected ErrUnknownPool, got %v", err)
	}
}

func TestBridge_RejectsBadMessages(t *testing.T) {
	b, _, _, d := newTestBridge(t)

	cases := map[string]string{
		"quest/objects/entered": `{"version": 1, "id": "elder"}`,
		"quest/tasks/set":       `{"version": 3, "task": "x", "state": "success"}`,
		"quest/unknown":         `{"version": 1}`,
		"other/objects/spawned": `{"version": 1, "id": "x"}`,
	}
	for topic, payload := range cases {
		if err := b.Handle(topic, []byte(payload)); err == nil {
			t.Errorf("%s: expected error", topic)
		}
	}
	if d.calls != 0 {
		t.Errorf("rejected messages must not reach the graph, got %d dispatches", d.calls)
	}
	if ev := lastEvent(t); ev.Name != "system.error" {
		t.Errorf("expected system.error, got %s", ev.Name)
	}
}

func TestBridge_DispatcherStopped(t *testing.T) {
	events.Clear()
	g := orchestrator.NewGraph("test", sched.NewVirtual(time.Now()))
	b := NewBridge(NewMockMQTTClient(), stoppedDispatcher{}, g, "quest", nil)

	err := b.Handle("quest/objects/destroyed", []byte(`{"version": 1, "id": "orc-1"}`))
	if !errors.Is(err, sched.ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
