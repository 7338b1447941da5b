package orchestrator

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/AaronLay10/questgraph/internal/container"
	"github.com/AaronLay10/questgraph/internal/events"
)

// MockPublisher is a mock MQTT client for testing.
type MockPublisher struct {
	mu           sync.Mutex
	connected    bool
	published    []PublishedMessage
	publishError error
}

type PublishedMessage struct {
	Topic   string
	Payload []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		connected: true,
		published: []PublishedMessage{},
	}
}

func (m *MockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockPublisher) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.published = append(m.published, PublishedMessage{Topic: topic, Payload: payload})
	return nil
}

func (m *MockPublisher) GetPublished() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage{}, m.published...)
}

func (m *MockPublisher) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func TestActionExecutor_Publish(t *testing.T) {
	mockClient := NewMockPublisher()
	executor := NewActionExecutor(mockClient, container.NewRegistry(), nil)

	fn, err := executor.Bind(ActionSpec{
		Name:    "announce",
		Kind:    "mqtt.publish",
		Topic:   "quest/announce",
		Payload: map[string]interface{}{"channel": "village"},
	})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	task := NewTask("Gather", KindTask)
	task.result = Success
	fn(task)

	published := mockClient.GetPublished()
	if len(published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(published))
	}
	if published[0].Topic != "quest/announce" {
		t.Errorf("wrong topic: %s", published[0].Topic)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(published[0].Payload, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if payload["task"] != "Gather" || payload["state"] != "success" || payload["channel"] != "village" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestActionExecutor_PublishFailuresEmitErrors(t *testing.T) {
	mockClient := NewMockPublisher()
	executor := NewActionExecutor(mockClient, container.NewRegistry(), nil)
	fn, err := executor.Bind(ActionSpec{Name: "announce", Kind: "mqtt.publish", Topic: "quest/announce"})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	task := NewTask("Gather", KindTask)

	for _, setup := range []func(){
		func() { mockClient.SetConnected(false) },
		func() {
			mockClient.SetConnected(true)
			mockClient.publishError = errors.New("broker gone")
		},
	} {
		events.Clear()
		setup()
		fn(task)

		found := false
		for _, e := range events.Snapshot() {
			if e.Name == "system.error" && e.Fields["action"] == "announce" {
				found = true
			}
		}
		if !found {
			t.Error("expected system.error event")
		}
	}
	if len(mockClient.GetPublished()) != 0 {
		t.Error("nothing should have been published")
	}
}

func TestActionExecutor_ContainerModify(t *testing.T) {
	pools := container.NewRegistry()
	silo := container.New("Silo", 0, container.Item{Name: "Wood", Weight: 1})
	if err := pools.Register(silo); err != nil {
		t.Fatalf("register: %v", err)
	}
	executor := NewActionExecutor(nil, pools, nil)

	fn, err := executor.Bind(ActionSpec{Name: "reward", Kind: "container.modify", Pool: "Silo", Item: "Wood", Delta: 7})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	fn(NewTask("Quest", KindTask))
	if silo.ItemValue("Wood") != 7 {
		t.Errorf("expected 7 wood, got %d", silo.ItemValue("Wood"))
	}

	if _, err := executor.Bind(ActionSpec{Name: "bad", Kind: "container.modify", Pool: "Vault", Item: "Wood"}); !errors.Is(err, container.ErrUnknownPool) {
		t.Errorf("expected ErrUnknownPool, got %v", err)
	}
	if _, err := executor.Bind(ActionSpec{Name: "bad", Kind: "teleport"}); err == nil {
		t.Error("expected unknown kind error")
	}
}
