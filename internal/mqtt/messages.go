package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/questgraph/internal/orchestrator"
)

// MessageVersion is the only payload version the bridge accepts.
const MessageVersion = 1

// ObjectMessage reports a spawn, region change or destruction of a world object.
type ObjectMessage struct {
	Version int      `json:"version"`
	ID      string   `json:"id"`
	Kind    string   `json:"kind,omitempty"`
	Region  string   `json:"region,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// ConditionMessage carries an operator condition command.
type ConditionMessage struct {
	Version int `json:"version"`
	orchestrator.ConditionCommand
}

// TaskMessage carries an operator task command.
type TaskMessage struct {
	Version int `json:"version"`
	orchestrator.TaskCommand
}

// ContainerMessage requests a change of an item in a pool.
type ContainerMessage struct {
	Version int    `json:"version"`
	Pool    string `json:"pool"`
	Item    string `json:"item"`
	Delta   int    `json:"delta"`
	Divider int    `json:"divider,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// ParseObject parses an object message. Region is required when
// needRegion is set.
func ParseObject(data []byte, needRegion bool) (*ObjectMessage, error) {
	var msg ObjectMessage
	if err := decode(data, &msg, &msg.Version); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if needRegion && msg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	return &msg, nil
}

// ParseCondition parses a condition command message.
func ParseCondition(data []byte) (*ConditionMessage, error) {
	var msg ConditionMessage
	if err := decode(data, &msg, &msg.Version); err != nil {
		return nil, err
	}
	if msg.Task == "" || msg.Condition == "" || msg.Action == "" {
		return nil, fmt.Errorf("task, condition and action are required")
	}
	return &msg, nil
}

// ParseTask parses a task command message.
func ParseTask(data []byte) (*TaskMessage, error) {
	var msg TaskMessage
	if err := decode(data, &msg, &msg.Version); err != nil {
		return nil, err
	}
	if msg.Task == "" || msg.State == "" {
		return nil, fmt.Errorf("task and state are required")
	}
	return &msg, nil
}

// ParseContainer parses a container change message. A missing divider
// means 1.
func ParseContainer(data []byte) (*ContainerMessage, error) {
	var msg ContainerMessage
	if err := decode(data, &msg, &msg.Version); err != nil {
		return nil, err
	}
	if msg.Pool == "" || msg.Item == "" {
		return nil, fmt.Errorf("pool and item are required")
	}
	if msg.Divider == 0 {
		msg.Divider = 1
	}
	if msg.Divider < 0 {
		return nil, fmt.Errorf("divider must be positive, got %d", msg.Divider)
	}
	return &msg, nil
}

func decode(data []byte, v any, version *int) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid message JSON: %w", err)
	}
	if *version != MessageVersion {
		return fmt.Errorf("unsupported message version: %d", *version)
	}
	return nil
}
