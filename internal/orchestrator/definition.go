package orchestrator

import (
	"time"

	"github.com/AaronLay10/questgraph/internal/container"
)

// Definition is the top-level graph file.
type Definition struct {
	Version     int           `yaml:"version"`
	Name        string        `yaml:"name"`
	CheckPeriod time.Duration `yaml:"check_period,omitempty"`
	Pools       []PoolDef     `yaml:"pools,omitempty"`
	Managers    []ManagerDef  `yaml:"managers,omitempty"`
	Objects     []ObjectDef   `yaml:"objects,omitempty"`
	Actions     []ActionSpec  `yaml:"actions,omitempty"`
	Tasks       []TaskDef     `yaml:"tasks"`
}

// PoolDef declares a leaf container.
type PoolDef struct {
	Name            string           `yaml:"name"`
	GlobalWeightCap float64          `yaml:"global_weight_cap,omitempty"`
	LockIncrease    bool             `yaml:"lock_increase,omitempty"`
	LockDecrease    bool             `yaml:"lock_decrease,omitempty"`
	IncreaseWeight  float64          `yaml:"increase_weight,omitempty"`
	DecreaseWeight  float64          `yaml:"decrease_weight,omitempty"`
	Items           []container.Item `yaml:"items"`
}

// ManagerDef declares a composite pool. Members reference pools or managers
// declared earlier in the file.
type ManagerDef struct {
	Name           string      `yaml:"name"`
	WeightedFanOut bool        `yaml:"weighted_fan_out,omitempty"`
	IncreaseWeight float64     `yaml:"increase_weight,omitempty"`
	DecreaseWeight float64     `yaml:"decrease_weight,omitempty"`
	Members        []MemberDef `yaml:"members"`
}

// MemberDef places a pool inside a manager.
type MemberDef struct {
	Pool             string `yaml:"pool"`
	IncreasePriority int    `yaml:"increase_priority,omitempty"`
	DecreasePriority int    `yaml:"decrease_priority,omitempty"`
}

// ObjectDef seeds the world registry.
type ObjectDef struct {
	ID     string   `yaml:"id"`
	Kind   string   `yaml:"kind,omitempty"`
	Tags   []string `yaml:"tags,omitempty"`
	Region string   `yaml:"region,omitempty"`
}

// TaskDef declares one node.
type TaskDef struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind,omitempty"`
	Category    int           `yaml:"category,omitempty"`
	Hidden      bool          `yaml:"hidden,omitempty"`
	StartActive bool          `yaml:"start_active,omitempty"`
	Restartable bool          `yaml:"restartable,omitempty"`
	Limit       int           `yaml:"activation_limit,omitempty"`
	MinStarts   int           `yaml:"min_activations,omitempty"`
	CheckPeriod time.Duration `yaml:"check_period,omitempty"`

	OnRunning   string `yaml:"on_running,omitempty"`
	OnSuccess   string `yaml:"on_success,omitempty"`
	OnFailure   string `yaml:"on_failure,omitempty"`
	OnDisabled  string `yaml:"on_disabled,omitempty"`
	OnActivated string `yaml:"on_activated,omitempty"`

	And                bool      `yaml:"and,omitempty"`
	ForceFailure       bool      `yaml:"force_failure,omitempty"`
	OverrideConcurrent bool      `yaml:"override_concurrent,omitempty"`
	SuccessFanOut      FanOutDef `yaml:"success_fan_out,omitempty"`
	FailureFanOut      FanOutDef `yaml:"failure_fan_out,omitempty"`

	StopGraph bool `yaml:"stop_graph,omitempty"`

	Success    []string       `yaml:"success,omitempty"`
	Failure    []string       `yaml:"failure,omitempty"`
	Conditions []ConditionDef `yaml:"conditions,omitempty"`
}

// FanOutDef is the file form of FanOut.
type FanOutDef struct {
	Random  bool      `yaml:"random,omitempty"`
	Min     int       `yaml:"min,omitempty"`
	Max     int       `yaml:"max,omitempty"`
	Weights []float64 `yaml:"weights,omitempty"`
}

// ConditionDef declares one condition. Fields apply per kind.
type ConditionDef struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Trigger bool   `yaml:"trigger,omitempty"`

	Duration       time.Duration `yaml:"duration,omitempty"`
	MaxDuration    time.Duration `yaml:"max_duration,omitempty"`
	TriggerFailure bool          `yaml:"trigger_failure,omitempty"`

	Deadline time.Duration `yaml:"deadline,omitempty"`
	Expiry   string        `yaml:"expiry,omitempty"`

	Timer   Gate       `yaml:"timer,omitempty"`
	Counter CounterDef `yaml:"counter,omitempty"`
	Items   ItemsDef   `yaml:"items,omitempty"`

	Targets       []string `yaml:"targets,omitempty"`
	Region        string   `yaml:"region,omitempty"`
	AtLeast       int      `yaml:"at_least,omitempty"`
	AllowedLosses int      `yaml:"allowed_losses,omitempty"`
}

// CounterDef configures the counter gate of a user condition.
type CounterDef struct {
	Gate    `yaml:",inline"`
	Initial int `yaml:"initial,omitempty"`
}

// ItemsDef configures the item-requirement gate of a user condition.
type ItemsDef struct {
	Gate    `yaml:",inline"`
	Pool    string        `yaml:"pool,omitempty"`
	Divisor int           `yaml:"divisor,omitempty"`
	Require []Requirement `yaml:"require,omitempty"`
}
