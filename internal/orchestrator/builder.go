package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/AaronLay10/questgraph/internal/container"
	"github.com/AaronLay10/questgraph/internal/sched"
	"github.com/AaronLay10/questgraph/internal/world"
)

// ErrMissingCallback is returned when a task names a callback that is neither
// registered nor declared as an action.
var ErrMissingCallback = errors.New("missing callback")

// BuildOptions carries the collaborators a built graph is wired to. Zero
// values get defaults.
type BuildOptions struct {
	Callbacks *CallbackRegistry
	Publisher Publisher
	World     *world.Registry
	Rand      *rand.Rand
	Logger    *slog.Logger
	Observers []Observer
}

// Build assembles a graph from its definition. Configuration errors are
// returned wrapped with the offending element.
func Build(def *Definition, s *sched.Scheduler, opts BuildOptions) (*Graph, error) {
	g := NewGraph(def.Name, s)
	g.SetLogger(opts.Logger)
	if opts.Rand != nil {
		g.SetRand(opts.Rand)
	}
	if opts.World != nil {
		g.SetWorld(opts.World)
	}
	g.SetCheckPeriod(def.CheckPeriod)

	if err := buildPools(g.pools, def); err != nil {
		return nil, err
	}

	for _, o := range def.Objects {
		if err := g.world.Spawn(&world.Object{ID: o.ID, Kind: o.Kind, Tags: o.Tags, Region: o.Region}); err != nil {
			return nil, fmt.Errorf("object %q: %w", o.ID, err)
		}
	}

	exec := NewActionExecutor(opts.Publisher, g.pools, g.log)
	actions := make(map[string]func(*Task), len(def.Actions))
	for _, spec := range def.Actions {
		if _, dup := actions[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate action %q", spec.Name)
		}
		fn, err := exec.Bind(spec)
		if err != nil {
			return nil, err
		}
		actions[spec.Name] = fn
	}
	resolve := func(task, name string) (func(*Task), error) {
		if name == "" {
			return nil, nil
		}
		if fn, ok := opts.Callbacks.Lookup(name); ok {
			return fn, nil
		}
		if fn, ok := actions[name]; ok {
			return fn, nil
		}
		return nil, fmt.Errorf("task %s: %w: %s", task, ErrMissingCallback, name)
	}

	for _, td := range def.Tasks {
		t, err := newTaskFromDef(td)
		if err != nil {
			return nil, err
		}
		for _, cb := range []struct {
			name string
			dst  *func(*Task)
		}{
			{td.OnRunning, &t.Callbacks.OnRunning},
			{td.OnSuccess, &t.Callbacks.OnSuccess},
			{td.OnFailure, &t.Callbacks.OnFailure},
			{td.OnDisabled, &t.Callbacks.OnDisabled},
			{td.OnActivated, &t.Callbacks.OnActivated},
		} {
			fn, err := resolve(td.Name, cb.name)
			if err != nil {
				return nil, err
			}
			*cb.dst = fn
		}
		if _, err := g.AddTask(t); err != nil {
			return nil, err
		}
	}

	for _, td := range def.Tasks {
		t, _ := g.TaskByName(td.Name)
		for _, cd := range td.Conditions {
			c, err := newConditionFromDef(g, cd)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", td.Name, err)
			}
			if t.Condition(cd.Name) != nil {
				return nil, fmt.Errorf("task %s: duplicate condition %q", td.Name, cd.Name)
			}
			if err := g.AddCondition(t.ID, c); err != nil {
				return nil, err
			}
		}
		for _, edge := range []struct {
			targets   []string
			onFailure bool
		}{
			{td.Success, false},
			{td.Failure, true},
		} {
			for _, name := range edge.targets {
				next, err := g.TaskByName(name)
				if err != nil {
					return nil, fmt.Errorf("task %s: successor: %w", td.Name, err)
				}
				if err := g.Connect(t.ID, next.ID, edge.onFailure); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, o := range opts.Observers {
		g.AddObserver(o)
	}
	return g, nil
}

func buildPools(reg *container.Registry, def *Definition) error {
	for _, pd := range def.Pools {
		c := container.New(pd.Name, pd.GlobalWeightCap)
		for _, it := range pd.Items {
			if err := c.AddItem(it); err != nil {
				return err
			}
		}
		c.LockIncrease = pd.LockIncrease
		c.LockDecrease = pd.LockDecrease
		c.IncreaseWeight = pd.IncreaseWeight
		c.DecreaseWeight = pd.DecreaseWeight
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("pool %s: %w", pd.Name, err)
		}
	}

	for _, md := range def.Managers {
		m := container.NewManager(md.Name, md.WeightedFanOut)
		m.IncreaseWeight = md.IncreaseWeight
		m.DecreaseWeight = md.DecreaseWeight
		for _, mem := range md.Members {
			p, err := reg.Lookup(mem.Pool)
			if err != nil {
				return fmt.Errorf("manager %s: %w", md.Name, err)
			}
			if err := m.Add(container.Member{
				Pool:             p,
				IncreasePriority: mem.IncreasePriority,
				DecreasePriority: mem.DecreasePriority,
			}); err != nil {
				return err
			}
		}
		if err := reg.Register(m); err != nil {
			return fmt.Errorf("manager %s: %w", md.Name, err)
		}
	}
	return nil
}

// ParseKind accepts the names returned by Kind.String. Empty means KindTask.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindTask, nil
	}
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return KindTask, fmt.Errorf("unknown node kind %q", s)
}

func newTaskFromDef(td TaskDef) (*Task, error) {
	if td.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	kind, err := ParseKind(td.Kind)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", td.Name, err)
	}
	if kind.Terminal() && len(td.Conditions) > 0 {
		return nil, fmt.Errorf("task %s: end nodes take no conditions", td.Name)
	}

	t := NewTask(td.Name, kind)
	t.Category = td.Category
	t.Hidden = td.Hidden
	t.StartActive = td.StartActive
	t.Restartable = td.Restartable
	t.ActivationLimit = td.Limit
	t.MinActivationsBeforeStart = td.MinStarts
	t.CheckPeriod = td.CheckPeriod
	t.AndNode = td.And
	t.ForceFailure = td.ForceFailure
	t.OverrideConcurrent = td.OverrideConcurrent
	t.SuccessFanOut = FanOut(td.SuccessFanOut)
	t.FailureFanOut = FanOut(td.FailureFanOut)
	t.StopGraph = td.StopGraph
	return t, nil
}

func newConditionFromDef(g *Graph, cd ConditionDef) (Condition, error) {
	if cd.Name == "" {
		return nil, fmt.Errorf("condition name is required")
	}

	if (cd.Kind == "timer" || cd.Kind == "user") && (cd.Deadline != 0 || cd.Expiry != "") {
		return nil, fmt.Errorf("condition %s: deadline and expiry are not supported on %s conditions, use duration", cd.Name, cd.Kind)
	}

	var c Condition
	switch cd.Kind {
	case "timer":
		tc := NewTimerCondition(cd.Name, cd.Duration)
		tc.MaxDuration = cd.MaxDuration
		tc.TriggerFailure = cd.TriggerFailure
		c = tc
	case "user":
		uc := NewUserCondition(cd.Name)
		uc.TimerGate = cd.Timer
		uc.Duration = cd.Duration
		uc.CounterGate = cd.Counter.Gate
		uc.InitialCount = cd.Counter.Initial
		uc.ItemsGate = cd.Items.Gate
		uc.Pool = cd.Items.Pool
		uc.SetDivisor(cd.Items.Divisor)
		for _, r := range cd.Items.Require {
			uc.AddItem(r.Item, r.Amount, r.Consume)
		}
		if uc.ItemsGate.Enabled {
			if _, err := g.pools.Lookup(uc.Pool); err != nil {
				return nil, fmt.Errorf("condition %s: %w", cd.Name, err)
			}
		}
		c = uc
	case "arrival":
		ac := NewArrivalCondition(cd.Name, cd.Region, cd.Targets...)
		ac.TriggerFailure = cd.TriggerFailure
		c = ac
	case "defeat":
		c = NewDefeatCondition(cd.Name, cd.AtLeast, cd.Targets...)
	case "survive":
		c = NewSurviveCondition(cd.Name, cd.AllowedLosses, cd.Targets...)
	default:
		return nil, fmt.Errorf("condition %s: unknown kind %q", cd.Name, cd.Kind)
	}

	b := c.base()
	b.SetTrigger(cd.Trigger)
	b.Deadline = cd.Deadline
	switch cd.Expiry {
	case "":
	case "success":
		b.FailOnExpiry = false
	case "failure":
		b.FailOnExpiry = true
	default:
		return nil, fmt.Errorf("condition %s: expiry must be success or failure, got %q", cd.Name, cd.Expiry)
	}
	return c, nil
}
