package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/questgraph/internal/container"
	"github.com/AaronLay10/questgraph/internal/sched"
	"github.com/AaronLay10/questgraph/internal/world"
)

var (
	ErrUnknownTask      = errors.New("unknown task")
	ErrUnknownCondition = errors.New("unknown condition")
	ErrDuplicateTask    = errors.New("duplicate task name")
	ErrAlreadyRunning   = errors.New("graph already running")
	ErrDuplicateEdge    = errors.New("duplicate edge")
)

// Graph owns the task arena and propagates task results along its edges.
// It is not safe for concurrent use: every call must happen on the
// scheduler's goroutine.
type Graph struct {
	name        string
	sched       *sched.Scheduler
	rng         *rand.Rand
	log         *slog.Logger
	checkPeriod time.Duration

	tasks     []*Task
	byName    map[string]TaskID
	active    []TaskID
	pools     *container.Registry
	world     *world.Registry
	observers []Observer

	simulating bool
	generation int
	session    string
}

// NewGraph creates an empty graph driven by s.
func NewGraph(name string, s *sched.Scheduler) *Graph {
	g := &Graph{
		name:   name,
		sched:  s,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		log:    slog.Default(),
		byName: make(map[string]TaskID),
		world:  world.NewRegistry(),
	}
	g.SetPools(container.NewRegistry())
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Scheduler returns the scheduler the graph runs on.
func (g *Graph) Scheduler() *sched.Scheduler { return g.sched }

// SetRand replaces the random source used for fan-out and timer durations.
func (g *Graph) SetRand(r *rand.Rand) { g.rng = r }

// SetLogger sets the logger for configuration and misuse errors.
func (g *Graph) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	g.log = l.With("graph", g.name)
}

// SetCheckPeriod sets the default re-check interval for tasks without one.
func (g *Graph) SetCheckPeriod(d time.Duration) { g.checkPeriod = d }

// SetPools sets the container registry and subscribes consumer updates to it.
func (g *Graph) SetPools(r *container.Registry) {
	g.pools = r
	r.OnChange(g.UpdateConsumerConditions)
}

// Pools returns the container registry.
func (g *Graph) Pools() *container.Registry { return g.pools }

// SetWorld sets the object registry used by arrival, defeat and survive conditions.
func (g *Graph) SetWorld(w *world.Registry) { g.world = w }

// World returns the object registry.
func (g *Graph) World() *world.Registry { return g.world }

// AddObserver registers an observer. Observers are called in registration order.
func (g *Graph) AddObserver(o Observer) {
	g.observers = append(g.observers, o)
}

// Simulating reports whether the graph was started and not stopped since.
func (g *Graph) Simulating() bool { return g.simulating }

// Session returns the id of the current or last run.
func (g *Graph) Session() string { return g.session }

// AddTask places t in the arena and returns its id.
func (g *Graph) AddTask(t *Task) (TaskID, error) {
	if t == nil {
		return -1, fmt.Errorf("nil task")
	}
	if _, exists := g.byName[t.Name]; exists {
		return -1, fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name)
	}
	t.ID = TaskID(len(g.tasks))
	t.g = g
	g.tasks = append(g.tasks, t)
	g.byName[t.Name] = t.ID
	return t.ID, nil
}

// AddCondition attaches c to the task.
func (g *Graph) AddCondition(id TaskID, c Condition) error {
	t, err := g.Task(id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("task %s: nil condition", t.Name)
	}
	c.base().attach(t)
	t.conditions = append(t.conditions, c)
	return nil
}

// Connect adds an edge started when from reaches Success, or Failure when
// onFailure is set. Successor and predecessor lists change together.
func (g *Graph) Connect(from, to TaskID, onFailure bool) error {
	src, err := g.Task(from)
	if err != nil {
		return err
	}
	dst, err := g.Task(to)
	if err != nil {
		return err
	}
	list := &src.onSuccess
	if onFailure {
		list = &src.onFailure
	}
	if containsID(*list, to) {
		return fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, src.Name, dst.Name)
	}
	*list = append(*list, to)
	if !containsID(dst.predecessors, from) {
		dst.predecessors = append(dst.predecessors, from)
	}
	return nil
}

// Disconnect removes an edge added by Connect.
func (g *Graph) Disconnect(from, to TaskID, onFailure bool) error {
	src, err := g.Task(from)
	if err != nil {
		return err
	}
	dst, err := g.Task(to)
	if err != nil {
		return err
	}
	list := &src.onSuccess
	if onFailure {
		list = &src.onFailure
	}
	removed := false
	for i, id := range *list {
		if id == to {
			*list = append((*list)[:i], (*list)[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return fmt.Errorf("no edge %s -> %s", src.Name, dst.Name)
	}
	if !containsID(src.onSuccess, to) && !containsID(src.onFailure, to) {
		for i, id := range dst.predecessors {
			if id == from {
				dst.predecessors = append(dst.predecessors[:i], dst.predecessors[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Task returns the task with the given id.
func (g *Graph) Task(id TaskID) (*Task, error) {
	if id < 0 || int(id) >= len(g.tasks) {
		return nil, fmt.Errorf("%w: #%d", ErrUnknownTask, id)
	}
	return g.tasks[id], nil
}

// TaskByName returns the task with the given name.
func (g *Graph) TaskByName(name string) (*Task, error) {
	id, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return g.tasks[id], nil
}

// Tasks returns every task in arena order.
func (g *Graph) Tasks() []*Task {
	return append([]*Task(nil), g.tasks...)
}

// Condition returns the named condition of the named task.
func (g *Graph) Condition(task, name string) (Condition, error) {
	t, err := g.TaskByName(task)
	if err != nil {
		return nil, err
	}
	c := t.Condition(name)
	if c == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownCondition, task, name)
	}
	return c, nil
}

// ActiveTasks returns the running tasks in activation order.
func (g *Graph) ActiveTasks() []*Task {
	out := make([]*Task, 0, len(g.active))
	for _, id := range g.active {
		out = append(out, g.tasks[id])
	}
	return out
}

// Start begins a new session and activates every task marked StartActive.
func (g *Graph) Start() error {
	if g.simulating {
		return ErrAlreadyRunning
	}
	g.session = uuid.NewString()
	g.simulating = true
	for _, o := range g.observers {
		o.GraphInitialized(g)
	}
	gen := g.generation
	for _, t := range g.tasks {
		if g.generation != gen {
			break
		}
		if t.StartActive {
			g.startSuccessor(t, false)
		}
	}
	g.log.Info("graph started", "session", g.session, "active", len(g.active))
	return nil
}

// Stop halts every task. Results are kept.
func (g *Graph) Stop() {
	wasSimulating := g.simulating
	g.simulating = false
	g.generation++
	for _, t := range g.tasks {
		t.StopTask()
	}
	g.active = nil
	if wasSimulating {
		for _, o := range g.observers {
			o.GraphStopped(g)
		}
		g.log.Info("graph stopped", "session", g.session)
	}
}

// Reset stops the graph and returns every task and condition to Inactive.
func (g *Graph) Reset() {
	g.Stop()
	for _, t := range g.tasks {
		t.reset()
	}
}

// StartExternal force-starts a task, bypassing gating.
func (g *Graph) StartExternal(id TaskID) error {
	t, err := g.Task(id)
	if err != nil {
		g.log.Error("start rejected", "error", err)
		return err
	}
	g.startSuccessor(t, true)
	return nil
}

// SetStateExternal forces a task into r. Success and Failure propagate to
// successors like a normal completion.
func (g *Graph) SetStateExternal(id TaskID, r Result) error {
	t, err := g.Task(id)
	if err != nil {
		g.log.Error("state change rejected", "error", err)
		return err
	}
	switch r {
	case Running:
		g.startSuccessor(t, true)
	case Success, Failure:
		g.complete(t, r)
	case Disabled:
		g.TaskDisabled(id)
	case Inactive:
		t.StopTask()
		g.removeActive(id)
		t.setState(Inactive)
	default:
		return fmt.Errorf("invalid state %v", r)
	}
	return nil
}

// TaskSucceeded completes t with Success and activates its successors.
func (g *Graph) TaskSucceeded(id TaskID) {
	if t, err := g.Task(id); err == nil {
		g.complete(t, Success)
	}
}

// TaskFailed completes t with Failure and activates its failure successors.
func (g *Graph) TaskFailed(id TaskID) {
	if t, err := g.Task(id); err == nil {
		g.complete(t, Failure)
	}
}

// TaskDisabled stops and disables t without touching its successors.
func (g *Graph) TaskDisabled(id TaskID) {
	t, err := g.Task(id)
	if err != nil {
		return
	}
	t.StopTask()
	g.removeActive(id)
	t.setState(Disabled)
}

func (g *Graph) complete(t *Task, r Result) {
	if t.Kind == KindOperator && t.ForceFailure {
		r = Failure
	}
	t.StopTask()
	g.removeActive(t.ID)
	if t.result == r {
		return
	}
	t.setState(r)
	if t.Kind == KindOperator && t.OverrideConcurrent {
		g.overrideConcurrent(t, r)
	}

	succ := t.Successors(r)
	if p := t.fanOutPolicy(r); p != nil {
		succ = pickSuccessors(g.rng, succ, p)
	}
	gen := g.generation
	for _, id := range succ {
		if g.generation != gen {
			return
		}
		g.startSuccessor(g.tasks[id], false)
	}
}

// startSuccessor starts t and tracks it as active when it keeps running.
func (g *Graph) startSuccessor(t *Task, force bool) bool {
	if !t.StartTask(force) {
		return false
	}
	if t.result == Running {
		g.addActive(t.ID)
	}
	return true
}

func (g *Graph) addActive(id TaskID) {
	if !containsID(g.active, id) {
		g.active = append(g.active, id)
	}
}

func (g *Graph) removeActive(id TaskID) {
	for i, a := range g.active {
		if a == id {
			g.active = append(g.active[:i], g.active[i+1:]...)
			return
		}
	}
}

// CreateTaskOrder lists plain tasks in depth-first order from the initial
// tasks, followed by unreachable tasks in arena order.
func (g *Graph) CreateTaskOrder() []TaskID {
	visited := make([]bool, len(g.tasks))
	order := make([]TaskID, 0, len(g.tasks))

	var walk func(id TaskID)
	walk = func(id TaskID) {
		if visited[id] {
			return
		}
		visited[id] = true
		t := g.tasks[id]
		if t.Kind == KindTask {
			order = append(order, id)
		}
		for _, next := range t.onSuccess {
			walk(next)
		}
		for _, next := range t.onFailure {
			walk(next)
		}
	}

	for _, t := range g.tasks {
		if t.StartActive {
			walk(t.ID)
		}
	}
	for _, t := range g.tasks {
		if !visited[t.ID] && t.Kind == KindTask {
			order = append(order, t.ID)
		}
	}
	return order
}

// UpdateConsumerConditions re-evaluates every running user condition that
// requires item.
func (g *Graph) UpdateConsumerConditions(item string) {
	for _, t := range g.ActiveTasks() {
		for _, c := range t.conditions {
			if uc, ok := c.(*UserCondition); ok && uc.ItemsGate.Enabled && uc.Requires(item) {
				uc.CheckState(true)
			}
		}
	}
}

// ObjectEntered records a region entry and feeds it to running arrival conditions.
func (g *Graph) ObjectEntered(id, region string) {
	g.world.MoveTo(id, region)
	for _, t := range g.ActiveTasks() {
		for _, c := range t.conditions {
			if ac, ok := c.(*ArrivalCondition); ok {
				ac.ObjectEntered(id, region)
			}
		}
	}
}

// ObjectExited withdraws a region entry from running arrival conditions.
func (g *Graph) ObjectExited(id, region string) {
	g.world.MoveTo(id, "")
	for _, t := range g.ActiveTasks() {
		for _, c := range t.conditions {
			if ac, ok := c.(*ArrivalCondition); ok {
				ac.ObjectExited(id, region)
			}
		}
	}
}

// ObjectDestroyed marks an object as destroyed and re-evaluates the running
// defeat and survive conditions that watch it.
func (g *Graph) ObjectDestroyed(id string) {
	g.world.Destroy(id)
	type watcher interface {
		Watches(id string) bool
	}
	for _, t := range g.ActiveTasks() {
		for _, c := range t.conditions {
			if w, ok := c.(watcher); ok && w.Watches(id) {
				c.CheckState(true)
			}
		}
	}
}

func (g *Graph) notifyTask(t *Task, prev Result) {
	for _, o := range g.observers {
		o.TaskStateChanged(t, prev)
	}
}

func (g *Graph) notifyCondition(t *Task, c Condition, prev Result) {
	for _, o := range g.observers {
		o.ConditionStateChanged(t, c, prev)
	}
}

func containsID(ids []TaskID, id TaskID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
