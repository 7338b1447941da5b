// Package metrics exposes graph and runtime collectors for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AaronLay10/questgraph/internal/events"
	"github.com/AaronLay10/questgraph/internal/orchestrator"
	"github.com/AaronLay10/questgraph/internal/version"
)

var (
	TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questgraph_task_transitions_total",
		Help: "Task state transitions, labelled by task and new state.",
	}, []string{"task", "state"})

	ConditionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questgraph_condition_transitions_total",
		Help: "Condition state transitions, labelled by condition kind and new state.",
	}, []string{"kind", "state"})

	ActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "questgraph_active_tasks",
		Help: "Number of tasks in the active set.",
	})

	GraphRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "questgraph_graph_running",
		Help: "Whether the graph is simulating (1) or not (0).",
	})

	GraphSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "questgraph_graph_sessions_total",
		Help: "Number of graph runs started since startup.",
	})

	MQTTConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "questgraph_mqtt_connected",
		Help: "Whether the MQTT broker is connected (1) or not (0).",
	})

	PostgresConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "questgraph_postgres_connected",
		Help: "Whether the PostgreSQL journal is connected (1) or not (0).",
	})

	_ = promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "questgraph_events_total",
		Help: "Total number of events emitted since startup.",
	}, func() float64 { return float64(events.TotalCount()) })

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "questgraph_ws_clients",
		Help: "Number of active event stream subscribers.",
	}, func() float64 { return float64(events.SubscriberCount()) })

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "questgraph_build_info",
		Help:        "Build information, always 1.",
		ConstLabels: prometheus.Labels{"version": version.Version},
	}, func() float64 { return 1 })
)

// SetConnected sets a 0/1 connectivity gauge.
func SetConnected(g prometheus.Gauge, ok bool) {
	if ok {
		g.Set(1)
		return
	}
	g.Set(0)
}

// Observer records graph transitions into the collectors above. It tracks
// running tasks itself since observers fire before the active set changes.
type Observer struct {
	running map[orchestrator.TaskID]bool
}

// NewObserver creates an observer. Register it with Graph.AddObserver.
func NewObserver() *Observer {
	return &Observer{running: make(map[orchestrator.TaskID]bool)}
}

func (o *Observer) TaskStateChanged(t *orchestrator.Task, _ orchestrator.Result) {
	TaskTransitions.WithLabelValues(t.Name, t.Result().String()).Inc()
	if t.Result() == orchestrator.Running && !t.Kind.Terminal() {
		o.running[t.ID] = true
	} else {
		delete(o.running, t.ID)
	}
	ActiveTasks.Set(float64(len(o.running)))
}

func (o *Observer) ConditionStateChanged(_ *orchestrator.Task, c orchestrator.Condition, _ orchestrator.Result) {
	ConditionTransitions.WithLabelValues(c.Kind(), c.Result().String()).Inc()
}

func (o *Observer) GraphInitialized(*orchestrator.Graph) {
	GraphSessions.Inc()
	GraphRunning.Set(1)
}

func (o *Observer) GraphStopped(*orchestrator.Graph) {
	GraphRunning.Set(0)
	clear(o.running)
	ActiveTasks.Set(0)
}
