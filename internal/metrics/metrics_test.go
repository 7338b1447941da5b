package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/questgraph/internal/orchestrator"
	"github.com/AaronLay10/questgraph/internal/sched"
)

func TestObserverCountsTransitions(t *testing.T) {
	s := sched.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	g := orchestrator.NewGraph("metrics", s)
	task := orchestrator.NewTask("Scout", orchestrator.KindTask)
	task.StartActive = true
	_, err := g.AddTask(task)
	require.NoError(t, err)
	g.AddObserver(NewObserver())

	successBefore := testutil.ToFloat64(TaskTransitions.WithLabelValues("Scout", "success"))
	sessionsBefore := testutil.ToFloat64(GraphSessions)

	require.NoError(t, g.Start())
	assert.Equal(t, 1.0, testutil.ToFloat64(GraphRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveTasks))
	assert.Equal(t, sessionsBefore+1, testutil.ToFloat64(GraphSessions))

	s.Advance(orchestrator.DefaultCheckPeriod)
	assert.Equal(t, successBefore+1, testutil.ToFloat64(TaskTransitions.WithLabelValues("Scout", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ActiveTasks))

	g.Stop()
	assert.Equal(t, 0.0, testutil.ToFloat64(GraphRunning))
}

func TestSetConnected(t *testing.T) {
	SetConnected(MQTTConnected, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(MQTTConnected))
	SetConnected(MQTTConnected, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(MQTTConnected))
}

func TestDefaultRegistryExposesCollectors(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"questgraph_build_info", "questgraph_events_total", "questgraph_ws_clients"} {
		assert.True(t, names[want], "missing %s", want)
	}
}
