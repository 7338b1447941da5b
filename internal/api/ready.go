package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/AaronLay10/questgraph/internal/metrics"
)

var readiness = &readinessState{}

type readinessState struct {
	mu                sync.RWMutex
	graphReady        bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
	mqttDisabled      bool
	postgresDisabled  bool
}

// CheckStatus is the state of one readiness dependency.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

// ReadinessResponse is the body of GET /ready.
type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// SetGraphReady marks whether the graph was built and its loop is running.
func SetGraphReady(ready bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.graphReady = ready
}

// SetMQTTState records broker connectivity. An optional broker never blocks
// readiness.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.mqttDisabled = false
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
	readiness.mu.Unlock()
	metrics.SetConnected(metrics.MQTTConnected, connected)
}

// SetPostgresState records journal connectivity.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.postgresDisabled = false
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
	readiness.mu.Unlock()
	metrics.SetConnected(metrics.PostgresConnected, connected)
}

// DisableMQTT marks the broker as not configured. It is reported as disabled
// and never alerted on.
func DisableMQTT() {
	readiness.mu.Lock()
	readiness.mqttDisabled = true
	readiness.mqttConnected = false
	readiness.mu.Unlock()
	metrics.SetConnected(metrics.MQTTConnected, false)
}

// DisablePostgres marks the journal as not configured.
func DisablePostgres() {
	readiness.mu.Lock()
	readiness.postgresDisabled = true
	readiness.postgresConnected = false
	readiness.mu.Unlock()
	metrics.SetConnected(metrics.PostgresConnected, false)
}

func dependencyCheck(connected, optional, disabled bool) CheckStatus {
	switch {
	case disabled:
		return CheckStatus{Status: "disabled", Optional: true}
	case connected:
		return CheckStatus{Status: "ok", Optional: optional}
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}
	default:
		return CheckStatus{Status: "not_ready"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	checks := map[string]CheckStatus{
		"graph":    {Status: "ok"},
		"mqtt":     dependencyCheck(readiness.mqttConnected, readiness.mqttOptional, readiness.mqttDisabled),
		"postgres": dependencyCheck(readiness.postgresConnected, readiness.postgresOptional, readiness.postgresDisabled),
	}
	if !readiness.graphReady {
		checks["graph"] = CheckStatus{Status: "not_ready"}
	}
	readiness.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: checks}
	var reasons []string
	for _, name := range []string{"graph", "mqtt", "postgres"} {
		if checks[name].Status == "not_ready" {
			resp.Ready = false
			reasons = append(reasons, name+" not ready")
		}
	}
	resp.NotReadyMsg = strings.Join(reasons, "; ")

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
