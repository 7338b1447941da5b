package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/questgraph/internal/orchestrator"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
	AlertGraphFailed         = "graph_failed"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Graph     string                 `json:"graph"`
	Session   string                 `json:"session,omitempty"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL              string
	MQTTDisconnectDelay     time.Duration // How long MQTT must be disconnected before alerting
	PostgresDisconnectDelay time.Duration // How long Postgres must be disconnected before alerting
}

// connectionAlert tracks one dependency between checks.
type connectionAlert struct {
	event     string
	severity  string
	label     string
	delay     func() time.Duration
	downSince time.Time
	sent      bool
	lastUp    bool
}

var (
	alertConfig = &AlertConfig{
		MQTTDisconnectDelay:     30 * time.Second,
		PostgresDisconnectDelay: 5 * time.Second,
	}
	alertMu   sync.Mutex
	alertLog  = slog.Default()
	graphName string

	// Overridable in tests.
	alertNow = time.Now
	postJSON = func(url string, body []byte) (*http.Response, error) {
		client := &http.Client{Timeout: 10 * time.Second}
		return client.Post(url, "application/json", bytes.NewReader(body))
	}

	mqttAlert = &connectionAlert{
		event:    AlertMQTTDisconnected,
		severity: SeverityWarning,
		label:    "MQTT broker",
		delay:    func() time.Duration { return alertConfig.MQTTDisconnectDelay },
		lastUp:   true,
	}
	postgresAlert = &connectionAlert{
		event:    AlertPostgresUnavailable,
		severity: SeverityCritical,
		label:    "PostgreSQL",
		delay:    func() time.Duration { return alertConfig.PostgresDisconnectDelay },
		lastUp:   true,
	}
	alertMonitorInitialized bool
)

// InitAlerts initializes the alert system from environment variables.
func InitAlerts(log *slog.Logger) {
	alertMu.Lock()
	defer alertMu.Unlock()

	if log != nil {
		alertLog = log
	}
	alertConfig.WebhookURL = os.Getenv("QUESTGRAPH_ALERT_WEBHOOK_URL")

	if delayStr := os.Getenv("QUESTGRAPH_MQTT_ALERT_DELAY"); delayStr != "" {
		if d, err := time.ParseDuration(delayStr); err == nil {
			alertConfig.MQTTDisconnectDelay = d
		}
	}
	if delayStr := os.Getenv("QUESTGRAPH_POSTGRES_ALERT_DELAY"); delayStr != "" {
		if d, err := time.ParseDuration(delayStr); err == nil {
			alertConfig.PostgresDisconnectDelay = d
		}
	}

	if alertConfig.WebhookURL != "" {
		alertLog.Info("alerts enabled",
			"mqtt_delay", alertConfig.MQTTDisconnectDelay,
			"pg_delay", alertConfig.PostgresDisconnectDelay)
	}

	for _, a := range []*connectionAlert{mqttAlert, postgresAlert} {
		a.lastUp = true // Assume connected at start
		a.sent = false
		a.downSince = time.Time{}
	}
	alertMonitorInitialized = true
}

// SetGraphName sets the graph name stamped on alerts.
func SetGraphName(name string) {
	alertMu.Lock()
	defer alertMu.Unlock()
	graphName = name
}

// GetAlertWebhookURL returns the configured webhook URL (for testing).
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return alertConfig.WebhookURL
}

// SendAlert sends an alert to the configured webhook (best-effort, non-blocking).
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	webhookURL := alertConfig.WebhookURL
	name := graphName
	alertMu.Unlock()

	if webhookURL == "" {
		alertLog.Warn("alert", "event", event, "severity", severity, "msg", message, "details", details)
		return
	}
	if name == "" {
		name = "unknown"
	}

	payload := AlertPayload{
		Graph:     name,
		Event:     event,
		Timestamp: alertNow().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	if s, ok := details["session"].(string); ok {
		payload.Session = s
	}

	go sendWebhook(webhookURL, payload)
}

// sendWebhook performs the actual HTTP POST (runs in goroutine).
func sendWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		alertLog.Error("alert marshal failed", "error", err)
		return
	}

	resp, err := postJSON(url, body)
	if err != nil {
		alertLog.Error("alert webhook failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		alertLog.Error("alert webhook rejected", "status", resp.StatusCode)
	}
}

// check updates a dependency and reports whether an alert is due. Callers
// hold alertMu.
func (a *connectionAlert) check(connected bool, now time.Time) (send bool, severity, msg string, details map[string]interface{}) {
	if connected {
		recovered := !a.lastUp && a.sent
		a.downSince = time.Time{}
		a.sent = false
		a.lastUp = true
		if recovered {
			return true, SeverityInfo, a.label + " connection restored", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			}
		}
		return false, "", "", nil
	}

	if a.lastUp {
		a.downSince = now
	}
	a.lastUp = false

	down := now.Sub(a.downSince)
	if a.sent || down < a.delay() {
		return false, "", "", nil
	}
	a.sent = true
	return true, a.severity, a.label + " unavailable", map[string]interface{}{
		"disconnected_since":   a.downSince.UTC().Format(time.RFC3339),
		"disconnected_seconds": int(down.Seconds()),
	}
}

func checkAndAlert(a *connectionAlert, connected bool) {
	alertMu.Lock()
	if !alertMonitorInitialized {
		alertMu.Unlock()
		return
	}
	send, severity, msg, details := a.check(connected, alertNow())
	alertMu.Unlock()

	if send {
		SendAlert(a.event, severity, msg, details)
	}
}

// CheckAndAlertMQTT checks MQTT state and sends alert if disconnected too long.
// Should be called periodically or on state change.
func CheckAndAlertMQTT(connected bool) { checkAndAlert(mqttAlert, connected) }

// CheckAndAlertPostgres checks Postgres state and sends alert if unavailable.
func CheckAndAlertPostgres(connected bool) { checkAndAlert(postgresAlert, connected) }

// StartAlertMonitor starts a background goroutine that periodically checks
// connection states until done is closed.
func StartAlertMonitor(checkInterval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			readiness.mu.RLock()
			mqttConnected, mqttDisabled := readiness.mqttConnected, readiness.mqttDisabled
			pgConnected, pgDisabled := readiness.postgresConnected, readiness.postgresDisabled
			readiness.mu.RUnlock()

			if !mqttDisabled {
				CheckAndAlertMQTT(mqttConnected)
			}
			if !pgDisabled {
				CheckAndAlertPostgres(pgConnected)
			}
		}
	}()
}

// AlertObserver raises an alert when a failure end node of the graph fires.
type AlertObserver struct {
	orchestrator.ObserverFuncs
}

// NewAlertObserver creates the observer. Register it with Graph.AddObserver.
func NewAlertObserver() *AlertObserver {
	o := &AlertObserver{}
	o.OnTask = func(t *orchestrator.Task, _ orchestrator.Result) {
		if t.Kind != orchestrator.KindFailureEnd || !t.Activated() {
			return
		}
		SendAlert(AlertGraphFailed, SeverityWarning, "graph reached "+t.Name, map[string]interface{}{
			"task": t.Name,
		})
	}
	return o
}
