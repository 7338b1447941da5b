package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AaronLay10/questgraph/internal/storage/postgres"
)

var buffer = NewRingBuffer(256)

// Journal persists emitted events. *postgres.Client implements it.
type Journal interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

var (
	journal       Journal
	sessionID     string
	pgMu          sync.RWMutex
	pgErrorLogged bool
)

// SetPostgresClient sets the Postgres client for event persistence.
func SetPostgresClient(client *postgres.Client) {
	if client == nil {
		SetJournal(nil)
		return
	}
	SetJournal(client)
}

// SetJournal sets the event sink used for persistence. nil disables it.
func SetJournal(j Journal) {
	pgMu.Lock()
	journal = j
	pgErrorLogged = false
	pgMu.Unlock()
}

// SetSession stamps subsequent journal rows with the graph session id.
func SetSession(id string) {
	pgMu.Lock()
	sessionID = id
	pgMu.Unlock()
}

// Session returns the current graph session id.
func Session() string {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return sessionID
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)

	pgMu.RLock()
	sink := journal
	session := sessionID
	errorLogged := pgErrorLogged
	pgMu.RUnlock()

	if sink != nil {
		if err := sink.Append(ts, level, name, msg, fields, session); err != nil {
			// Log once. The error event goes straight to the buffer, never
			// through Emit, so a failing journal cannot recurse.
			if !errorLogged {
				pgMu.Lock()
				if !pgErrorLogged {
					pgErrorLogged = true
					pgMu.Unlock()
					buffer.Add(Event{
						Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
						Level:     "error",
						Name:      "system.error",
						Message:   "journal append failed",
						Fields: map[string]interface{}{
							"error": err.Error(),
						},
					})
				} else {
					pgMu.Unlock()
				}
			}
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() uint64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
