// Package postgres journals graph events so a run can be inspected after the
// process exits.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	GraphID   string                 `json:"graph_id"`
	SessionID *string                `json:"session_id,omitempty"`
}

// Options configures the connection. Empty fields fall back to the PG*
// environment variables and then to local defaults.
type Options struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	Password string `yaml:"-"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN builds a lib/pq keyword/value connection string.
func (o Options) DSN() string {
	parts := []string{
		"host=" + pick(o.Host, "PGHOST", "127.0.0.1"),
		"port=" + pick(o.Port, "PGPORT", "5432"),
		"user=" + pick(o.User, "PGUSER", "questgraph"),
		"dbname=" + pick(o.Database, "PGDATABASE", "questgraph"),
	}
	if pw := pick(o.Password, "PGPASSWORD", ""); pw != "" {
		parts = append(parts, "password="+pw)
	}
	parts = append(parts, "sslmode="+pick(o.SSLMode, "PGSSLMODE", "disable"))
	return strings.Join(parts, " ")
}

// Client manages the Postgres connection for event storage.
type Client struct {
	db      *sql.DB
	graphID string
}

// New connects, pings and ensures the events table exists. graphID tags every
// row so several graphs can share one database.
func New(graphID string, opts Options) (*Client, error) {
	db, err := sql.Open("postgres", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:      db,
		graphID: graphID,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create graph_events table: %w", err)
	}

	return client, nil
}

func pick(explicit, envKey, defaultVal string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS graph_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			graph_id   TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_graph_events_ts ON graph_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_graph_events_session ON graph_events(graph_id, session_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var sessionPtr *string
	if sessionID != "" {
		sessionPtr = &sessionID
	}

	query := `
		INSERT INTO graph_events (ts, level, event, msg, fields, graph_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.graphID, sessionPtr)
	return err
}

// Query returns the last N events of this graph, newest first.
func (c *Client) Query(limit int) ([]EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, graph_id, session_id
		FROM graph_events
		WHERE graph_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	return c.query(query, c.graphID, clampLimit(limit))
}

// QuerySession returns the events of one graph session in emission order.
func (c *Client) QuerySession(sessionID string, limit int) ([]EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, graph_id, session_id
		FROM graph_events
		WHERE graph_id = $1 AND session_id = $2
		ORDER BY event_id ASC
		LIMIT $3
	`
	return c.query(query, c.graphID, sessionID, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

func (c *Client) query(query string, args ...interface{}) ([]EventRow, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.GraphID, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
