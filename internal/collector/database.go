package collector

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// Database is the dev collector's event store.
type Database struct {
	db *sql.DB
}

// NewDatabase opens (or creates) the collector database.
func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id           INTEGER PRIMARY KEY,
	  ts           TEXT    NOT NULL,
	  event        TEXT    NOT NULL,
	  user_id      TEXT    NOT NULL,
	  session_id   TEXT    NOT NULL,
	  page         TEXT,
	  url          TEXT,
	  payload_json TEXT    NOT NULL CHECK (json_valid(payload_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts    ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_event ON events(event);
	CREATE INDEX IF NOT EXISTS idx_events_user  ON events(user_id);

	CREATE TABLE IF NOT EXISTS results(
	  id          INTEGER PRIMARY KEY,
	  result_name TEXT NOT NULL,
	  scores_json TEXT NOT NULL CHECK (json_valid(scores_json)),
	  received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error { return d.db.Close() }

// StoredEvent is one received record row.
type StoredEvent struct {
	TS        string
	Event     string
	UserID    string
	SessionID string
	Page      string
	URL       string
	Payload   json.RawMessage
}

// InsertEvents stores a received batch in one transaction; either the
// whole batch lands or none of it does, matching the accept/reject unit
// the delivery agent expects from the primary endpoint.
func (d *Database) InsertEvents(events []StoredEvent) error {
	transaction, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.Prepare(`INSERT INTO events(ts, event, user_id, session_id, page, url, payload_json) VALUES(?,?,?,?,?,?,json(?))`)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = statement.Close() }()

	for _, ev := range events {
		if ev.Event == "" {
			_ = transaction.Rollback()
			return fmt.Errorf("invalid event: empty event name")
		}
		if _, err := statement.Exec(ev.TS, ev.Event, ev.UserID, ev.SessionID, ev.Page, ev.URL, string(ev.Payload)); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertResult stores one quiz result row.
func (d *Database) InsertResult(name string, scores json.RawMessage) error {
	if name == "" {
		return fmt.Errorf("invalid result: empty result_name")
	}
	if len(scores) == 0 {
		scores = json.RawMessage("null")
	}
	_, err := d.db.Exec(`INSERT INTO results(result_name, scores_json) VALUES(?, json(?))`, name, string(scores))
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// CountEvents reports the number of stored events, optionally filtered
// by event name (empty = all).
func (d *Database) CountEvents(eventName string) (int, error) {
	var n int
	var err error
	if eventName == "" {
		err = d.db.QueryRow(`SELECT COUNT(*) FROM events;`).Scan(&n)
	} else {
		err = d.db.QueryRow(`SELECT COUNT(*) FROM events WHERE event = ?;`, eventName).Scan(&n)
	}
	return n, err
}
