// Package storage persists session reports to a local SQLite file so an
// operator can inspect past ticks after the process has moved on. It is
// entirely optional: every caller treats a storage failure as something to
// log and continue past, never something to fail the tick over.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver, registered under "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_reports (
	session_id    TEXT PRIMARY KEY,
	start_time    TIMESTAMP NOT NULL,
	end_time      TIMESTAMP NOT NULL,
	status        TEXT NOT NULL,
	scanned       INTEGER NOT NULL,
	with_updates  INTEGER NOT NULL,
	updated       INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	results_json  TEXT NOT NULL
);
`

// Report is the subset of events.SessionReport persisted to disk. It is
// declared independently of that package so storage has no import-time
// dependency on the update/events packages; callers translate at the call
// site.
type Report struct {
	SessionID   string
	StartTime   time.Time
	EndTime     time.Time
	Status      string
	Scanned     int
	WithUpdates int
	Updated     int
	Failed      int
	ResultsJSON string
}

// HistoryStore persists SessionReports to a SQLite file.
type HistoryStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path and ensures the
// session_reports table exists. SQLite serializes writes, so the connection
// pool is pinned to a single connection, matching the teacher's own
// single-writer configuration.
func Open(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Close releases the underlying connection.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}

// Save persists one report, replacing any existing row with the same
// SessionID.
func (h *HistoryStore) Save(ctx context.Context, r Report) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_reports
			(session_id, start_time, end_time, status, scanned, with_updates, updated, failed, results_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.StartTime, r.EndTime, r.Status, r.Scanned, r.WithUpdates, r.Updated, r.Failed, r.ResultsJSON)
	if err != nil {
		return fmt.Errorf("storage: save report %s: %w", r.SessionID, err)
	}
	return nil
}

// Recent returns the last limit reports, most recent first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]Report, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT session_id, start_time, end_time, status, scanned, with_updates, updated, failed, results_json
		FROM session_reports ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query recent reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.SessionID, &r.StartTime, &r.EndTime, &r.Status, &r.Scanned, &r.WithUpdates, &r.Updated, &r.Failed, &r.ResultsJSON); err != nil {
			return nil, fmt.Errorf("storage: scan report row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarshalResults is a convenience for callers translating
// []update.Result-shaped data into the JSON blob Report expects.
func MarshalResults(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("storage: marshal results: %w", err)
	}
	return string(b), nil
}
