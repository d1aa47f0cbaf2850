// Package history is the run-history store: unlike internal/state, which
// keeps only the latest snapshot, history
// appends every pipeline result to a bounded SQLite table so the dashboard
// can show a watch's recent runs instead of just its current status.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/webwatch/internal/dbopen"
	"github.com/hazyhaar/webwatch/internal/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	watch_id TEXT NOT NULL,
	watch_name TEXT NOT NULL,
	success INTEGER NOT NULL,
	error TEXT,
	change_count INTEGER NOT NULL,
	ran_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_watch_id_ran_at ON runs (watch_id, ran_at DESC);
`

// Entry is one row of run history.
type Entry struct {
	ID          string
	WatchID     string
	WatchName   string
	Success     bool
	Error       string
	ChangeCount int
	RanAt       time.Time
}

// Store is the SQLite-backed run-history table, bounded to MaxRows per
// watch (oldest pruned on insert).
type Store struct {
	db      *sql.DB
	maxRows int
}

// Open opens (creating if absent) the history database at path.
func Open(path string, maxRows int) (*Store, error) {
	if maxRows <= 0 {
		maxRows = 200
	}
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	return &Store{db: db, maxRows: maxRows}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append records one run result and prunes rows beyond maxRows for that watch.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = idgen.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, watch_id, watch_name, success, error, change_count, ran_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WatchID, e.WatchName, boolToInt(e.Success), e.Error, e.ChangeCount, e.RanAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE watch_id = ? AND id NOT IN (
			SELECT id FROM runs WHERE watch_id = ? ORDER BY ran_at DESC LIMIT ?
		)`, e.WatchID, e.WatchID, s.maxRows)
	if err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return nil
}

// Recent returns up to limit runs for a watch, most recent first.
func (s *Store) Recent(ctx context.Context, watchID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, watch_id, watch_name, success, error, change_count, ran_at FROM runs WHERE watch_id = ? ORDER BY ran_at DESC LIMIT ?`,
		watchID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var success int
		var ranAt string
		var errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.WatchID, &e.WatchName, &success, &errStr, &e.ChangeCount, &ranAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Success = success != 0
		e.Error = errStr.String
		e.RanAt, _ = time.Parse(time.RFC3339Nano, ranAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarshalSnapshot is a convenience for handlers that need a JSON-friendly
// view of an Entry without exposing the sql types.
func (e Entry) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(struct {
		ID          string    `json:"id"`
		WatchID     string    `json:"watchId"`
		WatchName   string    `json:"watchName"`
		Success     bool      `json:"success"`
		Error       string    `json:"error,omitempty"`
		ChangeCount int       `json:"changeCount"`
		RanAt       time.Time `json:"ranAt"`
	}{e.ID, e.WatchID, e.WatchName, e.Success, e.Error, e.ChangeCount, e.RanAt})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
