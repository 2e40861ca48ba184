// Package history records initiated relationship searches and their outcomes.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

// ErrUnknownRequest is returned when an outcome names a job that was never recorded.
var ErrUnknownRequest = errors.New("unknown request id")

// Search is one initiated job.
type Search struct {
	ID          int64      `json:"id"`
	RequestID   string     `json:"request_id"`
	StartID     string     `json:"start_id"`
	StartName   string     `json:"start_name"`
	EndID       string     `json:"end_id"`
	EndName     string     `json:"end_name"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Nodes       int        `json:"nodes"`
	Edges       int        `json:"edges"`
	PathFound   bool       `json:"path_found"`
}

// Store wraps a SQLite database connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS searches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			start_id TEXT NOT NULL,
			start_name TEXT,
			end_id TEXT NOT NULL,
			end_name TEXT,
			status TEXT,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			nodes INTEGER NOT NULL DEFAULT 0,
			edges INTEGER NOT NULL DEFAULT 0,
			path_found INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_searches_request ON searches(request_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Record stores a newly initiated search and returns its row id.
func (s *Store) Record(ctx context.Context, search Search) (int64, error) {
	if search.StartedAt.IsZero() {
		search.StartedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO searches (request_id, start_id, start_name, end_id, end_name, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		search.RequestID, search.StartID, search.StartName,
		search.EndID, search.EndName, search.Status,
		search.StartedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording search %s: %w", search.RequestID, err)
	}
	return res.LastInsertId()
}

// UpdateOutcome stores the shape of the latest result for a job. Later results
// overwrite earlier ones, matching snapshot replacement.
func (s *Store) UpdateOutcome(ctx context.Context, requestID string, nodes, edges int, pathFound bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE searches SET nodes = ?, edges = ?, path_found = ?, completed_at = ?
		WHERE id = (SELECT MAX(id) FROM searches WHERE request_id = ?)`,
		nodes, edges, boolToInt(pathFound), at.UnixMilli(), requestID,
	)
	if err != nil {
		return fmt.Errorf("updating outcome of %s: %w", requestID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	return nil
}

// Recent returns the most recently started searches, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Search, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, start_id, start_name, end_id, end_name, status,
			started_at, completed_at, nodes, edges, path_found
		FROM searches ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	searches := make([]Search, 0)
	for rows.Next() {
		var (
			sr                 Search
			startName, endName sql.NullString
			status             sql.NullString
			startedAt          int64
			completedAt        sql.NullInt64
			pathFound          int
		)
		if err := rows.Scan(&sr.ID, &sr.RequestID, &sr.StartID, &startName, &sr.EndID, &endName, &status,
			&startedAt, &completedAt, &sr.Nodes, &sr.Edges, &pathFound); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		sr.StartName = startName.String
		sr.EndName = endName.String
		sr.Status = status.String
		sr.StartedAt = time.UnixMilli(startedAt)
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64)
			sr.CompletedAt = &t
		}
		sr.PathFound = pathFound != 0
		searches = append(searches, sr)
	}
	return searches, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
