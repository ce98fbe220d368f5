// Package store is the optional PostgreSQL catalog of generated datasets.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Run kinds.
const (
	KindRender     = "render"
	KindPreprocess = "preprocess"
)

// Run is one invocation of render or preprocess.
type Run struct {
	ID         string
	Kind       string
	Source     string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt *time.Time
	ItemCount  int
}

// Item is one file a run wrote. FrameIndex is the pose or object index.
// Position is the camera location for rendered frames.
type Item struct {
	RunID      string
	Kind       string
	Path       string
	FrameIndex int
	Position   []float64
}

// Store manages the PostgreSQL connection.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS dataset_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			source TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			item_count INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS dataset_items (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT REFERENCES dataset_runs(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			frame_index INT NOT NULL,
			position DOUBLE PRECISION[]
		);
		CREATE INDEX IF NOT EXISTS dataset_items_run_id_idx ON dataset_items (run_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// BeginRun registers a run. Re-running the same source replaces its previous items.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	// Clean up old data so a re-run does not duplicate items
	if _, err := s.conn.Exec(ctx, "DELETE FROM dataset_items WHERE run_id = $1", run.ID); err != nil {
		return err
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO dataset_runs (id, kind, source, output_dir, started_at, finished_at, item_count)
		VALUES ($1, $2, $3, $4, NOW(), NULL, 0)
		ON CONFLICT (id) DO UPDATE SET
			started_at = NOW(), finished_at = NULL, item_count = 0,
			source = EXCLUDED.source, output_dir = EXCLUDED.output_dir
	`, run.ID, run.Kind, run.Source, run.OutputDir)
	return err
}

// AddItem records one written file.
func (s *Store) AddItem(ctx context.Context, item Item) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO dataset_items (run_id, kind, path, frame_index, position)
		VALUES ($1, $2, $3, $4, $5)
	`, item.RunID, item.Kind, item.Path, item.FrameIndex, item.Position)
	return err
}

// FinishRun stamps the run as complete with the number of items it produced.
func (s *Store) FinishRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.conn.QueryRow(ctx, `
		UPDATE dataset_runs
		SET finished_at = NOW(),
			item_count = (SELECT COUNT(*) FROM dataset_items WHERE run_id = $1)
		WHERE id = $1
		RETURNING item_count
	`, runID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("run %s not found", runID)
	}
	return count, err
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, kind, source, output_dir, started_at, finished_at, item_count
		FROM dataset_runs
		ORDER BY started_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.Source, &r.OutputDir, &r.StartedAt, &r.FinishedAt, &r.ItemCount); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListItems returns the items of one run in insertion order.
func (s *Store) ListItems(ctx context.Context, runID string) ([]Item, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT run_id, kind, path, frame_index, position
		FROM dataset_items
		WHERE run_id = $1
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.RunID, &it.Kind, &it.Path, &it.FrameIndex, &it.Position); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Reset drops all catalog tables. They are recreated on the next connection.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS dataset_items CASCADE;
		DROP TABLE IF EXISTS dataset_runs CASCADE;
	`)
	return err
}
