// Package transcript journals agent runs and their results in SQLite.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/deskpilot/pkg/agent"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Run is one journaled agent run.
type Run struct {
	ID         string
	Goal       string
	SessionID  string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Entry is one recorded result.
type Entry struct {
	Seq       int
	Kind      string
	Iteration int
	Text      string
	ToolID    string
	ToolName  string
	ToolArgs  string
	Image     []byte
	Error     string
	CreatedAt time.Time
}

// Config configures a Store.
type Config struct {
	DBPath string
	// StoreImages keeps screenshot bytes; otherwise only their metadata is kept.
	StoreImages bool
	Logger      zerolog.Logger
}

// Store is a SQLite-backed run journal.
type Store struct {
	db          *sql.DB
	storeImages bool
	logger      zerolog.Logger
	mu          sync.Mutex
}

// Open opens or creates the journal at cfg.DBPath.
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:          db,
		storeImages: cfg.StoreImages,
		logger:      cfg.Logger.With().Str("component", "transcript").Logger(),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			tool_id TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			tool_args TEXT NOT NULL DEFAULT '',
			image BLOB,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun creates a running run and returns its id.
func (s *Store) StartRun(ctx context.Context, goal, sessionID string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, goal, session_id, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, goal, sessionID, StatusRunning, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	s.logger.Debug().Str("runId", id).Msg("Run started")
	return id, nil
}

// Record appends a result to the run.
func (s *Store) Record(ctx context.Context, runID string, r agent.Result) error {
	e := Entry{Kind: r.Kind.String(), Iteration: r.Iteration, Text: r.Text}
	if r.ToolCall != nil {
		e.ToolID = r.ToolCall.ID
		e.ToolName = r.ToolCall.Name
		e.ToolArgs = string(r.ToolCall.Arguments)
	}
	if r.Screenshot != nil {
		e.Text = fmt.Sprintf("%dx%d, %d elements", r.Screenshot.Width, r.Screenshot.Height, len(r.Screenshot.Elements))
		if s.storeImages {
			e.Image = r.Screenshot.Image
		}
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM results WHERE run_id = ?`, runID).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO results (run_id, seq, kind, iteration, text, tool_id, tool_name, tool_args, image, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, e.Kind, e.Iteration, e.Text, e.ToolID, e.ToolName, e.ToolArgs, e.Image, e.Error, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return tx.Commit()
}

// FinishRun marks the run succeeded, or failed when runErr is non-nil.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, time.Now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	s.logger.Debug().Str("runId", runID).Str("status", status).Msg("Run finished")
	return nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, goal, session_id, status, error, started_at, finished_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// Runs lists the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, goal, session_id, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Results returns the run's entries in record order.
func (s *Store) Results(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, iteration, text, tool_id, tool_name, tool_args, image, error, created_at
		FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Iteration, &e.Text, &e.ToolID, &e.ToolName, &e.ToolArgs, &e.Image, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Recorder wraps emit so every result is journaled before being passed on.
// Journal failures are logged and do not interrupt the run.
func (s *Store) Recorder(ctx context.Context, runID string, emit func(agent.Result)) func(agent.Result) {
	return func(r agent.Result) {
		if err := s.Record(ctx, runID, r); err != nil {
			s.logger.Warn().Err(err).Str("runId", runID).Msg("Failed to record result")
		}
		if emit != nil {
			emit(r)
		}
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Goal, &run.SessionID, &run.Status, &run.Error, &started, &finished); err != nil {
		return nil, err
	}
	run.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		run.FinishedAt = &t
	}
	return &run, nil
}
