package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// Store keeps pipeline runs and their per-document results in SQLite.
type Store struct {
	db *sql.DB
}

// Run states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// timeLayout is fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded pipeline execution.
type Run struct {
	ID          string
	Pipeline    string
	Status      string
	Error       string // why an aborted run stopped
	StartedAt   time.Time
	FinishedAt  time.Time // zero while the run is in progress
	Documents   int
	Clean       int
	FailedSteps int
}

// Open opens a SQLite database with WAL mode enabled.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas apply per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	pipeline TEXT,
	status TEXT NOT NULL DEFAULT 'running',
	error TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	documents INTEGER DEFAULT 0,
	clean INTEGER DEFAULT 0,
	failed_steps INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS results (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	doc_id TEXT NOT NULL,
	title TEXT,
	structured_tags TEXT NOT NULL,
	errors TEXT NOT NULL,
	PRIMARY KEY(run_id, seq),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_results_doc ON results(doc_id);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, runID, pipelineName string, startedAt time.Time) error {
	const stmt = `INSERT INTO runs (id, pipeline, started_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, runID, pipelineName, startedAt.UTC().Format(timeLayout))
	return err
}

// FinishRun stamps the run with its completion time and summary. A non-nil
// runErr marks the run aborted.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, sum pipeline.Summary, runErr error) error {
	status, errText := StatusCompleted, sql.NullString{}
	if runErr != nil {
		status = StatusAborted
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	const stmt = `
UPDATE runs SET status = ?, error = ?, finished_at = ?, documents = ?, clean = ?, failed_steps = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt,
		status,
		errText,
		finishedAt.UTC().Format(timeLayout),
		sum.Documents,
		sum.Clean,
		sum.FailedSteps,
		runID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	return nil
}

// InsertResult stores one document result at position seq of the run.
func (s *Store) InsertResult(ctx context.Context, runID string, seq int, r pipeline.Result) error {
	tags := r.StructuredTags
	if tags == nil {
		tags = map[string]any{}
	}
	errs := r.Errors
	if errs == nil {
		errs = []pipeline.StepError{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}

	const stmt = `
INSERT INTO results (run_id, seq, doc_id, title, structured_tags, errors)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, seq) DO UPDATE SET
	doc_id=excluded.doc_id,
	title=excluded.title,
	structured_tags=excluded.structured_tags,
	errors=excluded.errors`
	_, err = s.db.ExecContext(ctx, stmt, runID, seq, r.DocID, r.Title, string(tagsJSON), string(errsJSON))
	return err
}

// Results returns a run's results in document order.
func (s *Store) Results(ctx context.Context, runID string) ([]pipeline.Result, error) {
	const q = `
SELECT doc_id, title, structured_tags, errors
FROM results WHERE run_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.Result
	for rows.Next() {
		var (
			r              pipeline.Result
			title          sql.NullString
			tagsJSON, errs string
		)
		if err := rows.Scan(&r.DocID, &title, &tagsJSON, &errs); err != nil {
			return nil, err
		}
		r.Title = title.String
		if err := json.Unmarshal([]byte(tagsJSON), &r.StructuredTags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", r.DocID, err)
		}
		if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
			return nil, fmt.Errorf("decode errors for %s: %w", r.DocID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, runID)
	return scanRun(row)
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` ORDER BY started_at DESC, id DESC LIMIT 1`)
	return scanRun(row)
}

// Runs lists all runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const selectRun = `SELECT id, pipeline, status, error, started_at, finished_at, documents, clean, failed_steps FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		pipeName sql.NullString
		errText  sql.NullString
		started  string
		finished sql.NullString
	)
	err := sc.Scan(&r.ID, &pipeName, &r.Status, &errText, &started, &finished, &r.Documents, &r.Clean, &r.FailedSteps)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, internalerr.ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	r.Pipeline = pipeName.String
	r.Error = errText.String
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("run %s started_at: %w", r.ID, err)
	}
	if finished.Valid {
		if r.FinishedAt, err = time.Parse(timeLayout, finished.String); err != nil {
			return Run{}, fmt.Errorf("run %s finished_at: %w", r.ID, err)
		}
	}
	return r, nil
}

// RunWriter records results of one run and finishes it on Close.
type RunWriter struct {
	store   *Store
	runID   string
	seq     int
	summary pipeline.Summary
	runErr  error
	now     func() time.Time
}

// Writer returns a sink that appends results to runID.
func (s *Store) Writer(runID string) *RunWriter {
	return &RunWriter{store: s, runID: runID, now: time.Now}
}

// Write stores the next result.
func (w *RunWriter) Write(ctx context.Context, r pipeline.Result) error {
	if err := w.store.InsertResult(ctx, w.runID, w.seq, r); err != nil {
		return fmt.Errorf("store result %s: %w", r.DocID, err)
	}
	w.seq++
	w.summary.Add(r)
	return nil
}

// Abort records why the run stopped early. Close then marks it aborted.
func (w *RunWriter) Abort(err error) { w.runErr = err }

// Close marks the run finished. It does not close the Store.
func (w *RunWriter) Close() error {
	return w.store.FinishRun(context.Background(), w.runID, w.now(), w.summary, w.runErr)
}
