// Package history keeps a SQLite ledger of narration runs and the batches
// they completed.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "history.db"

// ErrUnknownRun is returned by Finish and Get for an id that was never started.
var ErrUnknownRun = errors.New("unknown run")

// ErrAmbiguousRun is returned by Find when a prefix matches several runs.
var ErrAmbiguousRun = errors.New("ambiguous run id")

// Run is one row of the runs table.
type Run struct {
	ID          string
	Input       string
	Output      string
	Voice       string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while the run is in progress
	Outcome     string
	ChunksDone  int
	ChunksTotal int
	Error       string
}

// Duration returns how long the run took, or zero if it has not finished.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Batch is one completed batch of a run.
type Batch struct {
	RunID      string
	Batch      int
	ChunksDone int
	Message    string
	CreatedAt  time.Time
}

// Store wraps the history database.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("history opened", "path", path)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    input TEXT,
    output TEXT,
    voice TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    outcome TEXT,
    chunks_done INTEGER NOT NULL DEFAULT 0,
    chunks_total INTEGER NOT NULL DEFAULT 0,
    error TEXT
);
CREATE TABLE IF NOT EXISTS batches (
    run_id TEXT NOT NULL,
    batch INTEGER NOT NULL,
    chunks_done INTEGER NOT NULL,
    message TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_batches_run ON batches(run_id, batch);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start inserts a new run. StartedAt defaults to now.
func (s *Store) Start(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, input, output, voice, started_at, outcome, chunks_total)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.Output, run.Voice, run.StartedAt.UnixNano(), run.Outcome, run.ChunksTotal)
	return err
}

// Batch records a completed batch and advances the run's chunk count.
func (s *Store) Batch(ctx context.Context, runID string, batch, chunksDone, chunksTotal int, message string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches(run_id, batch, chunks_done, message, created_at) VALUES(?, ?, ?, ?, ?)`,
		runID, batch, chunksDone, message, s.clock().UnixNano()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET chunks_done = ?, chunks_total = ? WHERE id = ?`,
		chunksDone, chunksTotal, runID); err != nil {
		return err
	}
	return tx.Commit()
}

// Finish sets the outcome of a run.
func (s *Store) Finish(ctx context.Context, runID, outcome string, chunksDone, chunksTotal int, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, chunks_done = ?, chunks_total = ?, error = ? WHERE id = ?`,
		s.clock().UnixNano(), outcome, chunksDone, chunksTotal, errMsg, runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

const runColumns = `id, input, output, voice, started_at, finished_at, outcome, chunks_done, chunks_total, error`

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns a single run.
func (s *Store) Get(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return r, err
}

// Find returns the run whose id is id or starts with it. A prefix shared by
// several runs yields ErrAmbiguousRun.
func (s *Store) Find(ctx context.Context, id string) (Run, error) {
	if r, err := s.Get(ctx, id); !errors.Is(err, ErrUnknownRun) {
		return r, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(id), id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrUnknownRun, id)
	case 1:
		return found[0], nil
	}
	return Run{}, fmt.Errorf("%w: %s", ErrAmbiguousRun, id)
}

// Batches returns the batches of a run in order.
func (s *Store) Batches(ctx context.Context, runID string) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, batch, chunks_done, message, created_at FROM batches WHERE run_id = ? ORDER BY batch ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		var created int64
		var msg sql.NullString
		if err := rows.Scan(&b.RunID, &b.Batch, &b.ChunksDone, &msg, &created); err != nil {
			return nil, err
		}
		b.Message = msg.String
		b.CreatedAt = time.Unix(0, created)
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                                   Run
		started                             int64
		finished                            sql.NullInt64
		input, output, voice, outcome, errs sql.NullString
	)
	if err := sc.Scan(&r.ID, &input, &output, &voice, &started, &finished, &outcome, &r.ChunksDone, &r.ChunksTotal, &errs); err != nil {
		return Run{}, err
	}
	r.Input, r.Output, r.Voice, r.Outcome, r.Error = input.String, output.String, voice.String, outcome.String, errs.String
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		r.FinishedAt = time.Unix(0, finished.Int64)
	}
	return r, nil
}
