package report

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/shpitdev/product-data-enhancer/internal/pipeline"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/redact"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a lexically sortable run id.
func NewRunID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// Run is one finished mapping call.
type Run struct {
	ID         string
	Operation  string
	Provider   string
	Model      string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Rows       int
	Degraded   int
}

// RowOutcome is a journaled per-row outcome.
type RowOutcome struct {
	RunID  string
	Row    int
	Input  string
	Status string
	Error  string
}

// Journal records runs and their row outcomes. It is never read back by the pipeline.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path with WAL mode enabled.
func Open(ctx context.Context, path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("report journal path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: pragmas below are per connection and concurrent writers serialize here
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	operation TEXT NOT NULL,
	provider TEXT,
	model TEXT,
	source TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	degraded_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS row_outcomes (
	run_id TEXT NOT NULL,
	row_index INTEGER NOT NULL,
	input TEXT,
	status TEXT NOT NULL,
	error TEXT,
	PRIMARY KEY(run_id, row_index),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_row_outcomes_status ON row_outcomes(run_id, status);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init report schema: %w", err)
	}
	return nil
}

// RecordRun stores run and its outcomes in one transaction. Error text is redacted.
func (j *Journal) RecordRun(ctx context.Context, run Run, outcomes []pipeline.Outcome) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (id, operation, provider, model, source, started_at, finished_at, row_count, degraded_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		run.ID,
		run.Operation,
		run.Provider,
		run.Model,
		run.Source,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Rows,
		run.Degraded,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO row_outcomes (run_id, row_index, input, status, error)
VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, o := range outcomes {
		var errText sql.NullString
		if o.Err != nil {
			errText = sql.NullString{String: redact.Secrets(o.Err.Error()), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.ID, o.Row, o.Input, o.Status, errText); err != nil {
			return fmt.Errorf("insert outcome run=%s row=%d: %w", run.ID, o.Row, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first. limit <= 0 defaults to 20.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, operation, provider, model, source, started_at, finished_at, row_count, degraded_count
FROM runs
ORDER BY started_at DESC, id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Run
	for rows.Next() {
		var (
			r                   Run
			provider, model     sql.NullString
			source              sql.NullString
			startedAt, finished string
		)
		if err := rows.Scan(&r.ID, &r.Operation, &provider, &model, &source, &startedAt, &finished, &r.Rows, &r.Degraded); err != nil {
			return nil, err
		}
		r.Provider = provider.String
		r.Model = model.String
		r.Source = source.String
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("run %s: parse started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("run %s: parse finished_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrRunNotFound is returned by Degraded for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Degraded returns the degraded rows of runID in row order.
func (j *Journal) Degraded(ctx context.Context, runID string) ([]RowOutcome, error) {
	var exists int
	err := j.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT row_index, input, status, error
FROM row_outcomes
WHERE run_id = ? AND status != ?
ORDER BY row_index;`, runID, pipeline.StatusOK)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []RowOutcome
	for rows.Next() {
		var (
			o        RowOutcome
			input    sql.NullString
			errValue sql.NullString
		)
		if err := rows.Scan(&o.Row, &input, &o.Status, &errValue); err != nil {
			return nil, err
		}
		o.RunID = runID
		o.Input = input.String
		o.Error = errValue.String
		out = append(out, o)
	}
	return out, rows.Err()
}
