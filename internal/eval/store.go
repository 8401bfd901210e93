// Package eval records how each run and each executed leaf went, so that
// decompositions can be evaluated after the fact.
package eval

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one decomposition run.
type Run struct {
	ID          string
	RootTask    string
	TaskType    string
	Priority    string
	Strategy    string
	PatternID   string
	Success     bool
	SuccessRate float64
	Cost        float64
	Leaves      int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Eval is the outcome of executing one leaf.
type Eval struct {
	ID         string
	RunID      string
	NodeID     int
	Task       string
	TaskType   string
	Profile    string
	OK         bool
	Output     string
	Err        string
	Voted      bool
	VoteRounds int
	Consensus  bool
	DurationMs int64
	CreatedAt  time.Time
}

// TaskTypeStats aggregates runs of one task type.
type TaskTypeStats struct {
	TaskType  string
	Runs      int
	Succeeded int
	AvgRate   float64
	TotalCost float64
}

// maxOutputLen bounds the stored leaf output.
const maxOutputLen = 4000

// Store is a SQLite-backed run and eval log.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultPath returns the project-local eval database path.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".geodecomp", "evals.db")
}

// Open opens the eval database at path, creating it and applying
// migrations as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Runs},
		{2, migrationV2Evals},
		{3, migrationV3EvalTaskType},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Runs = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	root_task TEXT NOT NULL,
	task_type TEXT NOT NULL,
	priority TEXT NOT NULL,
	strategy TEXT,
	pattern_id TEXT,
	success INTEGER NOT NULL DEFAULT 0,
	success_rate REAL NOT NULL DEFAULT 0,
	cost REAL NOT NULL DEFAULT 0,
	leaves INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_task_type ON runs(task_type);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

const migrationV2Evals = `
CREATE TABLE IF NOT EXISTS evals (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	node_id INTEGER NOT NULL,
	task TEXT NOT NULL,
	profile TEXT,
	ok INTEGER NOT NULL,
	output TEXT,
	err TEXT,
	voted INTEGER NOT NULL DEFAULT 0,
	vote_rounds INTEGER NOT NULL DEFAULT 0,
	consensus INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_evals_run_id ON evals(run_id);
`

const migrationV3EvalTaskType = `
ALTER TABLE evals ADD COLUMN task_type TEXT;

UPDATE evals SET task_type = (SELECT task_type FROM runs WHERE runs.id = evals.run_id);

CREATE INDEX IF NOT EXISTS idx_evals_task_type ON evals(task_type);
`

// StartRun records the start of a run.
func (s *Store) StartRun(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO runs (id, root_task, task_type, priority, strategy, pattern_id, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.RootTask,
		r.TaskType,
		r.Priority,
		nullString(r.Strategy),
		nullString(r.PatternID),
		formatTime(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run started with StartRun.
func (s *Store) FinishRun(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	result, err := s.conn.ExecContext(ctx, `
		UPDATE runs SET
			strategy = ?,
			pattern_id = ?,
			success = ?,
			success_rate = ?,
			cost = ?,
			leaves = ?,
			finished_at = ?
		WHERE id = ?
	`,
		nullString(r.Strategy),
		nullString(r.PatternID),
		boolToInt(r.Success),
		r.SuccessRate,
		r.Cost,
		r.Leaves,
		formatTime(finished),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", r.ID)
	}
	return nil
}

// InsertEval records one leaf outcome.
func (s *Store) InsertEval(ctx context.Context, e Eval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	output := e.Output
	if len(output) > maxOutputLen {
		output = output[:maxOutputLen]
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO evals (
			id, run_id, node_id, task, task_type, profile, ok, output, err,
			voted, vote_rounds, consensus, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.RunID,
		e.NodeID,
		e.Task,
		nullString(e.TaskType),
		nullString(e.Profile),
		boolToInt(e.OK),
		nullString(output),
		nullString(e.Err),
		boolToInt(e.Voted),
		e.VoteRounds,
		boolToInt(e.Consensus),
		e.DurationMs,
		formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("insert eval: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, root_task, task_type, priority, strategy, pattern_id,
			   success, success_rate, cost, leaves, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                   Run
			strategy, patternID sql.NullString
			success             int
			startedAt           string
			finishedAt          sql.NullString
		)
		if err := rows.Scan(
			&r.ID, &r.RootTask, &r.TaskType, &r.Priority, &strategy, &patternID,
			&success, &r.SuccessRate, &r.Cost, &r.Leaves, &startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Strategy = strategy.String
		r.PatternID = patternID.String
		r.Success = success != 0
		r.StartedAt, _ = parseTime(startedAt)
		if finishedAt.Valid {
			r.FinishedAt, _ = parseTime(finishedAt.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListEvals returns the leaf outcomes of a run in insertion order.
func (s *Store) ListEvals(ctx context.Context, runID string) ([]Eval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, run_id, node_id, task, task_type, profile, ok, output, err,
			   voted, vote_rounds, consensus, duration_ms, created_at
		FROM evals WHERE run_id = ?
		ORDER BY rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query evals: %w", err)
	}
	defer rows.Close()

	var evals []Eval
	for rows.Next() {
		var (
			e                                  Eval
			taskType, profile, output, errText sql.NullString
			ok, voted, consensus               int
			createdAt                          string
		)
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.NodeID, &e.Task, &taskType, &profile, &ok, &output, &errText,
			&voted, &e.VoteRounds, &consensus, &e.DurationMs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan eval: %w", err)
		}
		e.TaskType = taskType.String
		e.Profile = profile.String
		e.Output = output.String
		e.Err = errText.String
		e.OK = ok != 0
		e.Voted = voted != 0
		e.Consensus = consensus != 0
		e.CreatedAt, _ = parseTime(createdAt)
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// Stats aggregates finished runs per task type, ordered by task type.
func (s *Store) Stats(ctx context.Context) ([]TaskTypeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT task_type, COUNT(*), SUM(success), AVG(success_rate), SUM(cost)
		FROM runs
		WHERE finished_at IS NOT NULL
		GROUP BY task_type
		ORDER BY task_type
	`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats []TaskTypeStats
	for rows.Next() {
		var st TaskTypeStats
		if err := rows.Scan(&st.TaskType, &st.Runs, &st.Succeeded, &st.AvgRate, &st.TotalCost); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// nullString converts a string to sql.NullString, treating empty as null.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
