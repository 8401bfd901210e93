package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ShayCichocki/geodecomp/pkg/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists archives in a SQLite database.
type SQLiteStore struct {
	db          *sql.DB
	dbPath      string
	maxPatterns int
	mu          sync.RWMutex
}

// DefaultPath returns the project-local pattern database path.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".geodecomp", "patterns.db")
}

// OpenSQLiteStore opens (creating if needed) the pattern database at dbPath
// and applies pending migrations. maxPatterns > 0 bounds each task type's
// archive.
func OpenSQLiteStore(dbPath string, maxPatterns int) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:          conn,
		dbPath:      dbPath,
		maxPatterns: maxPatterns,
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS archive_schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM archive_schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Patterns},
		{2, migrationV2PatternStats},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO archive_schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

const migrationV1Patterns = `
CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	task_type TEXT NOT NULL,
	priority TEXT NOT NULL DEFAULT 'normal',
	steps TEXT NOT NULL,
	depth INTEGER NOT NULL,
	breadth INTEGER NOT NULL,
	cost REAL NOT NULL,
	context_size INTEGER NOT NULL,
	success_rate REAL NOT NULL,
	score REAL NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patterns_task_type ON patterns(task_type);
`

const migrationV2PatternStats = `
ALTER TABLE patterns ADD COLUMN uses INTEGER NOT NULL DEFAULT 0;
ALTER TABLE patterns ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0;
ALTER TABLE patterns ADD COLUMN leaves INTEGER NOT NULL DEFAULT 0;
ALTER TABLE patterns ADD COLUMN succeeded_leaves INTEGER NOT NULL DEFAULT 0;

CREATE INDEX IF NOT EXISTS idx_patterns_score ON patterns(task_type, score DESC);
`

// Load implements Store. Entries come back in insertion order.
func (s *SQLiteStore) Load(ctx context.Context, taskType models.TaskType) (*Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_type, priority, steps, depth, breadth, cost, context_size,
			   success_rate, score, uses, duration_ms, leaves, succeeded_leaves, created_at
		FROM patterns WHERE task_type = ?
		ORDER BY rowid ASC
	`, string(taskType))
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	a := New(taskType)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		a.Entries = append(a.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patterns: %w", err)
	}
	return a, nil
}

// Get returns a single entry by pattern id, or false if it is not stored.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_type, priority, steps, depth, breadth, cost, context_size,
			   success_rate, score, uses, duration_ms, leaves, succeeded_leaves, created_at
		FROM patterns WHERE id = ?
	`, id)
	if err != nil {
		return Entry{}, false, fmt.Errorf("query pattern: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Entry{}, false, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Save implements Store. Entries whose pattern id is already stored are
// left untouched.
func (s *SQLiteStore) Save(ctx context.Context, a *Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	for _, e := range a.Entries {
		steps, err := json.Marshal(e.Pattern.Steps)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode steps for %s: %w", e.Pattern.ID, err)
		}
		createdAt := e.Pattern.Stats.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		p := e.Pattern
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO patterns (
				id, task_type, priority, steps, depth, breadth, cost, context_size,
				success_rate, score, uses, duration_ms, leaves, succeeded_leaves, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			p.ID,
			string(a.TaskType),
			string(p.Priority),
			string(steps),
			p.Phenotype.Depth,
			p.Phenotype.Breadth,
			p.Phenotype.Cost,
			p.Phenotype.ContextSize,
			p.Phenotype.SuccessRate,
			e.Score,
			p.Stats.Uses,
			p.Stats.DurationMs,
			p.Stats.Leaves,
			p.Stats.SucceededLeaves,
			formatTime(createdAt),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert pattern %s: %w", p.ID, err)
		}
	}

	if s.maxPatterns > 0 {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM patterns
			WHERE task_type = ? AND id NOT IN (
				SELECT id FROM patterns WHERE task_type = ?
				ORDER BY score DESC, rowid ASC
				LIMIT ?
			)
		`, string(a.TaskType), string(a.TaskType), s.maxPatterns)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("trim patterns: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TaskTypes returns the task types with at least one stored pattern.
func (s *SQLiteStore) TaskTypes(ctx context.Context) ([]models.TaskType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT task_type FROM patterns ORDER BY task_type")
	if err != nil {
		return nil, fmt.Errorf("query task types: %w", err)
	}
	defer rows.Close()

	var types []models.TaskType
	for rows.Next() {
		var tt string
		if err := rows.Scan(&tt); err != nil {
			return nil, fmt.Errorf("scan task type: %w", err)
		}
		types = append(types, models.TaskType(tt))
	}
	return types, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		taskType  string
		priority  string
		steps     string
		createdAt string
	)
	p := &e.Pattern
	err := rows.Scan(
		&p.ID,
		&taskType,
		&priority,
		&steps,
		&p.Phenotype.Depth,
		&p.Phenotype.Breadth,
		&p.Phenotype.Cost,
		&p.Phenotype.ContextSize,
		&p.Phenotype.SuccessRate,
		&e.Score,
		&p.Stats.Uses,
		&p.Stats.DurationMs,
		&p.Stats.Leaves,
		&p.Stats.SucceededLeaves,
		&createdAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("scan pattern: %w", err)
	}

	p.TaskType = models.TaskType(taskType)
	p.Priority = models.Priority(priority)
	if err := json.Unmarshal([]byte(steps), &p.Steps); err != nil {
		return Entry{}, fmt.Errorf("decode steps for %s: %w", p.ID, err)
	}
	p.Stats.CreatedAt, _ = parseTime(createdAt)
	return e, nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
