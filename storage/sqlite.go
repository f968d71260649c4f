// Package storage provides SQLite response storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/richinex/chunkmill/fault"
	"github.com/richinex/chunkmill/model"
)

// SqliteStorage implements ResponseStorage using SQLite.
// Rows are keyed by the request fingerprint; lookups verify the full tuple.
// Failed results are never persisted so a later run retries those chunks.
type SqliteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// Summary describes the stored responses.
type Summary struct {
	Entries    int
	TotalHits  int64
	ByProvider map[string]int
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fault.MarkLocalResource(fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqlite(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	return newSqlite(db)
}

// NewSqliteFromDB wraps an existing connection and ensures the schema.
func NewSqliteFromDB(db *sql.DB) (*SqliteStorage, error) {
	return newSqlite(db)
}

func newSqlite(db *sql.DB) (*SqliteStorage, error) {
	s := &SqliteStorage{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS responses (
			fingerprint TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt TEXT NOT NULL,
			chunk TEXT NOT NULL,
			text TEXT NOT NULL,
			failed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			accessed_at INTEGER NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_responses_provider_model
		ON responses(provider, model);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get returns the stored result for req.
func (s *SqliteStorage) Get(ctx context.Context, req model.Request) (model.Result, bool, error) {
	fp := req.Fingerprint()

	var stored model.Request
	var res model.Result
	err := s.db.QueryRowContext(ctx,
		`SELECT provider, model, prompt, chunk, text, failed
		 FROM responses WHERE fingerprint = ?`,
		fp,
	).Scan(&stored.Provider, &stored.Model, &stored.Prompt, &stored.Chunk, &res.Text, &res.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Result{}, false, nil
	}
	if err != nil {
		return model.Result{}, false, fmt.Errorf("failed to load response: %w", err)
	}
	if stored != req {
		// Digest collision: a different tuple owns this fingerprint.
		return model.Result{}, false, nil
	}

	// Hit bookkeeping is best-effort.
	_, _ = s.db.ExecContext(ctx,
		"UPDATE responses SET accessed_at = ?, hit_count = hit_count + 1 WHERE fingerprint = ?",
		s.now().Unix(), fp,
	)
	return res, true, nil
}

// Put stores res for req. A failed result is not persisted.
func (s *SqliteStorage) Put(ctx context.Context, req model.Request, res model.Result) error {
	if res.Failed {
		return nil
	}

	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO responses
			(fingerprint, provider, model, prompt, chunk, text, failed, created_at, accessed_at, hit_count)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, 0)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			provider = excluded.provider,
			model = excluded.model,
			prompt = excluded.prompt,
			chunk = excluded.chunk,
			text = excluded.text,
			failed = excluded.failed,
			accessed_at = excluded.accessed_at`,
		req.Fingerprint(), req.Provider, req.Model, req.Prompt, req.Chunk, res.Text, now, now,
	)
	if err != nil {
		return markDiskFull(fmt.Errorf("failed to store response: %w", err))
	}
	return nil
}

// Delete removes the entry for req.
func (s *SqliteStorage) Delete(ctx context.Context, req model.Request) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM responses WHERE fingerprint = ? AND provider = ? AND model = ? AND prompt = ? AND chunk = ?",
		req.Fingerprint(), req.Provider, req.Model, req.Prompt, req.Chunk,
	)
	if err != nil {
		return fmt.Errorf("failed to delete response: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (s *SqliteStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM responses"); err != nil {
		return markDiskFull(fmt.Errorf("failed to clear responses: %w", err))
	}
	return nil
}

// Len returns the number of stored entries.
func (s *SqliteStorage) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM responses").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return n, nil
}

// Summarize reports entry and hit counts.
func (s *SqliteStorage) Summarize(ctx context.Context) (Summary, error) {
	sum := Summary{ByProvider: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT provider, COUNT(*), COALESCE(SUM(hit_count), 0) FROM responses GROUP BY provider ORDER BY provider")
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider string
		var count int
		var hits int64
		if err := rows.Scan(&provider, &count, &hits); err != nil {
			return Summary{}, fmt.Errorf("failed to scan summary: %w", err)
		}
		sum.ByProvider[provider] = count
		sum.Entries += count
		sum.TotalHits += hits
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("failed to summarize responses: %w", err)
	}
	return sum, nil
}

// markDiskFull tags SQLITE_FULL and OS-level ENOSPC/EDQUOT as local
// resource exhaustion.
func markDiskFull(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrFull ||
			sqliteErr.SystemErrno == syscall.ENOSPC || sqliteErr.SystemErrno == syscall.EDQUOT {
			return fault.LocalResource(err)
		}
	}
	return fault.MarkLocalResource(err)
}

// Verify SqliteStorage implements ResponseStorage
var _ ResponseStorage = (*SqliteStorage)(nil)
