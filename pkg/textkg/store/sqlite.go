package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists extraction results to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite result store.
// The path should be a file path (e.g., "./results.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS extraction_results (
			run_id TEXT NOT NULL,
			document TEXT NOT NULL,
			graph BLOB NOT NULL,
			report BLOB NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (run_id, document)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_extraction_results_run_id
		ON extraction_results(run_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(runID, document string, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO extraction_results (run_id, document, graph, report, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, document) DO UPDATE SET
			graph = excluded.graph,
			report = excluded.report,
			created_at = excluded.created_at
	`, runID, document, res.Graph, res.Report, createdAt.Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(runID, document string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Result{}, ErrStoreClosed
	}

	var res Result
	var createdAt string
	err := s.db.QueryRow(`
		SELECT graph, report, created_at FROM extraction_results
		WHERE run_id = ? AND document = ?
	`, runID, document).Scan(&res.Graph, &res.Report, &createdAt)

	if err == sql.ErrNoRows {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load result: %w", err)
	}

	res.Document = document
	res.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return res, nil
}

// List implements Store.
func (s *SQLiteStore) List(runID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT document, created_at, LENGTH(graph) + LENGTH(report)
		FROM extraction_results
		WHERE run_id = ?
		ORDER BY created_at, document
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var createdAt string
		if err := rows.Scan(&info.Document, &createdAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan result info: %w", err)
		}
		info.RunID = runID
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	return infos, nil
}

// Has implements Store.
func (s *SQLiteStore) Has(runID, document string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	var one int
	err := s.db.QueryRow(`
		SELECT 1 FROM extraction_results
		WHERE run_id = ? AND document = ?
	`, runID, document).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check result: %w", err)
	}
	return true, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(runID, document string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		DELETE FROM extraction_results
		WHERE run_id = ? AND document = ?
	`, runID, document)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		DELETE FROM extraction_results WHERE run_id = ?
	`, runID)
	if err != nil {
		return fmt.Errorf("delete run results: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
