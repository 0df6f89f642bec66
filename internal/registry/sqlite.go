package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/thatjpcsguy/cappit/internal/errors"
)

// SQLiteStore keeps the registry in a SQLite database
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates or opens a registry database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema creates the challenges table if it doesn't exist.
// port is not UNIQUE: manual reservations may share a port.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS challenges (
		name TEXT PRIMARY KEY,
		port INTEGER NOT NULL,
		mode TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_port ON challenges(port);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		if isCorrupt(err) {
			return errors.StorageCorrupt(s.path, err)
		}
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Load returns all rows
func (s *SQLiteStore) Load() (map[string]Entry, error) {
	rows, err := s.db.Query("SELECT name, port, mode, updated_at FROM challenges")
	if err != nil {
		if isCorrupt(err) {
			return nil, errors.StorageCorrupt(s.path, err)
		}
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		var mode, updatedAt string

		if err := rows.Scan(&e.Name, &e.Port, &mode, &updatedAt); err != nil {
			return nil, err
		}

		e.Mode = Mode(mode)
		if !e.Mode.Valid() {
			return nil, errors.StorageCorrupt(s.path, fmt.Errorf("entry %q has unknown mode %q", e.Name, mode))
		}
		e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, errors.StorageCorrupt(s.path, fmt.Errorf("entry %q has bad updated_at %q: %w", e.Name, updatedAt, err))
		}

		entries[e.Name] = e
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read challenges: %w", err)
	}

	return entries, nil
}

// Save replaces every row in one transaction
func (s *SQLiteStore) Save(entries map[string]Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM challenges"); err != nil {
		return fmt.Errorf("failed to clear challenges: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO challenges (name, port, mode, updated_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for name, e := range entries {
		updatedAt := e.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		if _, err := stmt.Exec(name, e.Port, string(e.Mode), updatedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to insert %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registry: %w", err)
	}

	return nil
}

func isCorrupt(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrNotADB || sqliteErr.Code == sqlite3.ErrCorrupt
}
