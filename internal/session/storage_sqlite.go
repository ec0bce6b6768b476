package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteStorage keeps session keys in a local SQLite database. A single
// connection is shared behind a mutex; sqlite.Conn is not safe for
// concurrent use.
type SQLiteStorage struct {
	path string

	mu   sync.Mutex
	conn *sqlite.Conn
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir sqlite dir: %w", err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	const schema = `
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS session_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ensure session_state schema: %w", err)
	}
	return &SQLiteStorage{path: path, conn: conn}, nil
}

func (s *SQLiteStorage) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		value string
		found bool
	)
	err := sqlitex.Execute(s.conn, `SELECT value FROM session_state WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("query session key %s: %w", key, err)
	}
	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *SQLiteStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `
INSERT INTO session_state (key, value, updated_at)
VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if err := sqlitex.Execute(s.conn, q, &sqlitex.ExecOptions{Args: []any{key, value}}); err != nil {
		return fmt.Errorf("upsert session key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sqlitex.Execute(s.conn, `DELETE FROM session_state WHERE key = ?`, &sqlitex.ExecOptions{Args: []any{key}}); err != nil {
		return fmt.Errorf("delete session key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("close sqlite %s: %w", s.path, err)
	}
	return nil
}
