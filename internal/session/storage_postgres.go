package session

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PostgresStorage keeps session keys in a small table, one row per key,
// scoped by profile so several clients can share a database.
type PostgresStorage struct {
	db      *sql.DB
	profile string
}

func NewPostgresStorage(db *sql.DB, profile string) (*PostgresStorage, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	s := &PostgresStorage{db: db, profile: profile}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS client_session_state (
	profile TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (profile, key)
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure client_session_state schema: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Get(key string) (string, error) {
	var value string
	const q = `SELECT value FROM client_session_state WHERE profile = $1 AND key = $2`
	if err := s.db.QueryRow(q, s.profile, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query session key %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStorage) Set(key, value string) error {
	const q = `
INSERT INTO client_session_state (profile, key, value, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (profile, key) DO UPDATE
SET value = EXCLUDED.value,
	updated_at = NOW()`
	if _, err := s.db.Exec(q, s.profile, key, value); err != nil {
		return fmt.Errorf("upsert session key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) Delete(key string) error {
	const q = `DELETE FROM client_session_state WHERE profile = $1 AND key = $2`
	if _, err := s.db.Exec(q, s.profile, key); err != nil {
		return fmt.Errorf("delete session key %s: %w", key, err)
	}
	return nil
}
