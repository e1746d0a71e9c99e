// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists key-value state to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates the state database.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_state (
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL, -- Unix timestamp
		PRIMARY KEY (bucket, key)
	);
	CREATE INDEX IF NOT EXISTS idx_kv_state_bucket ON kv_state(bucket);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(
		`SELECT value FROM kv_state WHERE bucket = ? AND key = ?`, bucket, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLiteStore) Set(bucket, key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv_state (bucket, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, bucket, key, value, time.Now().Unix())
	return err
}

func (s *SQLiteStore) Delete(bucket, key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_state WHERE bucket = ? AND key = ?`, bucket, key)
	return err
}

func (s *SQLiteStore) ListKeys(bucket string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM kv_state WHERE bucket = ? ORDER BY key`, bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
