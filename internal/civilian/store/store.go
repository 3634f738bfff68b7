// Package store keeps the small pieces of client state that survive a reload:
// the session token and the last-used emergency subcategory, which drives the
// "show first aid for this emergency" affordance.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	conn *sql.DB
}

func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *Store) set(key, value string) error {
	_, err := s.conn.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

func (s *Store) get(key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SaveSubcategoryID(id int64) error {
	return s.set("last_subcategory_id", strconv.FormatInt(id, 10))
}

func (s *Store) LastSubcategoryID() (int64, bool, error) {
	value, ok, err := s.get("last_subcategory_id")
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

func (s *Store) SaveToken(token string) error {
	return s.set("session_token", token)
}

func (s *Store) Token() (string, bool, error) {
	return s.get("session_token")
}

func (s *Store) Close() error {
	return s.conn.Close()
}
