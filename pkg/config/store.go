package config

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Store keeps the whole configuration as a single JSON document in the
// app_settings row of the mascot database.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("config store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "config store: mkdir")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "config store: open")
	}
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS app_settings (id INTEGER PRIMARY KEY CHECK (id=1), json TEXT NOT NULL)`,
	); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "config store: migrate")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the raw document, or ok=false when no row exists yet.
func (s *Store) Load() ([]byte, bool, error) {
	var doc string
	err := s.db.QueryRow(`SELECT json FROM app_settings WHERE id=1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "config store: load")
	}
	if doc == "" {
		return nil, false, nil
	}
	return []byte(doc), true, nil
}

func (s *Store) Save(doc []byte) error {
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO app_settings(id, json) VALUES (1, ?)`, string(doc),
	); err != nil {
		return errors.Wrap(err, "config store: save")
	}
	return nil
}
