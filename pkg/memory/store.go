// Package memory persists conversation state to SQLite. Writes go through a
// single background goroutine so the consuming loop never blocks on disk;
// persistence is best-effort and failures are logged, never surfaced.
package memory

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const writeQueueSize = 128

type Store struct {
	db     *sql.DB
	writes chan func(db *sql.DB)
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS conversation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL DEFAULT(strftime('%s','now')),
		role TEXT NOT NULL,
		content TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL DEFAULT(strftime('%s','now')),
		text TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS summary (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		text TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT UNIQUE NOT NULL,
		count INTEGER NOT NULL DEFAULT 1,
		first_seen REAL NOT NULL DEFAULT (strftime('%s','now')),
		last_seen REAL NOT NULL DEFAULT (strftime('%s','now'))
	)`,
	`CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS profile (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL DEFAULT(strftime('%s','now')),
		source TEXT NOT NULL,
		device_id TEXT,
		device_name TEXT,
		temperature REAL,
		humidity REAL,
		illuminance REAL,
		motion INTEGER,
		event_time TEXT
	)`,
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("memory store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "memory store: mkdir")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "memory store: open")
	}
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA synchronous=NORMAL`} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "memory store: pragma")
		}
	}
	for _, stmt := range schemaStmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "memory store: migrate")
		}
	}
	s := &Store{
		db:     db,
		writes: make(chan func(db *sql.DB), writeQueueSize),
		done:   make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

func (s *Store) writer() {
	defer close(s.done)
	for op := range s.writes {
		op(s.db)
	}
}

// enqueue hands a write to the background writer. When the queue is full the
// write is dropped; the caller already gave up ownership, so losing a
// best-effort persistence write must never block the consuming loop.
// Maintenance goroutines may outlive the store, so a write arriving after
// Close is a logged no-op, never a panic.
func (s *Store) enqueue(op func(db *sql.DB)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Warn().Msg("memory store closed, dropping write")
		return
	}
	select {
	case s.writes <- op:
	default:
		log.Warn().Msg("memory write queue full, dropping write")
	}
}

// Close drains pending writes and closes the database. Idempotent; writes
// enqueued after Close are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.writes)
	<-s.done
	return s.db.Close()
}

// AddTurn appends a conversation row and trims the table to maxHistory,
// oldest first. Asynchronous and best-effort.
func (s *Store) AddTurn(role, content string, maxHistory int) {
	if role == "" || content == "" {
		return
	}
	s.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(`INSERT INTO conversation(role, content) VALUES (?, ?)`, role, content); err != nil {
			log.Error().Err(err).Msg("persist turn failed")
			return
		}
		if _, err := db.Exec(
			`DELETE FROM conversation WHERE id NOT IN (SELECT id FROM conversation ORDER BY id DESC LIMIT ?)`,
			maxHistory,
		); err != nil {
			log.Error().Err(err).Msg("trim conversation failed")
		}
	})
}

// AddQuery records a raw user query, trimmed to the same bound.
func (s *Store) AddQuery(text string, maxHistory int) {
	if text == "" {
		return
	}
	s.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(`INSERT INTO queries(text) VALUES (?)`, text); err != nil {
			log.Error().Err(err).Msg("persist query failed")
			return
		}
		if _, err := db.Exec(
			`DELETE FROM queries WHERE id NOT IN (SELECT id FROM queries ORDER BY id DESC LIMIT ?)`,
			maxHistory,
		); err != nil {
			log.Error().Err(err).Msg("trim queries failed")
		}
	})
}

func (s *Store) IncCounter(key string, by int) {
	s.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(
			`INSERT INTO counters(key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = value + excluded.value`,
			key, by,
		); err != nil {
			log.Error().Err(err).Str("key", key).Msg("counter update failed")
		}
	})
}

// SetSummary replaces the rolling summary, truncated to maxChars runes.
func (s *Store) SetSummary(text string, maxChars int) {
	text = truncateRunes(text, maxChars)
	s.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(`INSERT OR REPLACE INTO summary(id, text) VALUES (1, ?)`, text); err != nil {
			log.Error().Err(err).Msg("persist summary failed")
		}
	})
}

func (s *Store) SetUserName(name string) {
	if name == "" {
		return
	}
	s.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(`INSERT OR REPLACE INTO profile(id, name) VALUES (1, ?)`, name); err != nil {
			log.Error().Err(err).Msg("persist user name failed")
		}
	})
}

// AddFact upserts a learned fact, bumping its count and recency, then trims
// the table to maxFacts by recency.
func (s *Store) AddFact(text string, maxFacts int) {
	if text == "" {
		return
	}
	s.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(
			`INSERT INTO facts(text) VALUES (?)
			 ON CONFLICT(text) DO UPDATE SET
			   count = count + 1,
			   last_seen = strftime('%s','now')`,
			text,
		); err != nil {
			log.Error().Err(err).Msg("persist fact failed")
			return
		}
		if maxFacts <= 0 {
			return
		}
		if _, err := db.Exec(
			`DELETE FROM facts WHERE id NOT IN
			 (SELECT id FROM facts ORDER BY last_seen DESC, id DESC LIMIT ?)`,
			maxFacts,
		); err != nil {
			log.Error().Err(err).Msg("trim facts failed")
		}
	})
}

// Facts returns learned facts, most reinforced first.
func (s *Store) Facts(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.Query(
		`SELECT text FROM facts ORDER BY count DESC, last_seen DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "load facts")
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, errors.Wrap(err, "scan fact")
		}
		out = append(out, text)
	}
	return out, errors.Wrap(rows.Err(), "load facts")
}

// SensorReading is one sensor sample from a polling worker.
type SensorReading struct {
	Source      string
	DeviceID    string
	DeviceName  string
	Temperature *float64
	Humidity    *float64
	Illuminance *float64
	Motion      *int
	EventTime   string
}

func (s *Store) AddSensorReading(r SensorReading) {
	s.enqueue(func(db *sql.DB) {
		if _, err := db.Exec(
			`INSERT INTO sensor_readings(source, device_id, device_name, temperature, humidity, illuminance, motion, event_time)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Source, r.DeviceID, r.DeviceName, r.Temperature, r.Humidity, r.Illuminance, r.Motion, r.EventTime,
		); err != nil {
			log.Error().Err(err).Str("source", r.Source).Msg("persist sensor reading failed")
		}
	})
}

// Flush blocks until every write enqueued before the call has been applied.
// Test helper; the consuming loop never calls it.
func (s *Store) Flush() {
	ack := make(chan struct{})
	s.writes <- func(*sql.DB) { close(ack) }
	<-ack
}

// RecentTurns returns up to limit persisted turns, oldest first.
func (s *Store) RecentTurns(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.Query(
		`SELECT role, content, ts FROM conversation ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "recent turns")
	}
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Role, &e.Text, &ts); err != nil {
			return nil, errors.Wrap(err, "scan turn")
		}
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "recent turns")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Summary() (string, error) {
	var text string
	err := s.db.QueryRow(`SELECT text FROM summary WHERE id = 1`).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "load summary")
	}
	return text, nil
}

func (s *Store) UserName() (string, error) {
	var name sql.NullString
	err := s.db.QueryRow(`SELECT name FROM profile WHERE id = 1`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "load user name")
	}
	return name.String, nil
}

func (s *Store) Counter(key string) (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT value FROM counters WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "load counter")
	}
	return v, nil
}

// Snapshot collects a JSON-friendly dump of the store for the CLI.
func (s *Store) Snapshot(maxHistory int) (map[string]any, error) {
	turns, err := s.RecentTurns(maxHistory)
	if err != nil {
		return nil, err
	}
	summary, err := s.Summary()
	if err != nil {
		return nil, err
	}
	name, err := s.UserName()
	if err != nil {
		return nil, err
	}
	facts, err := s.Facts(100)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"conversation": turns,
		"summary":      summary,
	}
	if len(facts) > 0 {
		out["facts"] = facts
	}
	if name != "" {
		out["profile"] = map[string]any{"name": name}
	}
	return out, nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
