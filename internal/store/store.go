// Package store persists per-model usage metadata in sqlite so LRU ordering
// and load counts survive restarts. All writes are best effort: a failing
// store degrades to in-memory recency, never to a crashed daemon.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

type UsageStore struct {
	db  *sql.DB
	log zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS model_usage (
	model_id       TEXT PRIMARY KEY,
	last_used_unix INTEGER NOT NULL DEFAULT 0,
	loads_total    INTEGER NOT NULL DEFAULT 0
);`

// Open opens (and creates if needed) the usage database. An empty path
// disables persistence: the returned nil store is safe to use.
func Open(path string, log zerolog.Logger) (*UsageStore, error) {
	if path == "" {
		return nil, nil
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening usage db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting wal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &UsageStore{db: db, log: log.With().Str("component", "store").Logger()}, nil
}

// LastUsed returns the persisted recency map.
func (s *UsageStore) LastUsed() (map[string]time.Time, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.Query("SELECT model_id, last_used_unix FROM model_usage WHERE last_used_unix > 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var unix int64
		if err := rows.Scan(&id, &unix); err != nil {
			return nil, err
		}
		out[id] = time.Unix(unix, 0)
	}
	return out, rows.Err()
}

// RecordUse upserts the last-used timestamp. Nil-safe and best effort.
func (s *UsageStore) RecordUse(id string, t time.Time) {
	if s == nil {
		return
	}
	_, err := s.db.Exec(`
INSERT INTO model_usage (model_id, last_used_unix) VALUES (?, ?)
ON CONFLICT(model_id) DO UPDATE SET last_used_unix = excluded.last_used_unix`,
		id, t.Unix())
	if err != nil {
		s.log.Warn().Err(err).Str("model", id).Msg("record use")
	}
}

// RecordLoad bumps the load counter. Nil-safe and best effort.
func (s *UsageStore) RecordLoad(id string) {
	if s == nil {
		return
	}
	_, err := s.db.Exec(`
INSERT INTO model_usage (model_id, loads_total) VALUES (?, 1)
ON CONFLICT(model_id) DO UPDATE SET loads_total = loads_total + 1`,
		id)
	if err != nil {
		s.log.Warn().Err(err).Str("model", id).Msg("record load")
	}
}

// Loads returns the persisted load count for a model.
func (s *UsageStore) Loads(id string) (int64, error) {
	if s == nil {
		return 0, nil
	}
	var n int64
	err := s.db.QueryRow("SELECT loads_total FROM model_usage WHERE model_id = ?", id).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}

func (s *UsageStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
