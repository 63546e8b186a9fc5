package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ppiankov/zsr/internal/model"
	"go.uber.org/zap"
)

// SQLiteStore backs the cache with a SQLite database.
// Live rows are read into memory at Load and changed rows are written back
// in one transaction by Persist, matching the JSON store's semantics.
type SQLiteStore struct {
	db      *sql.DB
	ttl     time.Duration
	logger  *zap.Logger
	entries map[string]Entry
	dirty   map[string]struct{}
	now     func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string, ttl time.Duration, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS verdicts (
			url_key TEXT PRIMARY KEY,
			threat_name TEXT NOT NULL,
			categories TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]Entry),
		dirty:   make(map[string]struct{}),
		now:     time.Now,
	}, nil
}

// Load deletes expired rows and reads the remaining ones
func (s *SQLiteStore) Load(ctx context.Context) error {
	cutoff := s.now().Add(-s.ttl)

	res, err := s.db.ExecContext(ctx, `DELETE FROM verdicts WHERE created_at <= ?`, cutoff.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to purge expired entries: %w", err)
	}
	if purged, err := res.RowsAffected(); err == nil {
		s.logger.Debug("Purged expired cache entries", zap.Int64("purged", purged))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT url_key, threat_name, categories, created_at FROM verdicts`)
	if err != nil {
		return fmt.Errorf("failed to query cache: %w", err)
	}
	defer rows.Close()

	s.entries = make(map[string]Entry)
	for rows.Next() {
		var key, threat, cats string
		var created int64
		if err := rows.Scan(&key, &threat, &cats, &created); err != nil {
			return fmt.Errorf("failed to scan cache row: %w", err)
		}

		var categories []string
		if err := json.Unmarshal([]byte(cats), &categories); err != nil {
			s.logger.Warn("Dropping cache row with unreadable categories", zap.String("key", key), zap.Error(err))
			continue
		}
		if categories == nil {
			categories = []string{}
		}
		s.entries[key] = Entry{Threat: threat, Categories: categories, Created: time.Unix(0, created)}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating cache rows: %w", err)
	}

	return nil
}

// Get returns the verdict for key if a live entry exists
func (s *SQLiteStore) Get(key string) (model.Verdict, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return model.Verdict{}, false
	}
	return entry.Verdict(), true
}

// Set inserts or overwrites the entry for key
func (s *SQLiteStore) Set(key string, verdict model.Verdict) {
	s.entries[key] = newEntry(verdict, s.now())
	s.dirty[key] = struct{}{}
}

// Len returns the number of live entries
func (s *SQLiteStore) Len() int {
	return len(s.entries)
}

// Entries returns a copy of all live entries
func (s *SQLiteStore) Entries() map[string]Entry {
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Persist upserts every entry changed since Load or the previous Persist
func (s *SQLiteStore) Persist() error {
	if len(s.dirty) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO verdicts (url_key, threat_name, categories, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for key := range s.dirty {
		entry := s.entries[key]
		cats, err := json.Marshal(entry.Categories)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to encode categories: %w", err)
		}
		if _, err := stmt.Exec(key, entry.Threat, string(cats), entry.Created.UnixNano()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert cache entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache: %w", err)
	}

	s.logger.Debug("Cache persisted", zap.Int("written", len(s.dirty)))
	s.dirty = make(map[string]struct{})
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
