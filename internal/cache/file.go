package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/zsr/internal/model"
	"go.uber.org/zap"
)

// legacyTimeLayout is the naive ISO-8601 form written by earlier releases
const legacyTimeLayout = "2006-01-02T15:04:05.999999"

// FileStore keeps the cache in memory and backs it with a single JSON file
type FileStore struct {
	path    string
	ttl     time.Duration
	logger  *zap.Logger
	entries map[string]Entry
	now     func() time.Time
}

// NewFileStore creates an empty file store; call Load to read the file
func NewFileStore(path string, ttl time.Duration, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:    path,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// fileRecord mirrors one JSON object in the cache file. Created is kept raw
// so that entries with missing or foreign timestamps can be purged instead
// of failing the whole file.
type fileRecord struct {
	Threat     *string  `json:"threatname"`
	Categories []string `json:"categories"`
	Created    *string  `json:"created"`
}

// Load reads the cache file and purges expired entries.
// A missing file yields an empty cache. A corrupt file is logged and
// also yields an empty cache. Other read errors are returned.
func (s *FileStore) Load() error {
	s.entries = make(map[string]Entry)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("Cache file not found, starting empty", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cache file: %w", err)
	}

	var records map[string]fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Error("Failed to load cache file, ensure it is not corrupted",
			zap.String("path", s.path), zap.Error(err))
		return nil
	}

	now := s.now()
	stale := 0
	for key, rec := range records {
		entry, ok := rec.entry()
		if !ok || entry.expired(now, s.ttl) {
			stale++
			continue
		}
		s.entries[key] = entry
	}

	s.logger.Debug("Cache loaded",
		zap.String("path", s.path),
		zap.Int("live", len(s.entries)),
		zap.Int("purged", stale))

	return nil
}

func (r fileRecord) entry() (Entry, bool) {
	if r.Created == nil {
		return Entry{}, false
	}
	created, err := parseCreated(*r.Created)
	if err != nil {
		return Entry{}, false
	}
	entry := Entry{Created: created, Categories: r.Categories}
	if r.Threat != nil {
		entry.Threat = *r.Threat
	}
	if entry.Categories == nil {
		entry.Categories = []string{}
	}
	return entry, true
}

func parseCreated(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation(legacyTimeLayout, value, time.Local)
}

// Get returns the verdict for key if a live entry exists
func (s *FileStore) Get(key string) (model.Verdict, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return model.Verdict{}, false
	}
	return entry.Verdict(), true
}

// Set inserts or overwrites the entry for key
func (s *FileStore) Set(key string, verdict model.Verdict) {
	s.entries[key] = newEntry(verdict, s.now())
}

// Len returns the number of live entries
func (s *FileStore) Len() int {
	return len(s.entries)
}

// Entries returns a copy of all live entries
func (s *FileStore) Entries() map[string]Entry {
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Persist replaces the cache file with the in-memory contents.
// The file is written next to the target and renamed into place.
func (s *FileStore) Persist() (err error) {
	data, err := json.MarshalIndent(s.entries, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}

	s.logger.Debug("Cache persisted", zap.String("path", s.path), zap.Int("entries", len(s.entries)))
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}
