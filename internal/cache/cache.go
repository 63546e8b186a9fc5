// Package cache keeps Site Review verdicts between runs.
package cache

import (
	"time"

	"github.com/ppiankov/zsr/internal/model"
)

// Store is the verdict cache owned by a single resolver for one run.
// Implementations are not safe for concurrent use.
type Store interface {
	// Get returns a copy of a live verdict
	Get(key string) (model.Verdict, bool)
	// Set inserts or overwrites a verdict, stamped with the current time
	Set(key string, verdict model.Verdict)
	// Persist writes the whole store to its backing storage
	Persist() error
	// Len returns the number of live entries
	Len() int
	// Entries returns a copy of all live entries
	Entries() map[string]Entry
	// Close releases backing resources
	Close() error
}

// Entry is the persisted form of a verdict
type Entry struct {
	Threat     string    `json:"threatname"`
	Categories []string  `json:"categories"`
	Created    time.Time `json:"created"`
}

// Verdict returns a copy of the entry without its timestamp
func (e Entry) Verdict() model.Verdict {
	return model.Verdict{Threat: e.Threat, Categories: e.Categories}.Clone()
}

// expired reports whether the entry is at or past its TTL
func (e Entry) expired(now time.Time, ttl time.Duration) bool {
	return e.Created.IsZero() || !e.Created.Add(ttl).After(now)
}

func newEntry(v model.Verdict, now time.Time) Entry {
	v = v.Clone()
	return Entry{Threat: v.Threat, Categories: v.Categories, Created: now}
}
