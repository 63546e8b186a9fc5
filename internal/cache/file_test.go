package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/zsr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const ttl = 14 * 24 * time.Hour

func writeCacheFile(t *testing.T, path string, content any) {
	t.Helper()
	data, err := json.Marshal(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestFileStore_SetGet(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cache.json"), ttl, zap.NewNop())
	require.NoError(t, store.Load())

	_, ok := store.Get("example.com")
	assert.False(t, ok, "cache should be empty initially")

	store.Set("example.com", model.Verdict{Threat: "Phishing", Categories: []string{"MALWARE"}})

	got, ok := store.Get("example.com")
	require.True(t, ok)
	assert.Equal(t, model.Verdict{Threat: "Phishing", Categories: []string{"MALWARE"}}, got)
	assert.Equal(t, 1, store.Len())
}

func TestFileStore_GetReturnsCopy(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cache.json"), ttl, zap.NewNop())
	cats := []string{"A", "B"}
	store.Set("k", model.Verdict{Categories: cats})
	cats[0] = "changed"

	got, _ := store.Get("k")
	got.Categories[1] = "changed"

	again, _ := store.Get("k")
	assert.Equal(t, []string{"A", "B"}, again.Categories)
}

func TestFileStore_Load_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), ttl, zap.NewNop())
	require.NoError(t, store.Load())
	assert.Equal(t, 0, store.Len())
}

func TestFileStore_Load_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"example.com": {"threatname": `), 0644))

	core, logs := observer.New(zapcore.ErrorLevel)
	store := NewFileStore(path, ttl, zap.New(core))

	require.NoError(t, store.Load())
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, logs.Len(), "corruption should be logged")

	// A later persist overwrites the corrupt file
	store.Set("example.com", model.Verdict{Categories: []string{}})
	require.NoError(t, store.Persist())

	reloaded := NewFileStore(path, ttl, zap.NewNop())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 1, reloaded.Len())
}

func TestFileStore_Load_WrongShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0644))

	store := NewFileStore(path, ttl, zap.NewNop())
	require.NoError(t, store.Load())
	assert.Equal(t, 0, store.Len())
}

func TestFileStore_Load_PurgesExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "cache.json")

	writeCacheFile(t, path, map[string]any{
		"fresh.com":    map[string]any{"threatname": "", "categories": []string{"NEWS"}, "created": now.Add(-24 * time.Hour).Format(time.RFC3339Nano)},
		"old.com":      map[string]any{"threatname": "", "categories": []string{}, "created": now.Add(-15 * 24 * time.Hour).Format(time.RFC3339Nano)},
		"boundary.com": map[string]any{"threatname": "", "categories": []string{}, "created": now.Add(-ttl).Format(time.RFC3339Nano)},
		"undated.com":  map[string]any{"threatname": "", "categories": []string{}},
		"garbled.com":  map[string]any{"threatname": "", "categories": []string{}, "created": "yesterday"},
	})

	store := NewFileStore(path, ttl, zap.NewNop())
	store.now = func() time.Time { return now }
	require.NoError(t, store.Load())

	assert.Equal(t, 1, store.Len())
	got, ok := store.Get("fresh.com")
	require.True(t, ok)
	assert.Equal(t, []string{"NEWS"}, got.Categories)

	for _, key := range []string{"old.com", "boundary.com", "undated.com", "garbled.com"} {
		_, ok := store.Get(key)
		assert.False(t, ok, "%s should have been purged", key)
	}
}

func TestFileStore_Load_LegacyTimestamp(t *testing.T) {
	now := time.Now()
	path := filepath.Join(t.TempDir(), "cache.json")

	writeCacheFile(t, path, map[string]any{
		"legacy.com": map[string]any{
			"threatname": "Trojan",
			"categories": []string{"MALWARE_SITE"},
			"created":    now.Add(-time.Hour).Format("2006-01-02T15:04:05.000000"),
		},
	})

	store := NewFileStore(path, ttl, zap.NewNop())
	require.NoError(t, store.Load())

	got, ok := store.Get("legacy.com")
	require.True(t, ok)
	assert.Equal(t, "Trojan", got.Threat)
}

func TestFileStore_PersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cache.json")

	store := NewFileStore(path, ttl, zap.NewNop())
	require.NoError(t, store.Load())
	store.Set("a.com", model.Verdict{Threat: "", Categories: []string{"GLOBAL_INT_ZOOM"}})
	store.Set("b.com", model.Verdict{Threat: "Phishing", Categories: []string{}})
	require.NoError(t, store.Persist())

	reloaded := NewFileStore(path, ttl, zap.NewNop())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 2, reloaded.Len())

	got, ok := reloaded.Get("b.com")
	require.True(t, ok)
	assert.Equal(t, "Phishing", got.Threat)

	// Only the cache file remains, no temp files
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	var raw map[string]map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw["a.com"], "created")
	assert.Contains(t, raw["a.com"], "threatname")
	assert.Contains(t, raw["a.com"], "categories")
}

func TestFileStore_SetOverwritesTimestamp(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cache.json"), ttl, zap.NewNop())
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return first }
	store.Set("k", model.Verdict{Threat: "old"})

	second := first.Add(time.Hour)
	store.now = func() time.Time { return second }
	store.Set("k", model.Verdict{Threat: "new"})

	entries := store.Entries()
	assert.Equal(t, "new", entries["k"].Threat)
	assert.Equal(t, second, entries["k"].Created)
}
