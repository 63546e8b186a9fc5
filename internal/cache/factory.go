package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/zsr/internal/model"
	"go.uber.org/zap"
)

// Open creates the configured store and loads it
func Open(ctx context.Context, cfg model.CacheConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case model.BackendJSON, "":
		store := NewFileStore(cfg.Path, cfg.TTL, logger)
		if err := store.Load(); err != nil {
			return nil, err
		}
		return store, nil
	case model.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		store, err := NewSQLiteStore(cfg.SQLitePath, cfg.TTL, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Load(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case model.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
