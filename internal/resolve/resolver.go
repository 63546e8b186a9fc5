// Package resolve turns raw URLs into Site Review verdicts, serving
// repeated keys from the cache and batching the rest.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/zsr/internal/cache"
	"github.com/ppiankov/zsr/internal/model"
	"github.com/ppiankov/zsr/internal/urlkey"
	"github.com/ppiankov/zsr/internal/worker"
	"go.uber.org/zap"
)

// Looker performs one remote lookup for a batch of normalized URLs
type Looker interface {
	Lookup(ctx context.Context, urls []string) (model.Results, error)
}

// Resolver resolves URLs through a cache store and a remote Looker
type Resolver struct {
	store     cache.Store
	looker    Looker
	batchSize int
	logger    *zap.Logger
}

// NewResolver creates a resolver; batchSize bounds the URLs per remote call
func NewResolver(store cache.Store, looker Looker, batchSize int, logger *zap.Logger) *Resolver {
	if batchSize <= 0 {
		batchSize = model.DefaultBatchSize
	}
	return &Resolver{
		store:     store,
		looker:    looker,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Stats describes one Resolve call
type Stats struct {
	CacheHits int
	Lookups   int
	Batches   int
}

// Resolve returns a verdict for every distinct normalized key derived from
// raw. Batches are sent one after another; each result is stored as soon as
// its batch returns. The store is persisted once at the end, or after the
// first failed batch so that completed batches are kept.
func (r *Resolver) Resolve(ctx context.Context, raw []string) (model.Results, error) {
	results, _, err := r.ResolveWithStats(ctx, raw)
	return results, err
}

// ResolveWithStats is Resolve that also reports hit and lookup counts
func (r *Resolver) ResolveWithStats(ctx context.Context, raw []string) (model.Results, Stats, error) {
	results := make(model.Results)
	var stats Stats

	misses := make([]string, 0)
	seen := make(map[string]struct{}, len(raw))
	for _, url := range raw {
		key := urlkey.Normalize(url)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if verdict, ok := r.store.Get(key); ok {
			results[key] = verdict
			stats.CacheHits++
			continue
		}
		misses = append(misses, key)
	}
	stats.Lookups = len(misses)

	r.logger.Info("Cache checked",
		zap.Int("cache_hits", stats.CacheHits),
		zap.Int("lookups", stats.Lookups))

	if len(misses) == 0 {
		return results, stats, nil
	}

	for _, batch := range worker.Chunk(misses, r.batchSize) {
		found, err := r.looker.Lookup(ctx, batch)
		if err != nil {
			err = fmt.Errorf("lookup batch of %d: %w", len(batch), err)
			if perr := r.store.Persist(); perr != nil {
				err = errors.Join(err, fmt.Errorf("persist cache: %w", perr))
			}
			return results, stats, err
		}
		stats.Batches++

		for key, verdict := range found {
			results[key] = verdict
			r.store.Set(key, verdict)
		}

		r.logger.Debug("Batch resolved",
			zap.Int("batch", stats.Batches),
			zap.Int("submitted", len(batch)),
			zap.Int("returned", len(found)))
	}

	if err := r.store.Persist(); err != nil {
		return results, stats, fmt.Errorf("persist cache: %w", err)
	}

	return results, stats, nil
}
