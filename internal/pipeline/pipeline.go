package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/zsr/internal/cache"
	"github.com/ppiankov/zsr/internal/export"
	"github.com/ppiankov/zsr/internal/lookup"
	"github.com/ppiankov/zsr/internal/model"
	"github.com/ppiankov/zsr/internal/resolve"
	"github.com/ppiankov/zsr/internal/sheet"
	"github.com/ppiankov/zsr/internal/worker"
	"go.uber.org/zap"
)

// Pipeline wires the cache, lookup client, resolver and reconciler for one run
type Pipeline struct {
	store      cache.Store
	resolver   *resolve.Resolver
	reconciler *sheet.Reconciler
	config     *model.Config
	logger     *zap.Logger
}

// NewPipeline opens the configured cache and builds the run components
func NewPipeline(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	return newPipeline(cfg, store, lookup.NewClient(cfg.Lookup, cfg.HTTP, logger), logger), nil
}

func newPipeline(cfg *model.Config, store cache.Store, looker resolve.Looker, logger *zap.Logger) *Pipeline {
	resolver := resolve.NewResolver(store, looker, cfg.Lookup.BatchSize, logger)
	return &Pipeline{
		store:      store,
		resolver:   resolver,
		reconciler: sheet.NewReconciler(resolver, cfg.Sheet, logger),
		config:     cfg,
		logger:     logger,
	}
}

// ListResult contains the outcome of resolving a URL list
type ListResult struct {
	Inputs  int
	Results model.Results
	Stats   resolve.Stats
}

// ResolveList resolves every URL in listPath and writes the requested exports.
// An empty jsonOut or excelOut skips that export.
func (p *Pipeline) ResolveList(ctx context.Context, listPath, jsonOut, excelOut string) (*ListResult, error) {
	urls, err := worker.ReadURLsFromFile(listPath)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Loaded URL list",
		zap.String("path", listPath),
		zap.Int("urls", len(urls)))

	results, stats, err := p.resolver.ResolveWithStats(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	if err := p.Export(results, jsonOut, excelOut); err != nil {
		return nil, err
	}

	return &ListResult{Inputs: len(urls), Results: results, Stats: stats}, nil
}

// Export writes results to the given paths; empty paths are skipped
func (p *Pipeline) Export(results model.Results, jsonOut, excelOut string) error {
	if jsonOut != "" {
		if err := export.WriteJSON(jsonOut, results); err != nil {
			return fmt.Errorf("export JSON: %w", err)
		}
		p.logger.Info("Wrote JSON export", zap.String("path", jsonOut))
	}

	if excelOut != "" {
		if err := export.WriteExcel(excelOut, results); err != nil {
			return fmt.Errorf("export Excel: %w", err)
		}
		p.logger.Info("Wrote Excel export", zap.String("path", excelOut))
	}

	return nil
}

// ReconcileWorkbook annotates the workbook at path in place. When sheets is
// empty the configured sheet names are used.
func (p *Pipeline) ReconcileWorkbook(ctx context.Context, path string, sheets []string) (sheet.Summary, error) {
	if len(sheets) == 0 {
		sheets = p.config.Sheet.Names
	}

	summary, err := p.reconciler.ReconcileFile(ctx, path, sheets)
	if err != nil {
		return summary, fmt.Errorf("reconcile %s: %w", path, err)
	}

	p.logger.Info("Workbook annotated",
		zap.String("path", path),
		zap.Int("threat", summary.Threat),
		zap.Int("prebuilt", summary.Prebuilt),
		zap.Int("clean", summary.Clean),
		zap.Int("unmatched", summary.Unmatched))

	return summary, nil
}

// Close releases the cache store
func (p *Pipeline) Close() error {
	return p.store.Close()
}
