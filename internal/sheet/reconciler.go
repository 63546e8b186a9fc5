// Package sheet annotates entry lists in an xlsx workbook with Site Review
// verdicts.
package sheet

import (
	"context"
	"fmt"
	"slices"

	"github.com/ppiankov/zsr/internal/model"
	"github.com/ppiankov/zsr/internal/urlkey"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Cell fills
const (
	FillThreat   = "FFFF00"
	FillPrebuilt = "F79646"
	FillClean    = "CCFFCC"
)

// Resolver resolves raw cell values into verdicts keyed by normalized URL
type Resolver interface {
	Resolve(ctx context.Context, raw []string) (model.Results, error)
}

// Summary counts what one reconciliation did
type Summary struct {
	Sheets    int // sheets with a header marker
	Entries   int
	Threat    int
	Prebuilt  int
	Clean     int
	Unmatched int
}

type marker int

const (
	markThreat marker = iota
	markPrebuilt
	markClean
)

// Reconciler runs the collection and annotation passes over a workbook
type Reconciler struct {
	resolver Resolver
	cfg      model.SheetConfig
	prebuilt map[string]struct{}
	logger   *zap.Logger
}

// NewReconciler creates a reconciler; zero-valued cfg fields fall back to defaults
func NewReconciler(resolver Resolver, cfg model.SheetConfig, logger *zap.Logger) *Reconciler {
	def := model.DefaultConfig().Sheet
	if cfg.Marker == "" {
		cfg.Marker = def.Marker
	}
	if cfg.MarkerRows < 1 {
		cfg.MarkerRows = def.MarkerRows
	}
	if cfg.MaxColumns < 2 {
		cfg.MaxColumns = def.MaxColumns
	}
	if cfg.PrebuiltCategories == nil {
		cfg.PrebuiltCategories = def.PrebuiltCategories
	}

	prebuilt := make(map[string]struct{}, len(cfg.PrebuiltCategories))
	for _, c := range cfg.PrebuiltCategories {
		prebuilt[c] = struct{}{}
	}

	return &Reconciler{
		resolver: resolver,
		cfg:      cfg,
		prebuilt: prebuilt,
		logger:   logger,
	}
}

// entry is one non-empty cell of an entry list
type entry struct {
	sheet string
	cell  string
	value string
}

// Reconcile collects every entry from sheets, resolves them in one call and
// marks each cell. Sheets that are missing or carry no header marker are
// skipped. The workbook is modified in memory only.
func (r *Reconciler) Reconcile(ctx context.Context, f *excelize.File, sheets []string) (Summary, error) {
	var summary Summary

	var entries []entry
	for _, name := range sheets {
		found, ok, err := r.scanSheet(f, name)
		if err != nil {
			return summary, err
		}
		if !ok {
			continue
		}
		summary.Sheets++
		entries = append(entries, found...)
	}
	summary.Entries = len(entries)

	raw := make([]string, len(entries))
	for i, e := range entries {
		raw[i] = e.value
	}

	r.logger.Info("Collected workbook entries",
		zap.Int("sheets", summary.Sheets),
		zap.Int("entries", len(raw)))

	results, err := r.resolver.Resolve(ctx, raw)
	if err != nil {
		return summary, fmt.Errorf("resolve entries: %w", err)
	}

	styles := newStyleCache(f)
	for _, e := range entries {
		key := urlkey.Normalize(e.value)
		verdict, ok := results[key]
		if !ok {
			r.logger.Warn("Key not found in lookup results",
				zap.String("key", key),
				zap.String("sheet", e.sheet),
				zap.String("cell", e.cell))
			summary.Unmatched++
			continue
		}

		m := r.classify(verdict)
		if err := r.annotate(f, styles, e, verdict, m); err != nil {
			return summary, err
		}
		switch m {
		case markThreat:
			summary.Threat++
		case markPrebuilt:
			summary.Prebuilt++
		default:
			summary.Clean++
		}
	}

	return summary, nil
}

// ReconcileFile opens the workbook at path, reconciles sheets and saves it in place
func (r *Reconciler) ReconcileFile(ctx context.Context, path string, sheets []string) (summary Summary, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return summary, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	summary, err = r.Reconcile(ctx, f, sheets)
	if err != nil {
		return summary, err
	}

	if err := f.Save(); err != nil {
		return summary, fmt.Errorf("save workbook: %w", err)
	}
	return summary, nil
}

// scanSheet returns the entries of one sheet; ok is false when the sheet
// is absent or has no header marker.
func (r *Reconciler) scanSheet(f *excelize.File, name string) ([]entry, bool, error) {
	if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
		r.logger.Warn("Sheet not found in workbook", zap.String("sheet", name))
		return nil, false, nil
	}

	start, err := r.findMarker(f, name)
	if err != nil {
		return nil, false, err
	}
	if start == 0 {
		r.logger.Info("No header marker, skipping sheet",
			zap.String("sheet", name),
			zap.String("marker", r.cfg.Marker))
		return nil, false, nil
	}

	var entries []entry
	for col := 2; col < r.cfg.MaxColumns; col++ {
		for row := start; ; row++ {
			cell, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				return nil, false, fmt.Errorf("cell name: %w", err)
			}
			value, err := f.GetCellValue(name, cell)
			if err != nil {
				return nil, false, fmt.Errorf("read %s!%s: %w", name, cell, err)
			}
			if value == "" {
				break
			}
			entries = append(entries, entry{sheet: name, cell: cell, value: value})
		}
	}

	r.logger.Debug("Scanned sheet",
		zap.String("sheet", name),
		zap.Int("marker_row", start),
		zap.Int("entries", len(entries)))

	return entries, true, nil
}

// findMarker returns the 1-based row of the header marker in column A, or 0
func (r *Reconciler) findMarker(f *excelize.File, name string) (int, error) {
	for row := 1; row <= r.cfg.MarkerRows; row++ {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return 0, fmt.Errorf("cell name: %w", err)
		}
		value, err := f.GetCellValue(name, cell)
		if err != nil {
			return 0, fmt.Errorf("read %s!%s: %w", name, cell, err)
		}
		if value == r.cfg.Marker {
			return row, nil
		}
	}
	return 0, nil
}

// classify picks exactly one marker; a threat always wins over categories
func (r *Reconciler) classify(v model.Verdict) marker {
	if v.HasThreat() {
		return markThreat
	}
	if slices.ContainsFunc(v.Categories, func(c string) bool {
		_, ok := r.prebuilt[c]
		return ok
	}) {
		return markPrebuilt
	}
	return markClean
}

func (r *Reconciler) annotate(f *excelize.File, styles *styleCache, e entry, v model.Verdict, m marker) error {
	if m == markThreat {
		text := fmt.Sprintf("%s\n\nThreat: %s", e.value, v.Threat)
		if err := f.SetCellStr(e.sheet, e.cell, text); err != nil {
			return fmt.Errorf("write %s!%s: %w", e.sheet, e.cell, err)
		}
	}

	styleID, err := styles.apply(e.sheet, e.cell, m)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(e.sheet, e.cell, e.cell, styleID); err != nil {
		return fmt.Errorf("style %s!%s: %w", e.sheet, e.cell, err)
	}
	return nil
}
