package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

type styleKey struct {
	base   int
	marker marker
}

// styleCache derives marked styles from a cell's existing style, creating
// each base/marker combination once per workbook.
type styleCache struct {
	f   *excelize.File
	ids map[styleKey]int
}

func newStyleCache(f *excelize.File) *styleCache {
	return &styleCache{f: f, ids: make(map[styleKey]int)}
}

// apply returns the style ID for cell with marker m merged in
func (c *styleCache) apply(sheet, cell string, m marker) (int, error) {
	base, err := c.f.GetCellStyle(sheet, cell)
	if err != nil {
		return 0, fmt.Errorf("read style %s!%s: %w", sheet, cell, err)
	}

	key := styleKey{base: base, marker: m}
	if id, ok := c.ids[key]; ok {
		return id, nil
	}

	style, err := c.f.GetStyle(base)
	if err != nil || style == nil {
		style = &excelize.Style{}
	}

	style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{m.fill()}}
	if m == markThreat {
		if style.Alignment == nil {
			style.Alignment = &excelize.Alignment{}
		}
		style.Alignment.WrapText = true
	}

	id, err := c.f.NewStyle(style)
	if err != nil {
		return 0, fmt.Errorf("create style: %w", err)
	}
	c.ids[key] = id
	return id, nil
}

func (m marker) fill() string {
	switch m {
	case markThreat:
		return FillThreat
	case markPrebuilt:
		return FillPrebuilt
	default:
		return FillClean
	}
}
