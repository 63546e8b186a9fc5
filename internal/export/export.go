// Package export writes resolution results to JSON or a flat Excel sheet.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ppiankov/zsr/internal/model"
	"github.com/xuri/excelize/v2"
)

// DataSheet is the sheet name used by WriteExcel
const DataSheet = "Data"

// WriteJSON writes results as an indented object keyed by URL
func WriteJSON(path string, results model.Results) error {
	// encoding/json sorts map keys
	data, err := json.MarshalIndent(normalized(results), "", "    ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteExcel writes one row per URL under a url/threatname/categories header
func WriteExcel(path string, results model.Results) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	if err := f.SetSheetName("Sheet1", DataSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(DataSheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	if err := sw.SetRow("A1", []any{"url", "threatname", "categories"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, key := range sortedKeys(results) {
		v := results[key]
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := []any{key, v.Threat, strings.Join(v.Categories, ", ")}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// normalized replaces nil category lists so they encode as []
func normalized(results model.Results) model.Results {
	out := make(model.Results, len(results))
	for k, v := range results {
		if v.Categories == nil {
			v.Categories = []string{}
		}
		out[k] = v
	}
	return out
}

func sortedKeys(results model.Results) []string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
