package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"goal2goal/internal/model"
)

// WriteXLSX exports the metric series to an Excel workbook, one sheet per
// tag with step/value columns.
func WriteXLSX(path string, series map[string][]model.MetricSample) error {
	if len(series) == 0 {
		return fmt.Errorf("no metric series to export")
	}

	tags := make([]string, 0, len(series))
	for tag := range series {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	f := excelize.NewFile()
	defer f.Close()

	for i, tag := range tags {
		sheet := sheetName(tag)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("new sheet %s: %w", sheet, err)
			}
		}

		if err := f.SetSheetRow(sheet, "A1", &[]any{"step", "value"}); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for row, sample := range series[tag] {
			cell, err := excelize.CoordinatesToCellName(1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, cell, &[]any{sample.Step, sample.Value}); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// sheetName sanitizes a metric tag into a legal Excel sheet name.
func sheetName(tag string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "*", "_", "?", "_", "[", "_", "]", "_", ":", "_")
	name := r.Replace(tag)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
