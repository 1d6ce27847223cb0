package spreadsheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// TemplateSheet names the worksheet of the generated template.
const TemplateSheet = "Attendance"

var templateSamples = []string{"CS23B1001", "CS23B1002"}

// Template renders an xlsx workbook with the rollNo header and two sample rows.
func Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TemplateSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetCellValue(TemplateSheet, "A1", RollNoColumn); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, roll := range templateSamples {
		cell := fmt.Sprintf("A%d", i+firstDataRow)
		if err := f.SetCellValue(TemplateSheet, cell, roll); err != nil {
			return nil, fmt.Errorf("write sample %s: %w", cell, err)
		}
	}
	if err := f.SetColWidth(TemplateSheet, "A", "A", 16); err != nil {
		return nil, fmt.Errorf("size column: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write template: %w", err)
	}
	return buf.Bytes(), nil
}
