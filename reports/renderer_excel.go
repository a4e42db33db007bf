package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelRenderer writes an XLSX workbook with a Data sheet and, when
// summary values exist, a Summary sheet.
type ExcelRenderer struct{}

func (r *ExcelRenderer) Extension() string { return "xlsx" }
func (r *ExcelRenderer) MimeType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (r *ExcelRenderer) Render(data *ReportData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const dataSheet = "Data"
	if err := f.SetSheetName("Sheet1", dataSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2563EB"}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for col, h := range data.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(dataSheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(dataSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style header: %w", err)
		}
	}

	for rowIdx, row := range data.Rows {
		for col, cell := range row {
			if cell == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(dataSheet, name, cell); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", name, err)
			}
		}
	}

	if len(data.Summary) > 0 {
		const summarySheet = "Summary"
		if _, err := f.NewSheet(summarySheet); err != nil {
			return nil, fmt.Errorf("create summary sheet: %w", err)
		}
		if err := f.SetCellValue(summarySheet, "A1", data.Title); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(summarySheet, "A2", "Generated at "+data.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")); err != nil {
			return nil, err
		}
		row := 4
		for _, key := range data.summaryKeys() {
			labelCell, _ := excelize.CoordinatesToCellName(1, row)
			valueCell, _ := excelize.CoordinatesToCellName(2, row)
			if err := f.SetCellValue(summarySheet, labelCell, formatLabel(key)); err != nil {
				return nil, err
			}
			if err := f.SetCellValue(summarySheet, valueCell, data.Summary[key]); err != nil {
				return nil, err
			}
			row++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
