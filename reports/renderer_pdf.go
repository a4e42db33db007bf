package reports

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// PDFRenderer lays the report out as a paged document: title block,
// summary lines, then the data table.
type PDFRenderer struct{}

func (r *PDFRenderer) Extension() string { return "pdf" }
func (r *PDFRenderer) MimeType() string  { return "application/pdf" }

func (r *PDFRenderer) Render(data *ReportData) ([]byte, error) {
	orientation := "P"
	if data.Orientation == "landscape" {
		orientation = "L"
	}
	paper := data.PaperSize
	if paper == "" {
		paper = "A4"
	}

	pdf := fpdf.New(orientation, "mm", paper, "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, data.Title, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, "Generated at "+data.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"), "", 1, "L", false, 0, "")
	if data.Description != "" {
		pdf.CellFormat(0, 6, data.Description, "", 1, "L", false, 0, "")
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	if len(data.Summary) > 0 {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, "Summary", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, key := range data.summaryKeys() {
			line := fmt.Sprintf("%s: %s", formatLabel(key), formatNumber(data.Summary[key]))
			pdf.CellFormat(0, 5, line, "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	if len(data.Headers) > 0 {
		pageW, _ := pdf.GetPageSize()
		left, _, right, _ := pdf.GetMargins()
		colW := (pageW - left - right) / float64(len(data.Headers))

		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(37, 99, 235)
		pdf.SetTextColor(255, 255, 255)
		for _, h := range data.Headers {
			pdf.CellFormat(colW, 7, truncate(h, 28), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
		for _, row := range data.Rows {
			for _, cell := range row {
				pdf.CellFormat(colW, 6, truncate(formatCell(cell), 28), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("encode pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
