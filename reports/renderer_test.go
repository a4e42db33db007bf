package reports

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func sampleData() *ReportData {
	return &ReportData{
		Title:       "Sales Summary",
		GeneratedAt: time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC),
		Headers:     []string{"Period", "Marketplace", "Revenue"},
		Rows: [][]any{
			{"2026-08-01", "amazon", 1234.5},
			{"2026-08-02", `say "hi"`, 0.0},
			{"2026-08-03", nil, int64(7)},
		},
		Summary: map[string]float64{
			"total_revenue": 1234567.5,
			"total_orders":  42,
		},
	}
}

func TestRendererForFormats(t *testing.T) {
	t.Parallel()

	for _, format := range []string{FormatCSV, FormatHTML, FormatPDF, FormatExcel} {
		r, err := RendererFor(format)
		if err != nil {
			t.Fatalf("RendererFor(%q) failed: %v", format, err)
		}
		if r.Extension() == "" || r.MimeType() == "" {
			t.Errorf("renderer for %q has empty extension or mime type", format)
		}
	}

	if _, err := RendererFor("docx"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestCSVRenderer(t *testing.T) {
	t.Parallel()

	out, err := (&CSVRenderer{}).Render(sampleData())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !bytes.HasPrefix(out, []byte("\xEF\xBB\xBF")) {
		t.Fatal("output missing UTF-8 BOM")
	}
	body := string(out[3:])

	if !strings.Contains(body, "\r\n") {
		t.Error("records should end with CRLF")
	}
	// Every field is quoted, embedded quotes doubled.
	if !strings.HasPrefix(body, `"Period","Marketplace","Revenue"`) {
		t.Errorf("unexpected header line: %q", strings.SplitN(body, "\r\n", 2)[0])
	}
	if !strings.Contains(body, `"say ""hi"""`) {
		t.Error("embedded quotes should be doubled")
	}

	records, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	if err != nil {
		t.Fatalf("output does not parse as CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if records[1][2] != "1234.50" {
		t.Errorf("revenue cell = %q, want 1234.50", records[1][2])
	}
	if records[3][1] != "" {
		t.Errorf("nil cell = %q, want empty", records[3][1])
	}
	if records[3][2] != "7" {
		t.Errorf("int64 cell = %q, want 7", records[3][2])
	}
}

func TestCSVRendererEmptyData(t *testing.T) {
	t.Parallel()

	// Headers but no rows: just the header line.
	data := &ReportData{
		Title:       "Empty range",
		GeneratedAt: time.Now().UTC(),
		Headers:     []string{"Period", "Revenue"},
	}
	out, err := (&CSVRenderer{}).Render(data)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := string(out); got != "\xEF\xBB\xBF\"Period\",\"Revenue\"\r\n" {
		t.Errorf("header-only output = %q", got)
	}

	// No headers at all: the BOM alone, no stray record line.
	out, err = (&CSVRenderer{}).Render(&ReportData{Title: "Empty", GeneratedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := string(out); got != "\xEF\xBB\xBF" {
		t.Errorf("empty output = %q", got)
	}
}

func TestHTMLRenderer(t *testing.T) {
	t.Parallel()

	data := sampleData()
	data.Title = `Report <script>alert("x")</script>`

	out, err := (&HTMLRenderer{}).Render(data)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	html := string(out)

	if strings.Contains(html, "<script>alert") {
		t.Error("title was not escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("expected escaped title in output")
	}
	if !strings.Contains(html, "Generated at 2026-08-15 09:30:00 UTC") {
		t.Error("missing generated-at line")
	}
	if !strings.Contains(html, "<strong>Total Revenue:</strong> 1,234,567.50") {
		t.Error("missing formatted summary line")
	}
	if !strings.Contains(html, "<strong>Total Orders:</strong> 42") {
		t.Error("whole-number summary should drop decimals")
	}
	if !strings.Contains(html, "&quot;hi&quot;") {
		t.Error("cell quotes should be escaped")
	}

	// Same data, same bytes.
	again, err := (&HTMLRenderer{}).Render(data)
	if err != nil {
		t.Fatalf("second Render failed: %v", err)
	}
	if !bytes.Equal(out, again) {
		t.Error("renderer output is not deterministic")
	}
}

func TestPDFRenderer(t *testing.T) {
	t.Parallel()

	data := sampleData()
	data.Orientation = "landscape"

	out, err := (&PDFRenderer{}).Render(data)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Error("output does not start with a PDF header")
	}
}

func TestExcelRenderer(t *testing.T) {
	t.Parallel()

	out, err := (&ExcelRenderer{}).Render(sampleData())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	// XLSX is a zip container.
	if !bytes.HasPrefix(out, []byte("PK")) {
		t.Error("output does not start with a zip header")
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{999, "999"},
		{1000, "1,000"},
		{1234567.5, "1,234,567.50"},
		{-1234.56, "-1,234.56"},
	}
	for _, tc := range cases {
		if got := formatNumber(tc.in); got != tc.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatLabel(t *testing.T) {
	t.Parallel()

	if got := formatLabel("total_stock_value"); got != "Total Stock Value" {
		t.Errorf("formatLabel = %q", got)
	}
}
