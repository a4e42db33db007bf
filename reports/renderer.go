package reports

import (
	"fmt"
	"strconv"
	"strings"
)

// Renderer encodes ReportData into one output format. Renderers are
// pure: the same data always yields the same bytes, which is what the
// renderer tests lean on.
type Renderer interface {
	Render(data *ReportData) ([]byte, error)
	Extension() string
	MimeType() string
}

// RendererFor returns the renderer for a format.
func RendererFor(format string) (Renderer, error) {
	switch format {
	case FormatCSV:
		return &CSVRenderer{}, nil
	case FormatHTML:
		return &HTMLRenderer{}, nil
	case FormatPDF:
		return &PDFRenderer{}, nil
	case FormatExcel:
		return &ExcelRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// formatCell renders one data cell as text. Cells are string, int64,
// float64, bool or nil (empty).
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', 2, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// formatLabel turns a summary key like "total_revenue" into a display
// label like "Total Revenue".
func formatLabel(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// formatNumber renders a summary value with thousands separators.
// Whole numbers drop the decimals.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, fracPart, _ := strings.Cut(s, ".")

	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	out := b.String()
	if neg {
		out = "-" + out
	}
	if fracPart != "00" {
		out += "." + fracPart
	}
	return out
}

// CSVRenderer writes RFC 4180 style CSV with a UTF-8 BOM so
// spreadsheet applications pick up the encoding. Every field is
// quoted, with embedded quotes doubled.
type CSVRenderer struct{}

func (r *CSVRenderer) Extension() string { return "csv" }
func (r *CSVRenderer) MimeType() string  { return "text/csv" }

func (r *CSVRenderer) Render(data *ReportData) ([]byte, error) {
	var b strings.Builder
	b.WriteString("\xEF\xBB\xBF")

	writeRecord := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte('"')
		}
		b.WriteString("\r\n")
	}

	if len(data.Headers) > 0 {
		writeRecord(data.Headers)
	}
	for _, row := range data.Rows {
		fields := make([]string, len(row))
		for i, cell := range row {
			fields[i] = formatCell(cell)
		}
		writeRecord(fields)
	}

	return []byte(b.String()), nil
}

// HTMLRenderer produces a self-contained document with inline styles,
// suitable for mailing or archiving without assets.
type HTMLRenderer struct{}

func (r *HTMLRenderer) Extension() string { return "html" }
func (r *HTMLRenderer) MimeType() string  { return "text/html" }

func (r *HTMLRenderer) Render(data *ReportData) ([]byte, error) {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", escapeHTML(data.Title))
	b.WriteString(`<style>
body { font-family: -apple-system, Segoe UI, Helvetica, Arial, sans-serif; margin: 2em; color: #1a1a2e; }
h1 { font-size: 1.4em; border-bottom: 2px solid #2563eb; padding-bottom: 0.3em; }
.meta { color: #666; font-size: 0.85em; margin-bottom: 1.5em; }
.summary { background: #f4f6fb; padding: 1em 1.5em; border-radius: 6px; margin-bottom: 1.5em; }
.summary li { margin: 0.2em 0; }
table { border-collapse: collapse; width: 100%; font-size: 0.9em; }
th { background: #2563eb; color: #fff; text-align: left; padding: 0.5em 0.75em; }
td { border-bottom: 1px solid #e2e5ef; padding: 0.45em 0.75em; }
tr:nth-child(even) td { background: #fafbfe; }
</style>
`)
	b.WriteString("</head>\n<body>\n")

	fmt.Fprintf(&b, "<h1>%s</h1>\n", escapeHTML(data.Title))
	fmt.Fprintf(&b, "<p class=\"meta\">Generated at %s</p>\n", data.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if data.Description != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", escapeHTML(data.Description))
	}

	if len(data.Summary) > 0 {
		b.WriteString("<div class=\"summary\"><ul>\n")
		for _, key := range data.summaryKeys() {
			fmt.Fprintf(&b, "<li><strong>%s:</strong> %s</li>\n",
				escapeHTML(formatLabel(key)), formatNumber(data.Summary[key]))
		}
		b.WriteString("</ul></div>\n")
	}

	b.WriteString("<table>\n<thead><tr>")
	for _, h := range data.Headers {
		fmt.Fprintf(&b, "<th>%s</th>", escapeHTML(h))
	}
	b.WriteString("</tr></thead>\n<tbody>\n")
	for _, row := range data.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", escapeHTML(formatCell(cell)))
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>\n")

	b.WriteString("</body>\n</html>\n")
	return []byte(b.String()), nil
}

func escapeHTML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(s)
}
