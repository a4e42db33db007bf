package reports

import (
	"fmt"
	"sort"
	"time"
)

// Report types.
const (
	TypeSalesSummary          = "sales_summary"
	TypeInventoryStatus       = "inventory_status"
	TypeProductPerformance    = "product_performance"
	TypeOrderDetail           = "order_detail"
	TypeCustomerAnalysis      = "customer_analysis"
	TypeProfitAnalysis        = "profit_analysis"
	TypeMarketplaceComparison = "marketplace_comparison"
	TypeAuditReport           = "audit_report"
	TypeCustom                = "custom"
)

// Output formats.
const (
	FormatPDF   = "pdf"
	FormatExcel = "xlsx"
	FormatCSV   = "csv"
	FormatHTML  = "html"
)

// rowCaps bounds how many rows each collector may fetch. The caps keep
// a runaway date range from producing unbounded artifacts; they are the
// single place these limits live.
var rowCaps = map[string]int{
	TypeSalesSummary:          1000,
	TypeInventoryStatus:       1000,
	TypeProductPerformance:    1000,
	TypeOrderDetail:           1000,
	TypeCustomerAnalysis:      1000,
	TypeProfitAnalysis:        365,
	TypeMarketplaceComparison: 1000,
	TypeAuditReport:           500,
	TypeCustom:                1000,
}

// RowCap returns the row limit for a report type, 0 if unknown.
func RowCap(reportType string) int {
	return rowCaps[reportType]
}

// ValidTypes returns the supported report types, sorted.
func ValidTypes() []string {
	types := make([]string, 0, len(rowCaps))
	for t := range rowCaps {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsValidType reports whether t is a supported report type.
func IsValidType(t string) bool {
	_, ok := rowCaps[t]
	return ok
}

// IsValidFormat reports whether f is a supported output format.
func IsValidFormat(f string) bool {
	switch f {
	case FormatPDF, FormatExcel, FormatCSV, FormatHTML:
		return true
	}
	return false
}

// Chart describes one chart block for renderers that draw them.
type Chart struct {
	Type   string    `json:"type"` // "bar" or "line"
	Title  string    `json:"title"`
	Labels []string  `json:"labels"`
	Series []float64 `json:"series"`
}

// ReportData is the format-agnostic hand-off between the collectors
// and the renderers. Cells are string, int64, float64, bool or nil.
// Summary values are always recomputable from Rows.
type ReportData struct {
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
	Headers     []string           `json:"headers"`
	Rows        [][]any            `json:"rows"`
	Summary     map[string]float64 `json:"summary,omitempty"`
	Charts      []Chart            `json:"charts,omitempty"`

	// Layout hints for paged formats
	Orientation string `json:"orientation,omitempty"` // "portrait" or "landscape"
	PaperSize   string `json:"paper_size,omitempty"`  // "A4" or "Letter"
}

// summaryKeys returns the summary keys in stable order.
func (d *ReportData) summaryKeys() []string {
	keys := make([]string, 0, len(d.Summary))
	for k := range d.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Params narrows what a collector fetches. StartDate and EndDate are
// inclusive YYYY-MM-DD bounds on the underlying created_at (or period
// label for rollup-backed reports). Actor narrows the audit report to
// one user. Preset selects the query for the custom report type.
type Params struct {
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Marketplace string `json:"marketplace,omitempty"`
	Status      string `json:"status,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Preset      string `json:"preset,omitempty"`
}

const dateLayout = "2006-01-02"

// Validate checks date syntax and ordering. Preset membership is
// checked separately so the error names the preset.
func (p Params) Validate() error {
	var start, end time.Time
	var err error
	if p.StartDate != "" {
		if start, err = time.Parse(dateLayout, p.StartDate); err != nil {
			return fmt.Errorf("invalid start_date %q: expected YYYY-MM-DD", p.StartDate)
		}
	}
	if p.EndDate != "" {
		if end, err = time.Parse(dateLayout, p.EndDate); err != nil {
			return fmt.Errorf("invalid end_date %q: expected YYYY-MM-DD", p.EndDate)
		}
	}
	if p.StartDate != "" && p.EndDate != "" && end.Before(start) {
		return fmt.Errorf("end_date %s is before start_date %s", p.EndDate, p.StartDate)
	}
	return nil
}

// timeRange converts the date bounds to inclusive timestamps in UTC.
// The end bound covers the whole end day.
func (p Params) timeRange() (*time.Time, *time.Time) {
	var start, end *time.Time
	if p.StartDate != "" {
		if t, err := time.Parse(dateLayout, p.StartDate); err == nil {
			t = t.UTC()
			start = &t
		}
	}
	if p.EndDate != "" {
		if t, err := time.Parse(dateLayout, p.EndDate); err == nil {
			t = t.Add(24*time.Hour - time.Second).UTC()
			end = &t
		}
	}
	return start, end
}

// RangeLabel is the human-readable time range stored on the report row.
func (p Params) RangeLabel() string {
	switch {
	case p.StartDate != "" && p.EndDate != "":
		return p.StartDate + " to " + p.EndDate
	case p.StartDate != "":
		return "from " + p.StartDate
	case p.EndDate != "":
		return "until " + p.EndDate
	default:
		return "all time"
	}
}

// Map converts the params to the generic map persisted with the report.
func (p Params) Map() map[string]any {
	m := map[string]any{}
	if p.StartDate != "" {
		m["start_date"] = p.StartDate
	}
	if p.EndDate != "" {
		m["end_date"] = p.EndDate
	}
	if p.Marketplace != "" {
		m["marketplace"] = p.Marketplace
	}
	if p.Status != "" {
		m["status"] = p.Status
	}
	if p.Actor != "" {
		m["actor"] = p.Actor
	}
	if p.Preset != "" {
		m["preset"] = p.Preset
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// ParamsFromMap rebuilds Params from a persisted parameter map.
func ParamsFromMap(m map[string]any) Params {
	var p Params
	if m == nil {
		return p
	}
	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}
	p.StartDate = str("start_date")
	p.EndDate = str("end_date")
	p.Marketplace = str("marketplace")
	p.Status = str("status")
	p.Actor = str("actor")
	p.Preset = str("preset")
	return p
}

// Result is what GenerateReport hands back. It is always a value, even
// when generation failed: Status carries the terminal state and Error
// the reason when Status is "failed".
type Result struct {
	ReportID string `json:"report_id,omitempty"`
	Status   string `json:"status"`
	FileName string `json:"file_name,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DownloadInfo is the download resolver's answer. A missing or
// not-ready report yields Available=false with a Reason, never an error.
type DownloadInfo struct {
	Available bool       `json:"available"`
	Reason    string     `json:"reason,omitempty"`
	FileName  string     `json:"file_name,omitempty"`
	FilePath  string     `json:"file_path,omitempty"`
	FileSize  int64      `json:"file_size,omitempty"`
	MimeType  string     `json:"mime_type,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CleanupResult reports one retention sweep.
type CleanupResult struct {
	Examined     int `json:"examined"`
	Deleted      int `json:"deleted"`
	FilesRemoved int `json:"files_removed"`
}

// RunStats tallies one scheduler pass. Failures of individual
// schedules are isolated and counted, never propagated.
type RunStats struct {
	Executed  int `json:"executed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
