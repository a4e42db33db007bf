package storage

import "time"

// Product statuses as tracked by the catalog sync.
const (
	ProductStatusActive       = "active"
	ProductStatusOutOfStock   = "out_of_stock"
	ProductStatusDiscontinued = "discontinued"
	ProductStatusDraft        = "draft"
)

// Product is a catalog listing on one marketplace.
type Product struct {
	ID          int64     `json:"id"`
	SKU         string    `json:"sku"`
	Title       string    `json:"title"`
	Marketplace string    `json:"marketplace"`
	Status      string    `json:"status"`
	Price       float64   `json:"price"`
	Cost        float64   `json:"cost"`
	Stock       int       `json:"stock"`
	SoldCount   int       `json:"sold_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Order is a single marketplace order as ingested by the order sync.
type Order struct {
	ID              int64     `json:"id"`
	OrderID         string    `json:"order_id"`
	Marketplace     string    `json:"marketplace"`
	CustomerID      string    `json:"customer_id"`
	CustomerCountry string    `json:"customer_country"`
	Status          string    `json:"status"`
	ItemCount       int       `json:"item_count"`
	Revenue         float64   `json:"revenue"`
	Cost            float64   `json:"cost"`
	ShippingFee     float64   `json:"shipping_fee"`
	MarketplaceFee  float64   `json:"marketplace_fee"`
	CreatedAt       time.Time `json:"created_at"`
}

// SalesSummary is a pre-aggregated daily rollup per marketplace.
// Period is a YYYY-MM-DD label.
type SalesSummary struct {
	ID          int64   `json:"id"`
	Period      string  `json:"period"`
	Marketplace string  `json:"marketplace"`
	OrderCount  int     `json:"order_count"`
	Units       int     `json:"units"`
	Revenue     float64 `json:"revenue"`
	Cost        float64 `json:"cost"`
	Profit      float64 `json:"profit"`
}

// AuditEntry records one operator or system action.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductFilter narrows product listings for the collectors.
type ProductFilter struct {
	Marketplace string
	Status      string
	MaxStock    *int // inclusive upper bound on stock, for low-stock views
	SortBySold  bool // order by sold_count descending instead of SKU
	Limit       int
}

// OrderFilter narrows order listings. Start/End are inclusive bounds
// on created_at.
type OrderFilter struct {
	Start       *time.Time
	End         *time.Time
	Marketplace string
	Status      string
	Limit       int
}

// SalesSummaryFilter narrows daily rollups by period label range.
type SalesSummaryFilter struct {
	StartPeriod string // inclusive YYYY-MM-DD, empty = unbounded
	EndPeriod   string
	Marketplace string
	Limit       int
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	Start *time.Time
	End   *time.Time
	Actor string
	Limit int
}

// CustomerStats is the per-customer aggregate used by the customer
// analysis report.
type CustomerStats struct {
	CustomerID    string    `json:"customer_id"`
	Country       string    `json:"country"`
	OrderCount    int       `json:"order_count"`
	Revenue       float64   `json:"revenue"`
	AvgOrderValue float64   `json:"avg_order_value"`
	LastOrderAt   time.Time `json:"last_order_at"`
}

// MarketplaceStats is the per-marketplace aggregate used by the
// marketplace comparison report and the fee preset.
type MarketplaceStats struct {
	Marketplace     string  `json:"marketplace"`
	OrderCount      int     `json:"order_count"`
	Revenue         float64 `json:"revenue"`
	Cost            float64 `json:"cost"`
	ShippingFees    float64 `json:"shipping_fees"`
	MarketplaceFees float64 `json:"marketplace_fees"`
	Profit          float64 `json:"profit"`
}

// ProfitPoint is one day of the profit analysis series, summed across
// marketplaces. Margin is profit as a percentage of revenue.
type ProfitPoint struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
	Margin  float64 `json:"margin"`
}

// Report lifecycle statuses. Transitions are monotonic:
// pending -> generating -> completed | failed.
const (
	ReportStatusPending    = "pending"
	ReportStatusGenerating = "generating"
	ReportStatusCompleted  = "completed"
	ReportStatusFailed     = "failed"
)

// Report is one generated (or in-flight) report artifact.
type Report struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Type         string         `json:"type"`
	Format       string         `json:"format"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	TimeRange    string         `json:"time_range,omitempty"`
	Orientation  string         `json:"orientation,omitempty"`
	PaperSize    string         `json:"paper_size,omitempty"`
	Status       string         `json:"status"`
	GeneratedBy  string         `json:"generated_by,omitempty"`
	FileName     string         `json:"file_name,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	FileSize     int64          `json:"file_size,omitempty"`
	MimeType     string         `json:"mime_type,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
}

// ReportSchedule is a recurring report definition. NextRunAt is nil
// until first computed, which means the schedule is due immediately.
type ReportSchedule struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	ReportType    string         `json:"report_type"`
	Format        string         `json:"format"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	CronExpr      string         `json:"cron_expr"`
	Timezone      string         `json:"timezone"`
	Enabled       bool           `json:"enabled"`
	LastRunAt     *time.Time     `json:"last_run_at,omitempty"`
	LastRunStatus string         `json:"last_run_status,omitempty"`
	NextRunAt     *time.Time     `json:"next_run_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Execution statuses for scheduled runs.
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// ReportExecution is one run of a schedule. Append-only history.
type ReportExecution struct {
	ID           int64      `json:"id"`
	ScheduleID   int64      `json:"schedule_id"`
	ReportID     string     `json:"report_id,omitempty"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ReportSummary feeds the dashboard counters.
type ReportSummary struct {
	TotalReports     int   `json:"total_reports"`
	PendingCount     int   `json:"pending_count"`
	GeneratingCount  int   `json:"generating_count"`
	CompletedCount   int   `json:"completed_count"`
	FailedCount      int   `json:"failed_count"`
	TotalFileSize    int64 `json:"total_file_size"`
	ScheduleCount    int   `json:"schedule_count"`
	EnabledSchedules int   `json:"enabled_schedules"`
}
