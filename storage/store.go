package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is the full persistence surface of the server. Both backends
// satisfy it through BaseStore; consumers that only need a slice of it
// (the report generator, the scheduler) declare their own narrow
// interfaces and accept this one.
type Store interface {
	// Domain data
	UpsertProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context, f ProductFilter) ([]*Product, error)
	InsertOrder(ctx context.Context, o *Order) error
	ListOrders(ctx context.Context, f OrderFilter) ([]*Order, error)
	AggregateCustomers(ctx context.Context, f OrderFilter) ([]*CustomerStats, error)
	AggregateMarketplaces(ctx context.Context, f OrderFilter) ([]*MarketplaceStats, error)
	UpsertSalesSummary(ctx context.Context, sum *SalesSummary) error
	ListSalesSummaries(ctx context.Context, f SalesSummaryFilter) ([]*SalesSummary, error)
	AggregateProfitByPeriod(ctx context.Context, f SalesSummaryFilter) ([]*ProfitPoint, error)
	SaveAuditEntry(ctx context.Context, e *AuditEntry) error
	ListAuditEntries(ctx context.Context, f AuditFilter) ([]*AuditEntry, error)

	// Report pipeline
	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context, limit int) ([]*Report, error)
	MarkReportGenerating(ctx context.Context, id string, startedAt time.Time) error
	CompleteReport(ctx context.Context, r *Report) error
	FailReport(ctx context.Context, id, errMsg string, completedAt time.Time) error
	DeleteReport(ctx context.Context, id string) error
	ListReportsOlderThan(ctx context.Context, cutoff time.Time) ([]*Report, error)
	GetReportSummary(ctx context.Context) (*ReportSummary, error)

	// Schedules and execution history
	CreateSchedule(ctx context.Context, sch *ReportSchedule) error
	GetSchedule(ctx context.Context, id int64) (*ReportSchedule, error)
	ListSchedules(ctx context.Context) ([]*ReportSchedule, error)
	UpdateSchedule(ctx context.Context, sch *ReportSchedule) error
	DeleteSchedule(ctx context.Context, id int64) error
	GetDueSchedules(ctx context.Context, now time.Time) ([]*ReportSchedule, error)
	UpdateScheduleAfterRun(ctx context.Context, id int64, lastRunAt time.Time, lastRunStatus string, nextRunAt time.Time) error
	CreateExecution(ctx context.Context, e *ReportExecution) error
	CompleteExecution(ctx context.Context, id int64, reportID, status, errMsg string, completedAt time.Time) error
	ListExecutions(ctx context.Context, scheduleID int64, limit int) ([]*ReportExecution, error)
	CleanupOldExecutions(ctx context.Context, cutoff time.Time) (int64, error)

	DB() *sql.DB
	Dialect() Dialect
	Path() string
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Config selects and configures a backend.
type Config struct {
	Driver              string // "sqlite" (default) or "postgres"
	Path                string // SQLite file path
	DSN                 string // Postgres connection string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetimeSecs int
}

// NewStore opens the configured backend.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = GetDefaultDBPath()
		}
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStore(PostgresOptions{
			DSN:                 cfg.DSN,
			MaxOpenConns:        cfg.MaxOpenConns,
			MaxIdleConns:        cfg.MaxIdleConns,
			ConnMaxLifetimeSecs: cfg.ConnMaxLifetimeSecs,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
