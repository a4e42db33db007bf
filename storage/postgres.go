package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Import postgres driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store for PostgreSQL, for deployments that
// share a database server across services.
type PostgresStore struct {
	BaseStore
}

const pgSchemaVersion = 1

// PostgresOptions configures the connection pool.
type PostgresOptions struct {
	DSN                 string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetimeSecs int
}

// NewPostgresStore opens a PostgreSQL-backed store.
func NewPostgresStore(opts PostgresOptions) (*PostgresStore, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetimeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(opts.ConnMaxLifetimeSecs) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{
		BaseStore: BaseStore{
			db:      db,
			dialect: &PostgresDialect{},
			dbPath:  opts.DSN,
		},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
	}

	logInfo("Opened PostgreSQL database")

	return store, nil
}

// initSchema creates the database schema for PostgreSQL.
func (s *PostgresStore) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Catalog listings synced from marketplaces
	CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		sku TEXT NOT NULL,
		title TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		sold_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(sku, marketplace)
	);

	CREATE INDEX IF NOT EXISTS idx_products_marketplace ON products(marketplace);
	CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
	CREATE INDEX IF NOT EXISTS idx_products_stock ON products(stock);

	-- Ingested marketplace orders
	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		marketplace TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		customer_country TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
		cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		shipping_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		marketplace_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_marketplace ON orders(marketplace);
	CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
	CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

	-- Daily rollups per marketplace
	CREATE TABLE IF NOT EXISTS sales_summaries (
		id BIGSERIAL PRIMARY KEY,
		period TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		order_count INTEGER NOT NULL DEFAULT 0,
		units INTEGER NOT NULL DEFAULT 0,
		revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
		cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		profit DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE(period, marketplace)
	);

	CREATE INDEX IF NOT EXISTS idx_sales_summaries_period ON sales_summaries(period);

	-- Operator and system actions
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_actor ON audit_logs(actor);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);

	-- Generated report artifacts
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL,
		format TEXT NOT NULL,
		parameters TEXT,
		time_range TEXT,
		orientation TEXT,
		paper_size TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		generated_by TEXT,
		file_name TEXT,
		file_path TEXT,
		file_size BIGINT NOT NULL DEFAULT 0,
		mime_type TEXT,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	CREATE INDEX IF NOT EXISTS idx_reports_type ON reports(type);
	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_completed_at ON reports(completed_at);

	-- Recurring report definitions
	CREATE TABLE IF NOT EXISTS report_schedules (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		report_type TEXT NOT NULL,
		format TEXT NOT NULL,
		parameters TEXT,
		cron_expr TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		last_run_at TIMESTAMPTZ,
		last_run_status TEXT,
		next_run_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_report_schedules_next_run ON report_schedules(next_run_at) WHERE enabled = TRUE;

	-- Per-run schedule history
	CREATE TABLE IF NOT EXISTS report_executions (
		id BIGSERIAL PRIMARY KEY,
		schedule_id BIGINT NOT NULL,
		report_id TEXT,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMPTZ,
		error_message TEXT,
		CONSTRAINT fk_executions_schedule FOREIGN KEY(schedule_id) REFERENCES report_schedules(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_report_executions_schedule ON report_executions(schedule_id);
	CREATE INDEX IF NOT EXISTS idx_report_executions_started ON report_executions(started_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Update schema version
	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if currentVersion < pgSchemaVersion {
		_, err = s.db.Exec("INSERT INTO schema_version (version, applied_at) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
			pgSchemaVersion, time.Now())
		if err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	logInfo("Schema initialized for PostgreSQL", "schemaVersion", pgSchemaVersion)

	return nil
}
