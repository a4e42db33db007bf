package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// SQLiteStore implements Store using SQLite. This is the default
// backend for single-node deployments.
type SQLiteStore struct {
	BaseStore
}

const schemaVersion = 1

// NewSQLiteStore opens (or creates) a SQLite-backed store at dbPath.
// Pass ":memory:" for an ephemeral database, used heavily in tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	// Build connection string with pragmas (skip for in-memory databases)
	connStr := dbPath
	if dbPath != ":memory:" {
		connStr += "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_foreign_keys=ON"
	} else {
		connStr += "?_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		BaseStore: BaseStore{
			db:      db,
			dialect: &SQLiteDialect{},
			dbPath:  dbPath,
		},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	logInfo("Opened SQLite database", "path", dbPath)

	return store, nil
}

// initSchema creates tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Catalog listings synced from marketplaces
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL,
		title TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		price REAL NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		sold_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(sku, marketplace)
	);

	CREATE INDEX IF NOT EXISTS idx_products_marketplace ON products(marketplace);
	CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
	CREATE INDEX IF NOT EXISTS idx_products_stock ON products(stock);

	-- Ingested marketplace orders
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL UNIQUE,
		marketplace TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		customer_country TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		revenue REAL NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		shipping_fee REAL NOT NULL DEFAULT 0,
		marketplace_fee REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_marketplace ON orders(marketplace);
	CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
	CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

	-- Daily rollups per marketplace
	CREATE TABLE IF NOT EXISTS sales_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		period TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		order_count INTEGER NOT NULL DEFAULT 0,
		units INTEGER NOT NULL DEFAULT 0,
		revenue REAL NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		profit REAL NOT NULL DEFAULT 0,
		UNIQUE(period, marketplace)
	);

	CREATE INDEX IF NOT EXISTS idx_sales_summaries_period ON sales_summaries(period);

	-- Operator and system actions
	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
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
		file_size INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT,
		error_message TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME,
		expires_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	CREATE INDEX IF NOT EXISTS idx_reports_type ON reports(type);
	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_completed_at ON reports(completed_at);

	-- Recurring report definitions
	CREATE TABLE IF NOT EXISTS report_schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		report_type TEXT NOT NULL,
		format TEXT NOT NULL,
		parameters TEXT,
		cron_expr TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		enabled INTEGER NOT NULL DEFAULT 1,
		last_run_at DATETIME,
		last_run_status TEXT,
		next_run_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_report_schedules_next_run ON report_schedules(next_run_at);

	-- Per-run schedule history
	CREATE TABLE IF NOT EXISTS report_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		schedule_id INTEGER NOT NULL,
		report_id TEXT,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME,
		error_message TEXT,
		FOREIGN KEY(schedule_id) REFERENCES report_schedules(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_report_executions_schedule ON report_executions(schedule_id);
	CREATE INDEX IF NOT EXISTS idx_report_executions_started ON report_executions(started_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Check/update schema version
	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if currentVersion < schemaVersion {
		_, err = s.db.Exec("INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, ?)",
			schemaVersion, time.Now())
		if err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	return nil
}
