package storage

import (
	"context"
	"database/sql"
)

// BaseStore carries the shared database handle and dialect for both
// backends. Queries are written with SQLite-style ? placeholders and
// converted at execution time when running on PostgreSQL, so the domain
// and report pipeline queries exist exactly once.
type BaseStore struct {
	db      *sql.DB
	dialect Dialect
	dbPath  string // file path for SQLite, DSN for Postgres
}

// DB returns the underlying database connection.
func (s *BaseStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use.
func (s *BaseStore) Dialect() Dialect {
	return s.dialect
}

// Path returns the database path or DSN the store was opened with.
func (s *BaseStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *BaseStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BaseStore) query(q string) string {
	if s.dialect.Name() == "postgres" {
		return ConvertPlaceholders(q)
	}
	return q
}

func (s *BaseStore) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.query(query), args...)
}
