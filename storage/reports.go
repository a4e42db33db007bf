package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateReport inserts a new report record. The caller assigns the ID.
func (s *BaseStore) CreateReport(ctx context.Context, r *Report) error {
	if r == nil {
		return fmt.Errorf("report required")
	}
	if r.ID == "" {
		return fmt.Errorf("report id required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = ReportStatusPending
	}

	paramsJSON, err := encodeParams(r.Parameters)
	if err != nil {
		return fmt.Errorf("create report: marshal parameters: %w", err)
	}

	query := `
		INSERT INTO reports (
			id, name, description, type, format, parameters, time_range,
			orientation, paper_size, status, generated_by,
			file_name, file_path, file_size, mime_type, error_message,
			created_at, started_at, completed_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.execContext(ctx, query,
		r.ID, r.Name, nullString(r.Description), r.Type, r.Format, paramsJSON,
		nullString(r.TimeRange), nullString(r.Orientation), nullString(r.PaperSize),
		r.Status, nullString(r.GeneratedBy),
		nullString(r.FileName), nullString(r.FilePath), r.FileSize, nullString(r.MimeType),
		nullString(r.ErrorMessage),
		r.CreatedAt, nullTimePtr(r.StartedAt), nullTimePtr(r.CompletedAt), nullTimePtr(r.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

const reportColumns = `
	id, name, description, type, format, parameters, time_range,
	orientation, paper_size, status, generated_by,
	file_name, file_path, file_size, mime_type, error_message,
	created_at, started_at, completed_at, expires_at
`

type reportScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row reportScanner) (*Report, error) {
	var r Report
	var description, timeRange, orientation, paperSize sql.NullString
	var generatedBy, fileName, filePath, mimeType, errorMessage sql.NullString
	var paramsJSON sql.NullString
	var startedAt, completedAt, expiresAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.Name, &description, &r.Type, &r.Format, &paramsJSON, &timeRange,
		&orientation, &paperSize, &r.Status, &generatedBy,
		&fileName, &filePath, &r.FileSize, &mimeType, &errorMessage,
		&r.CreatedAt, &startedAt, &completedAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	r.Description = description.String
	r.TimeRange = timeRange.String
	r.Orientation = orientation.String
	r.PaperSize = paperSize.String
	r.GeneratedBy = generatedBy.String
	r.FileName = fileName.String
	r.FilePath = filePath.String
	r.MimeType = mimeType.String
	r.ErrorMessage = errorMessage.String
	r.Parameters = decodeParams(paramsJSON)
	r.StartedAt = timePtr(startedAt)
	r.CompletedAt = timePtr(completedAt)
	r.ExpiresAt = timePtr(expiresAt)

	return &r, nil
}

// GetReport fetches a report by ID. Returns (nil, nil) when no such
// report exists.
func (s *BaseStore) GetReport(ctx context.Context, id string) (*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = ?`

	r, err := scanReport(s.queryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// ListReports returns reports newest first.
func (s *BaseStore) ListReports(ctx context.Context, limit int) ([]*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC, id DESC ` +
		s.dialect.LimitOffset(limit, 0)

	rows, err := s.queryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// MarkReportGenerating flips a pending report to generating and stamps
// started_at.
func (s *BaseStore) MarkReportGenerating(ctx context.Context, id string, startedAt time.Time) error {
	query := `UPDATE reports SET status = ?, started_at = ? WHERE id = ?`
	res, err := s.execContext(ctx, query, ReportStatusGenerating, startedAt, id)
	if err != nil {
		return fmt.Errorf("mark report generating: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CompleteReport records a successful generation with its file metadata.
func (s *BaseStore) CompleteReport(ctx context.Context, r *Report) error {
	if r == nil {
		return fmt.Errorf("report required")
	}

	query := `
		UPDATE reports SET
			status = ?,
			file_name = ?,
			file_path = ?,
			file_size = ?,
			mime_type = ?,
			completed_at = ?,
			expires_at = ?
		WHERE id = ?
	`
	res, err := s.execContext(ctx, query,
		ReportStatusCompleted, r.FileName, r.FilePath, r.FileSize, r.MimeType,
		nullTimePtr(r.CompletedAt), nullTimePtr(r.ExpiresAt), r.ID)
	if err != nil {
		return fmt.Errorf("complete report: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FailReport records a failed generation with its error message.
func (s *BaseStore) FailReport(ctx context.Context, id, errMsg string, completedAt time.Time) error {
	query := `UPDATE reports SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`
	res, err := s.execContext(ctx, query, ReportStatusFailed, errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("fail report: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteReport removes a report record. The caller owns file removal.
func (s *BaseStore) DeleteReport(ctx context.Context, id string) error {
	res, err := s.execContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListReportsOlderThan returns completed reports whose completed_at is
// before the cutoff. Only completed reports are retention candidates.
func (s *BaseStore) ListReportsOlderThan(ctx context.Context, cutoff time.Time) ([]*Report, error) {
	query := `SELECT ` + reportColumns + `
		FROM reports
		WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?
		ORDER BY completed_at ASC`

	rows, err := s.queryContext(ctx, query, ReportStatusCompleted, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list reports older than: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetReportSummary returns dashboard counters across reports and schedules.
func (s *BaseStore) GetReportSummary(ctx context.Context) (*ReportSummary, error) {
	var sum ReportSummary

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'generating' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(file_size), 0)
		FROM reports
	`
	err := s.queryRowContext(ctx, query).Scan(
		&sum.TotalReports, &sum.PendingCount, &sum.GeneratingCount,
		&sum.CompletedCount, &sum.FailedCount, &sum.TotalFileSize)
	if err != nil {
		return nil, fmt.Errorf("report summary: %w", err)
	}

	scheduleQuery := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN enabled THEN 1 ELSE 0 END), 0)
		FROM report_schedules
	`
	if s.dialect.Name() == "sqlite" {
		scheduleQuery = `
			SELECT COUNT(*),
			       COALESCE(SUM(CASE WHEN enabled = 1 THEN 1 ELSE 0 END), 0)
			FROM report_schedules
		`
	}
	err = s.queryRowContext(ctx, scheduleQuery).Scan(&sum.ScheduleCount, &sum.EnabledSchedules)
	if err != nil {
		return nil, fmt.Errorf("schedule summary: %w", err)
	}

	return &sum, nil
}

// ============================================================================
// Schedules
// ============================================================================

// CreateSchedule inserts a new schedule and backfills its ID.
func (s *BaseStore) CreateSchedule(ctx context.Context, sch *ReportSchedule) error {
	if sch == nil {
		return fmt.Errorf("schedule required")
	}
	if sch.Name == "" {
		return fmt.Errorf("schedule name required")
	}
	now := time.Now().UTC()
	if sch.CreatedAt.IsZero() {
		sch.CreatedAt = now
	}
	sch.UpdatedAt = now
	if sch.Timezone == "" {
		sch.Timezone = "UTC"
	}

	paramsJSON, err := encodeParams(sch.Parameters)
	if err != nil {
		return fmt.Errorf("create schedule: marshal parameters: %w", err)
	}

	query := `
		INSERT INTO report_schedules (
			name, report_type, format, parameters, cron_expr, timezone, enabled,
			last_run_at, last_run_status, next_run_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if s.dialect.Name() == "postgres" {
		query = ConvertPlaceholders(query) + " RETURNING id"
		return s.db.QueryRowContext(ctx, query,
			sch.Name, sch.ReportType, sch.Format, paramsJSON, sch.CronExpr, sch.Timezone,
			sch.Enabled, nullTimePtr(sch.LastRunAt), nullString(sch.LastRunStatus),
			nullTimePtr(sch.NextRunAt), sch.CreatedAt, sch.UpdatedAt).Scan(&sch.ID)
	}

	res, err := s.execContext(ctx, query,
		sch.Name, sch.ReportType, sch.Format, paramsJSON, sch.CronExpr, sch.Timezone,
		sch.Enabled, nullTimePtr(sch.LastRunAt), nullString(sch.LastRunStatus),
		nullTimePtr(sch.NextRunAt), sch.CreatedAt, sch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sch.ID = id
	return nil
}

const scheduleColumns = `
	id, name, report_type, format, parameters, cron_expr, timezone, enabled,
	last_run_at, last_run_status, next_run_at, created_at, updated_at
`

func scanSchedule(row reportScanner) (*ReportSchedule, error) {
	var sch ReportSchedule
	var paramsJSON, lastRunStatus sql.NullString
	var lastRunAt, nextRunAt sql.NullTime

	err := row.Scan(
		&sch.ID, &sch.Name, &sch.ReportType, &sch.Format, &paramsJSON,
		&sch.CronExpr, &sch.Timezone, &sch.Enabled,
		&lastRunAt, &lastRunStatus, &nextRunAt, &sch.CreatedAt, &sch.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sch.Parameters = decodeParams(paramsJSON)
	sch.LastRunStatus = lastRunStatus.String
	sch.LastRunAt = timePtr(lastRunAt)
	sch.NextRunAt = timePtr(nextRunAt)
	return &sch, nil
}

// GetSchedule fetches a schedule by ID. Returns (nil, nil) when missing.
func (s *BaseStore) GetSchedule(ctx context.Context, id int64) (*ReportSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM report_schedules WHERE id = ?`

	sch, err := scanSchedule(s.queryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sch, nil
}

// ListSchedules returns all schedules by name.
func (s *BaseStore) ListSchedules(ctx context.Context) ([]*ReportSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM report_schedules ORDER BY name ASC, id ASC`

	rows, err := s.queryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*ReportSchedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

// UpdateSchedule rewrites a schedule's definition fields.
func (s *BaseStore) UpdateSchedule(ctx context.Context, sch *ReportSchedule) error {
	if sch == nil {
		return fmt.Errorf("schedule required")
	}
	if sch.ID == 0 {
		return fmt.Errorf("schedule id required")
	}

	paramsJSON, err := encodeParams(sch.Parameters)
	if err != nil {
		return fmt.Errorf("update schedule: marshal parameters: %w", err)
	}

	query := `
		UPDATE report_schedules SET
			name = ?,
			report_type = ?,
			format = ?,
			parameters = ?,
			cron_expr = ?,
			timezone = ?,
			enabled = ?,
			next_run_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := s.execContext(ctx, query,
		sch.Name, sch.ReportType, sch.Format, paramsJSON, sch.CronExpr, sch.Timezone,
		sch.Enabled, nullTimePtr(sch.NextRunAt), time.Now().UTC(), sch.ID)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSchedule removes a schedule. Executions cascade.
func (s *BaseStore) DeleteSchedule(ctx context.Context, id int64) error {
	res, err := s.execContext(ctx, `DELETE FROM report_schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetDueSchedules returns enabled schedules whose next_run_at is at or
// before now. A NULL next_run_at means never computed, which counts as
// due immediately.
func (s *BaseStore) GetDueSchedules(ctx context.Context, now time.Time) ([]*ReportSchedule, error) {
	enabledExpr := "enabled"
	if s.dialect.Name() == "sqlite" {
		enabledExpr = "enabled = 1"
	}

	query := `SELECT ` + scheduleColumns + `
		FROM report_schedules
		WHERE ` + enabledExpr + ` AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY next_run_at ASC, id ASC`

	rows, err := s.queryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("get due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*ReportSchedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

// UpdateScheduleAfterRun records a run outcome and always advances
// next_run_at, regardless of whether the run succeeded.
func (s *BaseStore) UpdateScheduleAfterRun(ctx context.Context, id int64, lastRunAt time.Time, lastRunStatus string, nextRunAt time.Time) error {
	query := `
		UPDATE report_schedules SET
			last_run_at = ?,
			last_run_status = ?,
			next_run_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := s.execContext(ctx, query, lastRunAt, lastRunStatus, nextRunAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update schedule after run: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ============================================================================
// Executions
// ============================================================================

// CreateExecution appends a running execution record for a schedule.
func (s *BaseStore) CreateExecution(ctx context.Context, e *ReportExecution) error {
	if e == nil {
		return fmt.Errorf("execution required")
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = ExecutionStatusRunning
	}

	query := `
		INSERT INTO report_executions (schedule_id, report_id, status, started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if s.dialect.Name() == "postgres" {
		query = ConvertPlaceholders(query) + " RETURNING id"
		return s.db.QueryRowContext(ctx, query,
			e.ScheduleID, nullString(e.ReportID), e.Status, e.StartedAt,
			nullTimePtr(e.CompletedAt), nullString(e.ErrorMessage)).Scan(&e.ID)
	}

	res, err := s.execContext(ctx, query,
		e.ScheduleID, nullString(e.ReportID), e.Status, e.StartedAt,
		nullTimePtr(e.CompletedAt), nullString(e.ErrorMessage))
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// CompleteExecution finalizes an execution with its outcome.
func (s *BaseStore) CompleteExecution(ctx context.Context, id int64, reportID, status, errMsg string, completedAt time.Time) error {
	query := `
		UPDATE report_executions SET
			report_id = ?,
			status = ?,
			error_message = ?,
			completed_at = ?
		WHERE id = ?
	`
	res, err := s.execContext(ctx, query,
		nullString(reportID), status, nullString(errMsg), completedAt, id)
	if err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListExecutions returns execution history for a schedule, newest first.
// A zero scheduleID returns history across all schedules.
func (s *BaseStore) ListExecutions(ctx context.Context, scheduleID int64, limit int) ([]*ReportExecution, error) {
	query := `
		SELECT id, schedule_id, report_id, status, started_at, completed_at, error_message
		FROM report_executions
	`
	var args []interface{}
	if scheduleID != 0 {
		query += " WHERE schedule_id = ?"
		args = append(args, scheduleID)
	}
	query += " ORDER BY started_at DESC, id DESC " + s.dialect.LimitOffset(limit, 0)

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []*ReportExecution
	for rows.Next() {
		var e ReportExecution
		var reportID, errMsg sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.ScheduleID, &reportID, &e.Status,
			&e.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, err
		}
		e.ReportID = reportID.String
		e.ErrorMessage = errMsg.String
		e.CompletedAt = timePtr(completedAt)
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// CleanupOldExecutions trims execution history older than the cutoff.
func (s *BaseStore) CleanupOldExecutions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execContext(ctx, `DELETE FROM report_executions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup executions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logDebug("Trimmed old report executions", "deleted", n)
	}
	return n, nil
}
