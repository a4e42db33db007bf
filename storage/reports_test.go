package storage

import (
	"context"
	"testing"
	"time"
)

func TestReportLifecycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	r := &Report{
		ID:         "rep-001",
		Name:       "March sales",
		Type:       "sales_summary",
		Format:     "csv",
		Parameters: map[string]any{"marketplace": "rakuten"},
	}
	if err := store.CreateReport(ctx, r); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}

	got, err := store.GetReport(ctx, "rep-001")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got == nil {
		t.Fatal("expected report, got nil")
	}
	if got.Status != ReportStatusPending {
		t.Errorf("new report status = %s, want pending", got.Status)
	}
	if got.Parameters["marketplace"] != "rakuten" {
		t.Errorf("parameters not round-tripped: %+v", got.Parameters)
	}

	started := time.Now().UTC()
	if err := store.MarkReportGenerating(ctx, "rep-001", started); err != nil {
		t.Fatalf("MarkReportGenerating: %v", err)
	}

	completed := started.Add(2 * time.Second)
	expires := completed.Add(30 * 24 * time.Hour)
	got.FileName = "sales_summary_rep-001.csv"
	got.FilePath = "/tmp/reports/sales_summary_rep-001.csv"
	got.FileSize = 2048
	got.MimeType = "text/csv"
	got.CompletedAt = &completed
	got.ExpiresAt = &expires
	if err := store.CompleteReport(ctx, got); err != nil {
		t.Fatalf("CompleteReport: %v", err)
	}

	final, err := store.GetReport(ctx, "rep-001")
	if err != nil {
		t.Fatalf("GetReport after complete: %v", err)
	}
	if final.Status != ReportStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.FilePath == "" || final.FileSize != 2048 {
		t.Errorf("file metadata missing: %+v", final)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Error("expected started_at and completed_at set")
	}

	if err := store.DeleteReport(ctx, "rep-001"); err != nil {
		t.Fatalf("DeleteReport: %v", err)
	}
	gone, err := store.GetReport(ctx, "rep-001")
	if err != nil {
		t.Fatalf("GetReport after delete: %v", err)
	}
	if gone != nil {
		t.Error("expected nil for deleted report")
	}
}

func TestFailReportRecordsError(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	r := &Report{ID: "rep-f", Name: "Broken", Type: "order_detail", Format: "pdf"}
	if err := store.CreateReport(ctx, r); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if err := store.FailReport(ctx, "rep-f", "collector query failed", time.Now().UTC()); err != nil {
		t.Fatalf("FailReport: %v", err)
	}

	got, err := store.GetReport(ctx, "rep-f")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Status != ReportStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "collector query failed" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
}

func TestListReportsOlderThan(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-5 * 24 * time.Hour)

	seed := []struct {
		id          string
		status      string
		completedAt *time.Time
	}{
		{"rep-old", ReportStatusCompleted, &old},
		{"rep-recent", ReportStatusCompleted, &recent},
		{"rep-failed-old", ReportStatusFailed, &old},
	}
	for _, s := range seed {
		r := &Report{ID: s.id, Name: s.id, Type: "sales_summary", Format: "csv"}
		if err := store.CreateReport(ctx, r); err != nil {
			t.Fatalf("seed %s: %v", s.id, err)
		}
		switch s.status {
		case ReportStatusCompleted:
			r.CompletedAt = s.completedAt
			if err := store.CompleteReport(ctx, r); err != nil {
				t.Fatalf("complete %s: %v", s.id, err)
			}
		case ReportStatusFailed:
			if err := store.FailReport(ctx, s.id, "boom", *s.completedAt); err != nil {
				t.Fatalf("fail %s: %v", s.id, err)
			}
		}
	}

	cutoff := now.Add(-30 * 24 * time.Hour)
	expired, err := store.ListReportsOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListReportsOlderThan: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected 1 retention candidate, got %d", len(expired))
	}
	if expired[0].ID != "rep-old" {
		t.Errorf("expected rep-old, got %s", expired[0].ID)
	}
}

func TestGetReportSummary(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	completedAt := time.Now().UTC()
	r1 := &Report{ID: "s-1", Name: "one", Type: "sales_summary", Format: "csv"}
	r2 := &Report{ID: "s-2", Name: "two", Type: "order_detail", Format: "pdf"}
	for _, r := range []*Report{r1, r2} {
		if err := store.CreateReport(ctx, r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	r1.FileSize = 1000
	r1.CompletedAt = &completedAt
	if err := store.CompleteReport(ctx, r1); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.CreateSchedule(ctx, &ReportSchedule{Name: "daily", ReportType: "sales_summary", Format: "csv", CronExpr: "0 9 * * *", Enabled: true}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sum, err := store.GetReportSummary(ctx)
	if err != nil {
		t.Fatalf("GetReportSummary: %v", err)
	}
	if sum.TotalReports != 2 || sum.CompletedCount != 1 || sum.PendingCount != 1 {
		t.Errorf("counts wrong: %+v", sum)
	}
	if sum.TotalFileSize != 1000 {
		t.Errorf("total file size = %d, want 1000", sum.TotalFileSize)
	}
	if sum.ScheduleCount != 1 || sum.EnabledSchedules != 1 {
		t.Errorf("schedule counts wrong: %+v", sum)
	}
}

func TestScheduleDueSemantics(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	neverRun := &ReportSchedule{Name: "never-run", ReportType: "sales_summary", Format: "csv", CronExpr: "0 9 * * *", Enabled: true}
	due := &ReportSchedule{Name: "due", ReportType: "order_detail", Format: "pdf", CronExpr: "0 9 * * *", Enabled: true, NextRunAt: &past}
	notDue := &ReportSchedule{Name: "not-due", ReportType: "audit_report", Format: "csv", CronExpr: "0 9 * * *", Enabled: true, NextRunAt: &future}
	disabled := &ReportSchedule{Name: "disabled", ReportType: "sales_summary", Format: "csv", CronExpr: "0 9 * * *", Enabled: false, NextRunAt: &past}

	for _, sch := range []*ReportSchedule{neverRun, due, notDue, disabled} {
		if err := store.CreateSchedule(ctx, sch); err != nil {
			t.Fatalf("CreateSchedule %s: %v", sch.Name, err)
		}
		if sch.ID == 0 {
			t.Fatalf("expected backfilled ID for %s", sch.Name)
		}
	}

	dueList, err := store.GetDueSchedules(ctx, now)
	if err != nil {
		t.Fatalf("GetDueSchedules: %v", err)
	}
	names := map[string]bool{}
	for _, sch := range dueList {
		names[sch.Name] = true
	}
	if len(dueList) != 2 || !names["never-run"] || !names["due"] {
		t.Errorf("due set wrong: %v", names)
	}

	// Advancing after a run removes the schedule from the due set.
	next := now.Add(24 * time.Hour)
	if err := store.UpdateScheduleAfterRun(ctx, due.ID, now, ExecutionStatusCompleted, next); err != nil {
		t.Fatalf("UpdateScheduleAfterRun: %v", err)
	}
	dueList, err = store.GetDueSchedules(ctx, now)
	if err != nil {
		t.Fatalf("GetDueSchedules after run: %v", err)
	}
	if len(dueList) != 1 || dueList[0].Name != "never-run" {
		t.Errorf("expected only never-run due, got %d", len(dueList))
	}

	updated, err := store.GetSchedule(ctx, due.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if updated.LastRunStatus != ExecutionStatusCompleted {
		t.Errorf("last_run_status = %s", updated.LastRunStatus)
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(now) {
		t.Errorf("next_run_at not advanced: %v", updated.NextRunAt)
	}
}

func TestExecutionHistory(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	sch := &ReportSchedule{Name: "hourly", ReportType: "sales_summary", Format: "csv", CronExpr: "0 * * * *", Enabled: true}
	if err := store.CreateSchedule(ctx, sch); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	e := &ReportExecution{ScheduleID: sch.ID}
	if err := store.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if e.ID == 0 || e.Status != ExecutionStatusRunning {
		t.Fatalf("execution not initialized: %+v", e)
	}

	if err := store.CompleteExecution(ctx, e.ID, "rep-x", ExecutionStatusCompleted, "", time.Now().UTC()); err != nil {
		t.Fatalf("CompleteExecution: %v", err)
	}

	history, err := store.ListExecutions(ctx, sch.ID, 10)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(history))
	}
	if history[0].ReportID != "rep-x" || history[0].Status != ExecutionStatusCompleted {
		t.Errorf("execution outcome wrong: %+v", history[0])
	}
	if history[0].CompletedAt == nil {
		t.Error("expected completed_at set")
	}

	deleted, err := store.CleanupOldExecutions(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("CleanupOldExecutions: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
