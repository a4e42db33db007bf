package reports

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rakuda/server/storage"
)

func newTestService(t *testing.T, store *mockStore) *Service {
	t.Helper()
	return NewService(store, t.TempDir(), testLogger())
}

// recordingNotifier captures lifecycle statuses in order.
type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
}

func (n *recordingNotifier) NotifyReportStatus(r *storage.Report) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, r.Status)
}

func TestGenerateReportHappyPath(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.summaries = []*storage.SalesSummary{
		{Period: "2026-08-01", Marketplace: "amazon", OrderCount: 3, Units: 4, Revenue: 500, Cost: 200, Profit: 300},
	}
	svc := newTestService(t, store)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	result := svc.GenerateReport(context.Background(), GenerateOptions{
		Name:   "Daily sales",
		Type:   TypeSalesSummary,
		Format: FormatCSV,
	}, "ops@example.com")

	if result.Status != storage.ReportStatusCompleted {
		t.Fatalf("status = %q (%s), want completed", result.Status, result.Error)
	}
	if result.ReportID == "" {
		t.Fatal("result missing report id")
	}
	if result.MimeType != "text/csv" {
		t.Errorf("mime type = %q", result.MimeType)
	}
	if !strings.HasPrefix(result.FileName, "sales_summary_") || !strings.HasSuffix(result.FileName, ".csv") {
		t.Errorf("unexpected file name: %q", result.FileName)
	}

	// Completed implies the file exists with the recorded size.
	info, err := os.Stat(result.FilePath)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	if info.Size() != result.FileSize || result.FileSize == 0 {
		t.Errorf("file size mismatch: stat %d, result %d", info.Size(), result.FileSize)
	}

	record, _ := store.GetReport(context.Background(), result.ReportID)
	if record == nil {
		t.Fatal("report record missing")
	}
	if record.Status != storage.ReportStatusCompleted {
		t.Errorf("record status = %q", record.Status)
	}
	if record.GeneratedBy != "ops@example.com" {
		t.Errorf("generated_by = %q", record.GeneratedBy)
	}
	if record.ExpiresAt == nil || record.CompletedAt == nil {
		t.Fatal("record missing completion timestamps")
	}
	wantExpiry := record.CompletedAt.Add(DefaultRetentionDays * 24 * time.Hour)
	if !record.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires_at = %v, want %v", record.ExpiresAt, wantExpiry)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	want := []string{
		storage.ReportStatusPending,
		storage.ReportStatusGenerating,
		storage.ReportStatusCompleted,
	}
	if len(notifier.statuses) != len(want) {
		t.Fatalf("notified statuses = %v, want %v", notifier.statuses, want)
	}
	for i, s := range want {
		if notifier.statuses[i] != s {
			t.Errorf("notification %d = %q, want %q", i, notifier.statuses[i], s)
		}
	}
}

func TestGenerateReportValidationFailsWithoutRecord(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	cases := []GenerateOptions{
		{Type: "weather_forecast", Format: FormatCSV},
		{Type: TypeSalesSummary, Format: "docx"},
		{Type: TypeSalesSummary, Format: FormatCSV, Params: Params{StartDate: "not-a-date"}},
	}
	for _, opts := range cases {
		result := svc.GenerateReport(ctx, opts, "tester")
		if result.Status != storage.ReportStatusFailed {
			t.Errorf("opts %+v: status = %q, want failed", opts, result.Status)
		}
		if result.Error == "" {
			t.Errorf("opts %+v: missing error message", opts)
		}
		if result.ReportID != "" {
			t.Errorf("opts %+v: validation failure should not create a record", opts)
		}
	}
	if len(store.reports) != 0 {
		t.Errorf("expected no records, got %d", len(store.reports))
	}
}

func TestGenerateReportCollectFailureIsRecorded(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.queryErr = errors.New("database locked")
	svc := newTestService(t, store)

	result := svc.GenerateReport(context.Background(), GenerateOptions{
		Type:   TypeOrderDetail,
		Format: FormatHTML,
	}, "tester")

	if result.Status != storage.ReportStatusFailed {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if !strings.Contains(result.Error, "database locked") {
		t.Errorf("error %q should carry the cause", result.Error)
	}

	msg, ok := store.failedReports[result.ReportID]
	if !ok {
		t.Fatal("failure was not persisted on the report row")
	}
	if msg != result.Error {
		t.Errorf("persisted error %q != result error %q", msg, result.Error)
	}

	record, _ := store.GetReport(context.Background(), result.ReportID)
	if record.Status != storage.ReportStatusFailed {
		t.Errorf("record status = %q, want failed", record.Status)
	}
}

func TestGenerateReportNeverPanicsOnPreset(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store)

	result := svc.GenerateReport(context.Background(), GenerateOptions{
		Type:   TypeCustom,
		Format: FormatCSV,
		Params: Params{Preset: "nonexistent"},
	}, "tester")

	if result.Status != storage.ReportStatusFailed {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if !strings.Contains(result.Error, "preset not found") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestGetReportDownloadInfo(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	if info := svc.GetReportDownloadInfo(ctx, "missing-id"); info.Available || info.Reason != "report not found" {
		t.Errorf("missing report: %+v", info)
	}

	pending := &storage.Report{ID: "pending-1", Status: storage.ReportStatusPending}
	store.CreateReport(ctx, pending)
	if info := svc.GetReportDownloadInfo(ctx, "pending-1"); info.Available || !strings.Contains(info.Reason, "pending") {
		t.Errorf("pending report: %+v", info)
	}

	// Completed report whose file has been removed from disk.
	gone := &storage.Report{
		ID:       "gone-1",
		Status:   storage.ReportStatusCompleted,
		FileName: "gone.csv",
		FilePath: filepath.Join(t.TempDir(), "gone.csv"),
	}
	store.CreateReport(ctx, gone)
	if info := svc.GetReportDownloadInfo(ctx, "gone-1"); info.Available || info.Reason != "report file no longer exists" {
		t.Errorf("vanished file: %+v", info)
	}

	// Real completed report resolves with current file metadata.
	store.summaries = []*storage.SalesSummary{{Period: "2026-08-01", Marketplace: "amazon", Revenue: 10}}
	result := svc.GenerateReport(ctx, GenerateOptions{Type: TypeSalesSummary, Format: FormatCSV}, "tester")
	if result.Status != storage.ReportStatusCompleted {
		t.Fatalf("setup generation failed: %s", result.Error)
	}
	info := svc.GetReportDownloadInfo(ctx, result.ReportID)
	if !info.Available {
		t.Fatalf("expected available download, got reason %q", info.Reason)
	}
	if info.FilePath != result.FilePath || info.FileSize != result.FileSize {
		t.Errorf("download info mismatch: %+v vs %+v", info, result)
	}
	record, _ := store.GetReport(ctx, result.ReportID)
	if record.ExpiresAt == nil {
		t.Fatal("completed report missing expiry")
	}
	if info.ExpiresAt == nil || !info.ExpiresAt.Equal(*record.ExpiresAt) {
		t.Errorf("download expiry = %v, want %v", info.ExpiresAt, record.ExpiresAt)
	}
}

func TestDeleteReportRemovesFile(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	result := svc.GenerateReport(ctx, GenerateOptions{Type: TypeInventoryStatus, Format: FormatCSV}, "tester")
	if result.Status != storage.ReportStatusCompleted {
		t.Fatalf("setup generation failed: %s", result.Error)
	}

	if err := svc.DeleteReport(ctx, result.ReportID); err != nil {
		t.Fatalf("DeleteReport failed: %v", err)
	}
	if _, err := os.Stat(result.FilePath); !os.IsNotExist(err) {
		t.Error("report file should be gone")
	}
	if record, _ := store.GetReport(ctx, result.ReportID); record != nil {
		t.Error("report record should be gone")
	}

	if err := svc.DeleteReport(ctx, "no-such-id"); err == nil {
		t.Error("expected error for unknown report")
	}
}

func TestCleanupOldReports(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	result := svc.GenerateReport(ctx, GenerateOptions{Type: TypeInventoryStatus, Format: FormatCSV}, "tester")
	if result.Status != storage.ReportStatusCompleted {
		t.Fatalf("setup generation failed: %s", result.Error)
	}

	// Recent report survives the sweep.
	first, err := svc.CleanupOldReports(ctx)
	if err != nil {
		t.Fatalf("CleanupOldReports failed: %v", err)
	}
	if first.Examined != 0 || first.Deleted != 0 {
		t.Errorf("fresh report swept: %+v", first)
	}

	// Age the record past the retention window.
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	store.mu.Lock()
	store.reports[result.ReportID].CompletedAt = &old
	store.mu.Unlock()

	swept, err := svc.CleanupOldReports(ctx)
	if err != nil {
		t.Fatalf("CleanupOldReports failed: %v", err)
	}
	if swept.Examined != 1 || swept.Deleted != 1 || swept.FilesRemoved != 1 {
		t.Errorf("sweep result = %+v, want 1/1/1", swept)
	}
	if _, err := os.Stat(result.FilePath); !os.IsNotExist(err) {
		t.Error("expired report file should be gone")
	}

	// Missing file never blocks record deletion.
	result2 := svc.GenerateReport(ctx, GenerateOptions{Type: TypeInventoryStatus, Format: FormatCSV}, "tester")
	if result2.Status != storage.ReportStatusCompleted {
		t.Fatalf("setup generation failed: %s", result2.Error)
	}
	os.Remove(result2.FilePath)
	store.mu.Lock()
	store.reports[result2.ReportID].CompletedAt = &old
	store.mu.Unlock()

	swept, err = svc.CleanupOldReports(ctx)
	if err != nil {
		t.Fatalf("CleanupOldReports failed: %v", err)
	}
	if swept.Deleted != 1 || swept.FilesRemoved != 0 {
		t.Errorf("sweep result = %+v, want deleted 1 with no files removed", swept)
	}
}

func TestSetRetentionDays(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(t, store)
	svc.SetRetentionDays(5)
	ctx := context.Background()

	result := svc.GenerateReport(ctx, GenerateOptions{Type: TypeInventoryStatus, Format: FormatCSV}, "tester")
	if result.Status != storage.ReportStatusCompleted {
		t.Fatalf("setup generation failed: %s", result.Error)
	}

	old := time.Now().UTC().Add(-6 * 24 * time.Hour)
	store.mu.Lock()
	store.reports[result.ReportID].CompletedAt = &old
	store.mu.Unlock()

	swept, err := svc.CleanupOldReports(ctx)
	if err != nil {
		t.Fatalf("CleanupOldReports failed: %v", err)
	}
	if swept.Deleted != 1 {
		t.Errorf("6 day old report should expire under a 5 day window: %+v", swept)
	}

	// Out of range values keep the current window.
	svc.SetRetentionDays(0)
	if svc.retentionDays != 5 {
		t.Errorf("retentionDays = %d, want 5", svc.retentionDays)
	}
}
