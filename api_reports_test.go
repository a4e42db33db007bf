package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"rakuda/server/logger"
	"rakuda/server/reports"
	"rakuda/server/storage"
)

// setupTestServer wires the package globals to a throwaway SQLite
// store. Handlers read globals, so these tests do not run in parallel.
func setupTestServer(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	serverLogger = logger.New(logger.ERROR, "", 50)
	serverLogger.SetConsoleOutput(false)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	serverStore = store
	reportService = reports.NewService(store, t.TempDir(), serverLogger)
	wsHub = NewWSHub()
	reportService.SetNotifier(wsHub)
	return store
}

func seedSales(t *testing.T, store *storage.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	rows := []*storage.SalesSummary{
		{Period: "2026-08-01", Marketplace: "amazon", OrderCount: 4, Units: 6, Revenue: 800, Cost: 300, Profit: 500},
		{Period: "2026-08-02", Marketplace: "rakuten", OrderCount: 2, Units: 2, Revenue: 300, Cost: 150, Profit: 150},
	}
	for _, r := range rows {
		if err := store.UpsertSalesSummary(ctx, r); err != nil {
			t.Fatalf("seed sales summary: %v", err)
		}
	}
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestReportAPILifecycle(t *testing.T) {
	store := setupTestServer(t)
	seedSales(t, store)

	// Generate
	rec := doJSON(t, handleReports, http.MethodPost, "/api/v1/reports", map[string]any{
		"name":   "August sales",
		"type":   "sales_summary",
		"format": "csv",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var result reports.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != storage.ReportStatusCompleted {
		t.Fatalf("result = %+v", result)
	}

	// Fetch metadata
	rec = doJSON(t, handleReport, http.MethodGet, "/api/v1/reports/"+result.ReportID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var report storage.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != storage.ReportStatusCompleted || report.FileName == "" {
		t.Errorf("report = %+v", report)
	}

	// List includes it
	rec = doJSON(t, handleReports, http.MethodGet, "/api/v1/reports", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listResp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listResp)
	if listResp.Count != 1 {
		t.Errorf("count = %d, want 1", listResp.Count)
	}

	// Download serves the file with attachment headers
	rec = doJSON(t, handleReport, http.MethodGet, "/api/v1/reports/"+result.ReportID+"/download", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Error("missing content disposition")
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\xEF\xBB\xBF")) {
		t.Error("downloaded CSV missing BOM")
	}

	// Delete, then both metadata and download 404
	rec = doJSON(t, handleReport, http.MethodDelete, "/api/v1/reports/"+result.ReportID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, handleReport, http.MethodGet, "/api/v1/reports/"+result.ReportID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
	rec = doJSON(t, handleReport, http.MethodGet, "/api/v1/reports/"+result.ReportID+"/download", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("download after delete = %d", rec.Code)
	}
}

func TestReportAPIValidation(t *testing.T) {
	setupTestServer(t)

	rec := doJSON(t, handleReports, http.MethodPost, "/api/v1/reports", map[string]any{
		"type":   "fortune_telling",
		"format": "csv",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad type status = %d", rec.Code)
	}
	var result reports.Result
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Status != storage.ReportStatusFailed || result.Error == "" {
		t.Errorf("result = %+v", result)
	}

	rec = doJSON(t, handleReports, http.MethodPut, "/api/v1/reports", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d", rec.Code)
	}
}

func TestReportDownloadNotReady(t *testing.T) {
	store := setupTestServer(t)

	// A pending report is not downloadable yet.
	pending := &storage.Report{
		ID: "11111111-2222-3333-4444-555555555555", Name: "slow", Type: "sales_summary",
		Format: "pdf", Status: storage.ReportStatusPending, CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateReport(context.Background(), pending); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, handleReport, http.MethodGet, "/api/v1/reports/"+pending.ID+"/download", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var info reports.DownloadInfo
	json.Unmarshal(rec.Body.Bytes(), &info)
	if info.Available || info.Reason == "" {
		t.Errorf("info = %+v", info)
	}
}

func TestReportTypesEndpoint(t *testing.T) {
	setupTestServer(t)

	rec := doJSON(t, handleReportTypes, http.MethodGet, "/api/v1/reports/types", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Types   []string `json:"types"`
		Formats []string `json:"formats"`
		Presets []string `json:"presets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Types) != 9 || len(resp.Formats) != 4 || len(resp.Presets) != 4 {
		t.Errorf("types=%d formats=%d presets=%d", len(resp.Types), len(resp.Formats), len(resp.Presets))
	}
}

func TestScheduleAPI(t *testing.T) {
	store := setupTestServer(t)
	seedSales(t, store)

	// Invalid cron is rejected
	rec := doJSON(t, handleSchedules, http.MethodPost, "/api/v1/report-schedules", map[string]any{
		"name": "bad", "report_type": "sales_summary", "format": "csv", "cron_expr": "whenever",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad cron status = %d", rec.Code)
	}

	// Create computes the first next_run_at
	rec = doJSON(t, handleSchedules, http.MethodPost, "/api/v1/report-schedules", map[string]any{
		"name": "Nightly sales", "report_type": "sales_summary", "format": "csv",
		"cron_expr": "0 2 * * *", "timezone": "Asia/Tokyo", "enabled": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var sch storage.ReportSchedule
	if err := json.Unmarshal(rec.Body.Bytes(), &sch); err != nil {
		t.Fatal(err)
	}
	if sch.ID == 0 {
		t.Fatal("schedule id not assigned")
	}
	if sch.NextRunAt == nil || !sch.NextRunAt.After(time.Now().UTC()) {
		t.Errorf("next_run_at = %v", sch.NextRunAt)
	}

	path := fmt.Sprintf("/api/v1/report-schedules/%d", sch.ID)

	rec = doJSON(t, handleSchedule, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Update
	rec = doJSON(t, handleSchedule, http.MethodPut, path, map[string]any{
		"name": "Nightly sales v2", "report_type": "sales_summary", "format": "html",
		"cron_expr": "30 2 * * *", "enabled": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body: %s", rec.Code, rec.Body.String())
	}
	updated, err := store.GetSchedule(context.Background(), sch.ID)
	if err != nil || updated == nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if updated.Name != "Nightly sales v2" || updated.Format != "html" || updated.Enabled {
		t.Errorf("updated = %+v", updated)
	}

	// Manual run generates a report without touching the cadence
	rec = doJSON(t, handleSchedule, http.MethodPost, path+"/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var result reports.Result
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Status != storage.ReportStatusCompleted {
		t.Errorf("manual run result = %+v", result)
	}

	rec = doJSON(t, handleSchedule, http.MethodGet, path+"/executions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("executions status = %d", rec.Code)
	}

	// Delete
	rec = doJSON(t, handleSchedule, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, handleSchedule, http.MethodGet, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestReportSummaryEndpoint(t *testing.T) {
	store := setupTestServer(t)
	seedSales(t, store)

	result := reportService.GenerateReport(context.Background(), reports.GenerateOptions{
		Type: "sales_summary", Format: "csv",
	}, "tester")
	if result.Status != storage.ReportStatusCompleted {
		t.Fatalf("setup generation failed: %s", result.Error)
	}

	rec := doJSON(t, handleReportSummary, http.MethodGet, "/api/v1/reports/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var summary storage.ReportSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.TotalReports != 1 || summary.CompletedCount != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.TotalFileSize == 0 {
		t.Error("total file size should be non-zero")
	}
}
