package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rakuda/server/reports"
	"rakuda/server/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleReports handles GET /api/v1/reports and POST /api/v1/reports
func handleReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		limit := 100
		if l := r.URL.Query().Get("limit"); l != "" {
			if lv, err := strconv.Atoi(l); err == nil {
				limit = lv
			}
		}

		list, err := serverStore.ListReports(ctx, limit)
		if err != nil {
			serverLogger.Error("Failed to list reports", "error", err)
			http.Error(w, fmt.Sprintf("list reports: %v", err), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"reports": list,
			"count":   len(list),
		})

	case http.MethodPost:
		var opts reports.GenerateOptions
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}

		generatedBy := r.Header.Get("X-Requested-By")
		if generatedBy == "" {
			generatedBy = "api"
		}

		result := reportService.GenerateReport(ctx, opts, generatedBy)
		if result.Status == storage.ReportStatusFailed && result.ReportID == "" {
			// Rejected before a record was created
			writeJSON(w, http.StatusBadRequest, result)
			return
		}
		writeJSON(w, http.StatusCreated, result)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleReport handles GET/DELETE /api/v1/reports/{id} and the
// /download sub-path.
func handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	if idx := strings.Index(id, "/"); idx >= 0 {
		subPath := id[idx:]
		id = id[:idx]

		if subPath == "/download" {
			handleReportDownload(w, r, id)
			return
		}
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if id == "" {
		http.Error(w, "Invalid report ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		report, err := serverStore.GetReport(ctx, id)
		if err != nil {
			serverLogger.Error("Failed to get report", "report_id", id, "error", err)
			http.Error(w, fmt.Sprintf("get report: %v", err), http.StatusInternalServerError)
			return
		}
		if report == nil {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, report)

	case http.MethodDelete:
		if err := reportService.DeleteReport(ctx, id); err != nil {
			if strings.Contains(err.Error(), "not found") {
				http.Error(w, "Report not found", http.StatusNotFound)
				return
			}
			serverLogger.Error("Failed to delete report", "report_id", id, "error", err)
			http.Error(w, fmt.Sprintf("delete report: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleReportDownload handles GET /api/v1/reports/{id}/download
func handleReportDownload(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := reportService.GetReportDownloadInfo(r.Context(), id)
	if !info.Available {
		status := http.StatusNotFound
		if strings.HasPrefix(info.Reason, "report is") {
			status = http.StatusConflict
		}
		writeJSON(w, status, info)
		return
	}

	w.Header().Set("Content-Type", info.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.FileName))
	http.ServeFile(w, r, info.FilePath)
}

// handleReportTypes handles GET /api/v1/reports/types
func handleReportTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"types":   reports.ValidTypes(),
		"formats": []string{reports.FormatPDF, reports.FormatExcel, reports.FormatCSV, reports.FormatHTML},
		"presets": reports.PresetNames(),
	})
}

// handleReportSummary handles GET /api/v1/reports/summary
func handleReportSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := serverStore.GetReportSummary(r.Context())
	if err != nil {
		serverLogger.Error("Failed to get report summary", "error", err)
		http.Error(w, fmt.Sprintf("get summary: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// validateSchedule checks the fields the store cannot.
func validateSchedule(sch *storage.ReportSchedule) error {
	if sch.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if !reports.IsValidType(sch.ReportType) {
		return fmt.Errorf("unsupported report type: %s", sch.ReportType)
	}
	if !reports.IsValidFormat(sch.Format) {
		return fmt.Errorf("unsupported report format: %s", sch.Format)
	}
	if err := reports.ValidateCronExpr(sch.CronExpr); err != nil {
		return err
	}
	if sch.Timezone != "" {
		if _, err := time.LoadLocation(sch.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q", sch.Timezone)
		}
	}
	return nil
}

// handleSchedules handles GET/POST /api/v1/report-schedules
func handleSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		schedules, err := serverStore.ListSchedules(ctx)
		if err != nil {
			serverLogger.Error("Failed to list schedules", "error", err)
			http.Error(w, fmt.Sprintf("list schedules: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"schedules": schedules,
			"count":     len(schedules),
		})

	case http.MethodPost:
		var schedule storage.ReportSchedule
		if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}
		if err := validateSchedule(&schedule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if schedule.NextRunAt == nil {
			if next, err := reports.NextRunTime(schedule.CronExpr, schedule.Timezone, time.Now().UTC()); err == nil {
				schedule.NextRunAt = &next
			}
		}

		if err := serverStore.CreateSchedule(ctx, &schedule); err != nil {
			serverLogger.Error("Failed to create schedule", "name", schedule.Name, "error", err)
			http.Error(w, fmt.Sprintf("create schedule: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, schedule)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSchedule handles GET/PUT/DELETE /api/v1/report-schedules/{id}
// plus the /executions and /run sub-paths.
func handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/report-schedules/")
	if idx := strings.Index(idStr, "/"); idx >= 0 {
		subPath := idStr[idx:]
		idStr = idStr[:idx]

		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
			return
		}

		switch subPath {
		case "/executions":
			handleScheduleExecutions(w, r, id)
		case "/run":
			handleScheduleRunNow(w, r, id)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		schedule, err := serverStore.GetSchedule(ctx, id)
		if err != nil {
			serverLogger.Error("Failed to get schedule", "schedule_id", id, "error", err)
			http.Error(w, fmt.Sprintf("get schedule: %v", err), http.StatusInternalServerError)
			return
		}
		if schedule == nil {
			http.Error(w, "Schedule not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, schedule)

	case http.MethodPut:
		var schedule storage.ReportSchedule
		if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}
		schedule.ID = id
		if err := validateSchedule(&schedule); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// The cron expression or timezone may have changed
		if next, err := reports.NextRunTime(schedule.CronExpr, schedule.Timezone, time.Now().UTC()); err == nil {
			schedule.NextRunAt = &next
		}

		if err := serverStore.UpdateSchedule(ctx, &schedule); err != nil {
			serverLogger.Error("Failed to update schedule", "schedule_id", id, "error", err)
			http.Error(w, fmt.Sprintf("update schedule: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, schedule)

	case http.MethodDelete:
		if err := serverStore.DeleteSchedule(ctx, id); err != nil {
			serverLogger.Error("Failed to delete schedule", "schedule_id", id, "error", err)
			http.Error(w, fmt.Sprintf("delete schedule: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleScheduleExecutions handles GET /api/v1/report-schedules/{id}/executions
func handleScheduleExecutions(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if lv, err := strconv.Atoi(l); err == nil {
			limit = lv
		}
	}

	executions, err := serverStore.ListExecutions(r.Context(), id, limit)
	if err != nil {
		serverLogger.Error("Failed to list executions", "schedule_id", id, "error", err)
		http.Error(w, fmt.Sprintf("list executions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"executions": executions,
		"count":      len(executions),
	})
}

// handleScheduleRunNow handles POST /api/v1/report-schedules/{id}/run,
// generating the schedule's report immediately without touching its
// cron cadence.
func handleScheduleRunNow(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	schedule, err := serverStore.GetSchedule(ctx, id)
	if err != nil {
		serverLogger.Error("Failed to get schedule for manual run", "schedule_id", id, "error", err)
		http.Error(w, fmt.Sprintf("get schedule: %v", err), http.StatusInternalServerError)
		return
	}
	if schedule == nil {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}

	result := reportService.GenerateReport(ctx, reports.GenerateOptions{
		Name:   schedule.Name,
		Type:   schedule.ReportType,
		Format: schedule.Format,
		Params: reports.ParamsFromMap(schedule.Parameters),
	}, "manual")
	writeJSON(w, http.StatusOK, result)
}

// handleHealth handles GET /health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVersion handles GET /api/version
func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}
