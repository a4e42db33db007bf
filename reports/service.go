package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"rakuda/server/logger"
	"rakuda/server/storage"
)

// DefaultRetentionDays is how long completed reports are kept before
// the retention sweep removes them.
const DefaultRetentionDays = 30

// ServiceStore is the persistence surface the orchestrator needs: the
// collector queries plus the report row lifecycle.
type ServiceStore interface {
	CollectorStore

	CreateReport(ctx context.Context, r *storage.Report) error
	GetReport(ctx context.Context, id string) (*storage.Report, error)
	MarkReportGenerating(ctx context.Context, id string, startedAt time.Time) error
	CompleteReport(ctx context.Context, r *storage.Report) error
	FailReport(ctx context.Context, id, errMsg string, completedAt time.Time) error
	DeleteReport(ctx context.Context, id string) error
	ListReportsOlderThan(ctx context.Context, cutoff time.Time) ([]*storage.Report, error)
}

// Notifier receives report lifecycle transitions. The websocket hub
// implements this to push status updates to dashboards.
type Notifier interface {
	NotifyReportStatus(r *storage.Report)
}

// Service is the report orchestrator: it owns the pending ->
// generating -> completed|failed lifecycle, the output directory and
// the retention policy.
type Service struct {
	store         ServiceStore
	collector     *Collector
	logger        *logger.Logger
	outputDir     string
	retentionDays int
	notifier      Notifier
}

// NewService creates a report service writing artifacts under outputDir.
func NewService(store ServiceStore, outputDir string, log *logger.Logger) *Service {
	return &Service{
		store:         store,
		collector:     NewCollector(store),
		logger:        log,
		outputDir:     outputDir,
		retentionDays: DefaultRetentionDays,
	}
}

// SetNotifier attaches a lifecycle notifier. Optional.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetRetentionDays overrides the retention window. Values below 1 keep
// the default.
func (s *Service) SetRetentionDays(days int) {
	if days >= 1 {
		s.retentionDays = days
	}
}

func (s *Service) notify(r *storage.Report) {
	if s.notifier != nil {
		s.notifier.NotifyReportStatus(r)
	}
}

// GenerateOptions describes one report request.
type GenerateOptions struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Format      string `json:"format"`
	Params      Params `json:"params"`
	Orientation string `json:"orientation,omitempty"`
	PaperSize   string `json:"paper_size,omitempty"`
}

// GenerateReport runs the full pipeline for one report. It always
// returns a Result value: validation and generation failures land in
// Result.Error with Status "failed", never in a panic or an error
// return. Failures after the record exists are also persisted on the
// report row.
func (s *Service) GenerateReport(ctx context.Context, opts GenerateOptions, generatedBy string) Result {
	if !IsValidType(opts.Type) {
		return Result{Status: storage.ReportStatusFailed, Error: fmt.Sprintf("unsupported report type: %s", opts.Type)}
	}
	if !IsValidFormat(opts.Format) {
		return Result{Status: storage.ReportStatusFailed, Error: fmt.Sprintf("unsupported report format: %s", opts.Format)}
	}
	if err := opts.Params.Validate(); err != nil {
		return Result{Status: storage.ReportStatusFailed, Error: err.Error()}
	}

	name := opts.Name
	if name == "" {
		name = formatLabel(opts.Type)
	}

	report := &storage.Report{
		ID:          uuid.NewString(),
		Name:        name,
		Description: opts.Description,
		Type:        opts.Type,
		Format:      opts.Format,
		Parameters:  opts.Params.Map(),
		TimeRange:   opts.Params.RangeLabel(),
		Orientation: opts.Orientation,
		PaperSize:   opts.PaperSize,
		Status:      storage.ReportStatusPending,
		GeneratedBy: generatedBy,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateReport(ctx, report); err != nil {
		s.logger.Error("Failed to create report record", "type", opts.Type, "error", err)
		return Result{Status: storage.ReportStatusFailed, Error: fmt.Sprintf("create report record: %v", err)}
	}
	s.notify(report)

	started := time.Now().UTC()
	if err := s.store.MarkReportGenerating(ctx, report.ID, started); err != nil {
		return s.fail(ctx, report, fmt.Sprintf("mark generating: %v", err))
	}
	report.Status = storage.ReportStatusGenerating
	report.StartedAt = &started
	s.notify(report)

	data, err := s.collector.Collect(ctx, opts.Type, opts.Params)
	if err != nil {
		return s.fail(ctx, report, fmt.Sprintf("collect data: %v", err))
	}
	data.Description = opts.Description
	data.Orientation = opts.Orientation
	data.PaperSize = opts.PaperSize

	renderer, err := RendererFor(opts.Format)
	if err != nil {
		return s.fail(ctx, report, err.Error())
	}
	encoded, err := renderer.Render(data)
	if err != nil {
		return s.fail(ctx, report, fmt.Sprintf("render %s: %v", opts.Format, err))
	}

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return s.fail(ctx, report, fmt.Sprintf("create output directory: %v", err))
	}
	fileName := fmt.Sprintf("%s_%s_%s.%s",
		opts.Type, started.Format("20060102_150405"), report.ID[:8], renderer.Extension())
	filePath := filepath.Join(s.outputDir, fileName)
	if err := os.WriteFile(filePath, encoded, 0644); err != nil {
		return s.fail(ctx, report, fmt.Sprintf("write report file: %v", err))
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return s.fail(ctx, report, fmt.Sprintf("stat report file: %v", err))
	}

	completed := time.Now().UTC()
	expires := completed.Add(time.Duration(s.retentionDays) * 24 * time.Hour)
	report.Status = storage.ReportStatusCompleted
	report.FileName = fileName
	report.FilePath = filePath
	report.FileSize = info.Size()
	report.MimeType = renderer.MimeType()
	report.CompletedAt = &completed
	report.ExpiresAt = &expires

	if err := s.store.CompleteReport(ctx, report); err != nil {
		os.Remove(filePath)
		return s.fail(ctx, report, fmt.Sprintf("persist completion: %v", err))
	}
	s.notify(report)

	s.logger.Info("Report generated",
		"report_id", report.ID,
		"type", report.Type,
		"format", report.Format,
		"rows", len(data.Rows),
		"size", report.FileSize)

	return Result{
		ReportID: report.ID,
		Status:   storage.ReportStatusCompleted,
		FileName: fileName,
		FilePath: filePath,
		FileSize: report.FileSize,
		MimeType: report.MimeType,
	}
}

// fail records a terminal failure on the report row and returns the
// matching Result. Persistence errors here are logged, not propagated,
// so callers still get the original failure.
func (s *Service) fail(ctx context.Context, report *storage.Report, msg string) Result {
	completed := time.Now().UTC()
	if err := s.store.FailReport(ctx, report.ID, msg, completed); err != nil {
		s.logger.Error("Failed to persist report failure", "report_id", report.ID, "error", err)
	}
	report.Status = storage.ReportStatusFailed
	report.ErrorMessage = msg
	report.CompletedAt = &completed
	s.notify(report)

	s.logger.Warn("Report generation failed", "report_id", report.ID, "type", report.Type, "error", msg)

	return Result{
		ReportID: report.ID,
		Status:   storage.ReportStatusFailed,
		Error:    msg,
	}
}

// GetReportDownloadInfo resolves a download request. A missing report,
// a non-completed report or a vanished file all yield Available=false
// with a reason rather than an error.
func (s *Service) GetReportDownloadInfo(ctx context.Context, id string) DownloadInfo {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		s.logger.Error("Failed to look up report for download", "report_id", id, "error", err)
		return DownloadInfo{Reason: "report lookup failed"}
	}
	if report == nil {
		return DownloadInfo{Reason: "report not found"}
	}
	if report.Status != storage.ReportStatusCompleted {
		return DownloadInfo{Reason: fmt.Sprintf("report is %s", report.Status)}
	}
	if report.FilePath == "" {
		return DownloadInfo{Reason: "report has no file"}
	}
	info, err := os.Stat(report.FilePath)
	if err != nil {
		return DownloadInfo{Reason: "report file no longer exists"}
	}

	return DownloadInfo{
		Available: true,
		FileName:  report.FileName,
		FilePath:  report.FilePath,
		FileSize:  info.Size(),
		MimeType:  report.MimeType,
		ExpiresAt: report.ExpiresAt,
	}
}

// DeleteReport removes the record and, best effort, its file.
func (s *Service) DeleteReport(ctx context.Context, id string) error {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return fmt.Errorf("get report: %w", err)
	}
	if report == nil {
		return fmt.Errorf("report not found: %s", id)
	}

	if report.FilePath != "" {
		if err := os.Remove(report.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove report file", "path", report.FilePath, "error", err)
		}
	}
	return s.store.DeleteReport(ctx, id)
}

// CleanupOldReports deletes completed reports older than the retention
// window. File removal is best effort: a missing file never blocks
// record deletion.
func (s *Service) CleanupOldReports(ctx context.Context) (CleanupResult, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)

	expired, err := s.store.ListReportsOlderThan(ctx, cutoff)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("list expired reports: %w", err)
	}

	result := CleanupResult{Examined: len(expired)}
	for _, report := range expired {
		if report.FilePath != "" {
			if err := os.Remove(report.FilePath); err == nil {
				result.FilesRemoved++
			} else if !os.IsNotExist(err) {
				s.logger.Warn("Failed to remove expired report file",
					"report_id", report.ID, "path", report.FilePath, "error", err)
			}
		}
		if err := s.store.DeleteReport(ctx, report.ID); err != nil {
			s.logger.Error("Failed to delete expired report", "report_id", report.ID, "error", err)
			continue
		}
		result.Deleted++
	}

	if result.Examined > 0 {
		s.logger.Info("Report retention sweep finished",
			"examined", result.Examined,
			"deleted", result.Deleted,
			"files_removed", result.FilesRemoved)
	}
	return result, nil
}
