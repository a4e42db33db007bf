package reports

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rakuda/server/logger"
	"rakuda/server/storage"
)

const (
	defaultSchedulerInterval = time.Minute
	executionRetentionDays   = 90
)

// SchedulerStore is the persistence surface the schedule runner needs.
type SchedulerStore interface {
	GetDueSchedules(ctx context.Context, now time.Time) ([]*storage.ReportSchedule, error)
	UpdateScheduleAfterRun(ctx context.Context, id int64, lastRunAt time.Time, lastRunStatus string, nextRunAt time.Time) error
	CreateExecution(ctx context.Context, e *storage.ReportExecution) error
	CompleteExecution(ctx context.Context, id int64, reportID, status, errMsg string, completedAt time.Time) error
	CleanupOldExecutions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler polls for due report schedules and runs them through the
// service. One failing schedule never blocks the others in the same
// tick.
type Scheduler struct {
	store    SchedulerStore
	service  *Service
	logger   *logger.Logger
	interval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	lastSweep time.Time
}

// NewScheduler creates a scheduler polling at the default interval.
func NewScheduler(store SchedulerStore, service *Service, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		service:  service,
		logger:   log,
		interval: defaultSchedulerInterval,
	}
}

// SetInterval overrides the polling interval. Must be called before
// Start.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start launches the polling loop. Safe to call once; subsequent calls
// are no-ops until Stop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("Report scheduler started", "interval", s.interval.String())
}

// Stop halts the loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Report scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	stats, err := s.ExecuteScheduledReports(ctx)
	if err != nil {
		s.logger.Error("Failed to poll due schedules", "error", err)
	} else if stats.Executed > 0 {
		s.logger.Info("Scheduled report run finished",
			"executed", stats.Executed,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed)
	}

	s.maybeSweep(ctx)
}

// maybeSweep runs the retention sweeps at most once a day.
func (s *Scheduler) maybeSweep(ctx context.Context) {
	now := time.Now().UTC()
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < 24*time.Hour {
		return
	}
	s.lastSweep = now

	if _, err := s.service.CleanupOldReports(ctx); err != nil {
		s.logger.Error("Report retention sweep failed", "error", err)
	}

	cutoff := now.AddDate(0, 0, -executionRetentionDays)
	if deleted, err := s.store.CleanupOldExecutions(ctx, cutoff); err != nil {
		s.logger.Error("Execution history cleanup failed", "error", err)
	} else if deleted > 0 {
		s.logger.Info("Execution history trimmed", "deleted", deleted)
	}
}

// ExecuteScheduledReports runs every schedule due at the time of the
// call. The error return covers only the due-schedule query; per
// schedule outcomes land in RunStats and in the execution history, and
// next_run_at always advances so a broken schedule cannot wedge the
// queue.
func (s *Scheduler) ExecuteScheduledReports(ctx context.Context) (RunStats, error) {
	now := time.Now().UTC()

	due, err := s.store.GetDueSchedules(ctx, now)
	if err != nil {
		return RunStats{}, fmt.Errorf("get due schedules: %w", err)
	}

	var stats RunStats
	for _, schedule := range due {
		stats.Executed++
		if s.runSchedule(ctx, schedule) {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

// runSchedule executes one schedule end to end and reports success.
func (s *Scheduler) runSchedule(ctx context.Context, schedule *storage.ReportSchedule) bool {
	started := time.Now().UTC()

	exec := &storage.ReportExecution{
		ScheduleID: schedule.ID,
		Status:     storage.ExecutionStatusRunning,
		StartedAt:  started,
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		s.logger.Error("Failed to record schedule execution",
			"schedule_id", schedule.ID, "error", err)
	}

	opts := GenerateOptions{
		Name:   schedule.Name,
		Type:   schedule.ReportType,
		Format: schedule.Format,
		Params: ParamsFromMap(schedule.Parameters),
	}
	result := s.service.GenerateReport(ctx, opts, "scheduler")

	completed := time.Now().UTC()
	succeeded := result.Status == storage.ReportStatusCompleted

	execStatus := storage.ExecutionStatusCompleted
	runStatus := storage.ReportStatusCompleted
	if !succeeded {
		execStatus = storage.ExecutionStatusFailed
		runStatus = storage.ReportStatusFailed
		s.logger.Warn("Scheduled report failed",
			"schedule_id", schedule.ID,
			"name", schedule.Name,
			"error", result.Error)
	}

	if exec.ID != 0 {
		if err := s.store.CompleteExecution(ctx, exec.ID, result.ReportID, execStatus, result.Error, completed); err != nil {
			s.logger.Error("Failed to finalize execution record",
				"schedule_id", schedule.ID, "execution_id", exec.ID, "error", err)
		}
	}

	next := s.nextRun(schedule, completed)
	if err := s.store.UpdateScheduleAfterRun(ctx, schedule.ID, completed, runStatus, next); err != nil {
		s.logger.Error("Failed to advance schedule",
			"schedule_id", schedule.ID, "error", err)
	}

	return succeeded
}

// nextRun computes the next fire time from now, in the schedule's
// timezone. Missed windows are not replayed. An unparseable expression
// or timezone falls back to a 24 hour delay so the schedule keeps
// moving.
func (s *Scheduler) nextRun(schedule *storage.ReportSchedule, now time.Time) time.Time {
	loc := time.UTC
	if schedule.Timezone != "" {
		parsed, err := time.LoadLocation(schedule.Timezone)
		if err != nil {
			s.logger.Warn("Invalid schedule timezone, using UTC",
				"schedule_id", schedule.ID, "timezone", schedule.Timezone)
		} else {
			loc = parsed
		}
	}

	expr, err := cron.ParseStandard(schedule.CronExpr)
	if err != nil {
		s.logger.Warn("Invalid cron expression, deferring 24h",
			"schedule_id", schedule.ID, "cron", schedule.CronExpr, "error", err)
		return now.Add(24 * time.Hour)
	}
	return expr.Next(now.In(loc)).UTC()
}

// NextRunTime computes the first fire time for a cron expression in
// the given timezone (empty means UTC). Used when schedules are
// created or updated over the API.
func NextRunTime(cronExpr, timezone string, now time.Time) (time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		parsed, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		loc = parsed
	}
	expr, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return expr.Next(now.In(loc)).UTC(), nil
}

// ValidateCronExpr checks a standard 5 field cron expression.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
