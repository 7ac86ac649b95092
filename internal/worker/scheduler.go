package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/robfig/cron/v3"
)

// Scheduler enqueues recurring jobs on cron schedules. It only inserts rows
// into the jobs table; the Worker executes them.
type Scheduler struct {
	cron   *cron.Cron
	queue  Queue
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler registers the recurring jobs described by cfg.
func NewScheduler(queue Queue, cfg SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}

	if _, err := s.cron.AddFunc(cfg.UsageExportSchedule, s.enqueueUsageExport); err != nil {
		return nil, fmt.Errorf("schedule usage export: %w", err)
	}
	if _, err := s.cron.AddFunc(cfg.TokenPurgeSchedule, s.enqueueTokenPurge); err != nil {
		return nil, fmt.Errorf("schedule token purge: %w", err)
	}

	return s, nil
}

// Run starts the scheduler and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// PreviousCycle returns the start of the calendar month before the one
// containing now, in UTC.
func PreviousCycle(now time.Time) time.Time {
	return domain.CycleStart(now).AddDate(0, -1, 0)
}

func (s *Scheduler) enqueueUsageExport() {
	month := PreviousCycle(s.now())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := EnqueueExportUsage(ctx, s.queue, month, false)
	if err != nil {
		s.logger.Error("failed to enqueue usage export", "month", month.Format("2006-01"), "error", err)
		return
	}
	s.logger.Info("usage export enqueued", "month", month.Format("2006-01"), "job_id", job.ID)
}

func (s *Scheduler) enqueueTokenPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := EnqueuePurgeExpiredTokens(ctx, s.queue)
	if err != nil {
		s.logger.Error("failed to enqueue token purge", "error", err)
		return
	}
	s.logger.Debug("token purge enqueued", "job_id", job.ID)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
