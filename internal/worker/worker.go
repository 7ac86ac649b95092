package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/postpilot/internal/metrics"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/google/uuid"
)

// Worker polls the jobs table and runs registered handlers.
type Worker struct {
	db       *sql.DB
	queries  *repository.Queries
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(db *sql.DB, queries *repository.Queries, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		db:       db,
		queries:  queries,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("Overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("Registered job handler", "job_type", jobType)
}

// Start recovers stale jobs and launches the polling goroutines.
func (w *Worker) Start(ctx context.Context) {
	if err := w.recoverStaleJobs(ctx); err != nil {
		w.logger.Error("Failed to recover stale jobs", "error", err)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("Worker started", "concurrency", w.config.Concurrency, "handlers", len(w.handlers))
}

// Run starts the worker and blocks until ctx is canceled, then stops it.
func (w *Worker) Run(ctx context.Context) error {
	w.Start(ctx)
	<-ctx.Done()
	w.Stop()
	return nil
}

// Stop signals all workers to stop and waits up to ShutdownTimeout.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// recoverStaleJobs resets jobs left running by a crashed worker.
func (w *Worker) recoverStaleJobs(ctx context.Context) error {
	count, err := w.queries.RecoverStaleJobs(ctx, w.config.StaleJobThreshold.Seconds())
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}
	if count > 0 {
		w.logger.Warn("Recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}
	return nil
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("Worker started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("Worker stopping")
			return
		case <-ctx.Done():
			logger.Debug("Worker context canceled")
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx, logger); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					continue
				}
				logger.Error("Failed to process job", "error", err)
			}
		}
	}
}

// processNextJob dequeues and runs one job.
// Returns sql.ErrNoRows if no jobs are available.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := w.queries.WithTx(tx)

	job, err := qtx.DequeueJob(ctx)
	if err != nil {
		return err
	}
	if err := qtx.UpdateJobStarted(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job started: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dequeue: %w", err)
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts+1)
	logger.Info("Processing job")

	metrics.JobStarted(job.JobType)
	start := time.Now()

	if err := w.executeJob(ctx, job); err != nil {
		metrics.JobFailed(job.JobType)
		logger.Error("Job failed", "error", err, "permanent", IsPermanent(err))
		w.markJobFailed(ctx, job.ID, err)
		return fmt.Errorf("execute job: %w", err)
	}

	metrics.JobCompleted(job.JobType, time.Since(start))
	logger.Info("Job completed", "duration_ms", time.Since(start).Milliseconds())

	if err := w.queries.UpdateJobCompleted(ctx, job.ID); err != nil {
		logger.Error("Failed to mark job as completed", "error", err)
		return fmt.Errorf("update job completed: %w", err)
	}
	return nil
}

// executeJob runs the registered handler under JobTimeout.
func (w *Worker) executeJob(ctx context.Context, job repository.Job) error {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}

// markJobFailed reschedules the job with backoff, or fails it for good when
// the error is permanent or attempts are exhausted.
func (w *Worker) markJobFailed(ctx context.Context, jobID uuid.UUID, jobErr error) {
	params := repository.UpdateJobFailedParams{
		ID:           jobID,
		Permanent:    IsPermanent(jobErr),
		ErrorMessage: sql.NullString{String: jobErr.Error(), Valid: true},
	}
	if err := w.queries.UpdateJobFailed(ctx, params); err != nil {
		w.logger.Error("Failed to mark job as failed", "job_id", jobID, "error", err)
	}
}
