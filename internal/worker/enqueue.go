package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/postpilot/internal/repository"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeExportUsage        = "export_usage"
	JobTypePurgeExpiredTokens = "purge_expired_tokens"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// ExportUsagePayload is the payload for usage snapshot jobs.
type ExportUsagePayload struct {
	// Month is the cycle to export, formatted "2006-01".
	Month string `json:"month"`
	// Overwrite replaces an existing snapshot for the month.
	Overwrite bool `json:"overwrite,omitempty"`
}

// PurgeExpiredTokensPayload is the (empty) payload for token cleanup jobs.
type PurgeExpiredTokensPayload struct{}

// Queue is the part of repository.Queries that enqueues jobs.
type Queue interface {
	EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error)
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob marshals payload and inserts a pending job.
func EnqueueJob(
	ctx context.Context,
	queue Queue,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := queue.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// EnqueueExportUsage enqueues a snapshot of the usage counters for the
// month containing month.
func EnqueueExportUsage(
	ctx context.Context,
	queue Queue,
	month time.Time,
	overwrite bool,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := ExportUsagePayload{
		Month:     month.UTC().Format("2006-01"),
		Overwrite: overwrite,
	}
	return EnqueueJob(ctx, queue, JobTypeExportUsage, payload, opts...)
}

// EnqueuePurgeExpiredTokens enqueues removal of expired API tokens.
func EnqueuePurgeExpiredTokens(ctx context.Context, queue Queue, opts ...EnqueueOption) (repository.Job, error) {
	opts = append([]EnqueueOption{WithPriority(PriorityLow)}, opts...)
	return EnqueueJob(ctx, queue, JobTypePurgeExpiredTokens, PurgeExpiredTokensPayload{}, opts...)
}
