package worker

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the configuration for the background job worker.
type Config struct {
	// Concurrency is the number of polling goroutines.
	// Default: 2
	Concurrency int

	// PollInterval is how often each worker checks for new jobs when idle.
	// Default: 5 seconds
	PollInterval time.Duration

	// JobTimeout bounds a single job. A usage export walks every counter
	// of the month, so this should exceed the export's query time.
	// Default: 5 minutes
	JobTimeout time.Duration

	// ShutdownTimeout is how long to wait for running jobs to complete during graceful shutdown.
	// After this timeout, the worker stops even if jobs are still running.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// StaleJobThreshold defines how old a 'running' job must be before it's considered stale.
	// Stale jobs are recovered on worker startup (likely from crashed workers).
	// Default: 10 minutes
	StaleJobThreshold time.Duration
}

// DefaultConfig returns the worker defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      5 * time.Second,
		JobTimeout:        5 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.PollInterval < 1*time.Second {
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	}
	if c.JobTimeout < 1*time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	if c.StaleJobThreshold < 1*time.Minute {
		return fmt.Errorf("stale job threshold must be at least 1 minute, got %v", c.StaleJobThreshold)
	}
	return nil
}

// SchedulerConfig holds the cron specs for recurring jobs. Specs use the
// standard five-field format and are evaluated in UTC.
type SchedulerConfig struct {
	// UsageExportSchedule enqueues the snapshot of the month just ended.
	// Default: "5 0 1 * *" (00:05 UTC on the 1st)
	UsageExportSchedule string

	// TokenPurgeSchedule enqueues removal of expired API tokens.
	// Default: "30 3 * * *"
	TokenPurgeSchedule string
}

// DefaultSchedulerConfig returns the production schedule.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		UsageExportSchedule: "5 0 1 * *",
		TokenPurgeSchedule:  "30 3 * * *",
	}
}

// Validate parses both specs.
func (c SchedulerConfig) Validate() error {
	if _, err := cron.ParseStandard(c.UsageExportSchedule); err != nil {
		return fmt.Errorf("usage export schedule %q: %w", c.UsageExportSchedule, err)
	}
	if _, err := cron.ParseStandard(c.TokenPurgeSchedule); err != nil {
		return fmt.Errorf("token purge schedule %q: %w", c.TokenPurgeSchedule, err)
	}
	return nil
}
