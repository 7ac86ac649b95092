package worker

import (
	"context"
	"errors"
)

// JobHandler defines the interface that all job handlers must implement.
// Each handler is responsible for executing a specific type of background job.
type JobHandler interface {
	// Type returns the job type identifier that this handler processes.
	// This must match the job_type column in the jobs table.
	Type() string

	// Handle executes the job. payload is the raw JSON stored with the job.
	// Wrap errors that cannot succeed on retry with NewPermanentError.
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError marks a job failure that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err so the job is failed without retry.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err wraps a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// HandlerFunc adapts a function to a JobHandler for jobType.
func HandlerFunc(jobType string, fn func(ctx context.Context, payload []byte) error) JobHandler {
	return handlerFunc{jobType: jobType, fn: fn}
}

type handlerFunc struct {
	jobType string
	fn      func(ctx context.Context, payload []byte) error
}

func (h handlerFunc) Type() string { return h.jobType }

func (h handlerFunc) Handle(ctx context.Context, payload []byte) error { return h.fn(ctx, payload) }
