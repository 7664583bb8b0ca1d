// Package worker implements the typed job executors: the record worker for
// task and routine creation, the calendar worker for scheduling operations,
// and the container worker for container and project-structure creation.
// Workers are pure with respect to the queue; the processor owns claiming,
// status transitions, and retries.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
)

// Context carries the per-job execution context a worker needs beyond the
// job input itself.
type Context struct {
	UserID     uuid.UUID
	ThreadID   *uuid.UUID
	Containers []domain.ContainerRef
}

// Result is a worker's report of what it did. A worker returning a Result
// with NeedsClarification set did not fail; it determined the job cannot
// proceed without more information from the user.
type Result struct {
	Message            string
	CreatedRecords     []uuid.UUID
	UpdatedRecords     []uuid.UUID
	NeedsClarification bool
	MissingFields      []domain.Field
}

// Output converts the result into the job output persisted with the job.
func (r *Result) Output() domain.JobOutput {
	return domain.JobOutput{
		Message:        r.Message,
		CreatedRecords: r.CreatedRecords,
		UpdatedRecords: r.UpdatedRecords,
	}
}

// Worker executes jobs of one worker type.
type Worker interface {
	// WorkerType returns the worker type this worker handles.
	WorkerType() domain.WorkerType

	// CanHandle reports whether the worker executes jobs for the intent.
	CanHandle(intent domain.Intent) bool

	// ProcessJob executes the job and returns its result. An error return
	// means the attempt failed; wrap with Permanent to suppress retries.
	ProcessJob(ctx context.Context, job *domain.Job, wctx Context, progress Reporter) (*Result, error)
}

// permanentError marks a failure as non-retryable regardless of budget.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so the processor fails the job terminally
// instead of scheduling a retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether the error was marked non-retryable.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// buildPayload converts the job's input into the typed payload for its
// intent, failing permanently on malformed input since a retry cannot fix it.
func buildPayload(job *domain.Job) (domain.Payload, error) {
	payload, err := domain.BuildPayload(job.Intent, job.Input.Draft)
	if err != nil {
		return nil, Permanent(fmt.Errorf("building payload for intent %q: %w", job.Intent, err))
	}
	return payload, nil
}

// soleContainer returns the single container of the given category in the
// snapshot, or false when there are zero or several.
func soleContainer(containers []domain.ContainerRef, category domain.Category) (domain.ContainerRef, bool) {
	var found domain.ContainerRef
	count := 0
	for _, ref := range containers {
		if ref.Category == category {
			found = ref
			count++
		}
	}
	return found, count == 1
}

// containerName resolves a container ID to its title in the snapshot.
func containerName(containers []domain.ContainerRef, id uuid.UUID) string {
	for _, ref := range containers {
		if ref.ID == id {
			return ref.Title
		}
	}
	return ""
}
