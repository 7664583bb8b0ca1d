package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/events"
	"github.com/rahilrshah/productivity-app/internal/store"
)

// Reporter lets a worker report incremental progress for an in-flight job.
// Reporting is best-effort; a failed report never fails the job.
type Reporter interface {
	Report(ctx context.Context, pct int, message string)
}

// progressReporter persists progress through the job store and mirrors it to
// the event emitter for live subscribers.
type progressReporter struct {
	jobID   uuid.UUID
	jobs    store.JobStore
	emitter events.Emitter
	logger  *slog.Logger
}

// NewReporter creates a Reporter for one job.
func NewReporter(jobID uuid.UUID, jobs store.JobStore, emitter events.Emitter, logger *slog.Logger) Reporter {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &progressReporter{
		jobID:   jobID,
		jobs:    jobs,
		emitter: emitter,
		logger:  logger,
	}
}

func (r *progressReporter) Report(ctx context.Context, pct int, message string) {
	if err := r.jobs.UpdateProgress(ctx, r.jobID, pct, message); err != nil {
		r.logger.Warn("failed to persist job progress",
			"job_id", r.jobID,
			"progress", pct,
			"error", err)
	}
	r.emitter.Publish(events.ProgressEvent{
		JobID:     r.jobID,
		Status:    domain.JobStatusProcessing,
		Progress:  pct,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// NopReporter discards progress reports. Used by the synchronous execution
// path where no job row exists.
type NopReporter struct{}

func (NopReporter) Report(ctx context.Context, pct int, message string) {}
