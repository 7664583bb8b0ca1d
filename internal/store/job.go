package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
)

// JobStore defines the interface for the durable, shared job queue.
// All operations must be safe under concurrent callers; the claim operations
// guarantee at most one processor holds a non-released claim on a job.
// Version: 1.0
type JobStore interface {
	// Create persists a new pending job.
	Create(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID. Returns ErrJobNotFound if absent.
	Get(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// ClaimNext atomically selects the oldest pending job of the given
	// worker type whose retry time is unset or due, and transitions it to
	// claimed under the caller's identity. Returns nil (no error) when no
	// job is eligible or another caller won the race.
	ClaimNext(ctx context.Context, workerType domain.WorkerType, claimedBy string) (*domain.Job, error)

	// ClaimByID attempts the conditional-update fallback claim: transition
	// the given job from pending to claimed only if it is still pending.
	// Returns nil (no error) when the job was not pending anymore; this is
	// the degraded mode with a read-then-update race window, used by the
	// one-shot batch path.
	ClaimByID(ctx context.Context, jobID uuid.UUID, claimedBy string) (*domain.Job, error)

	// MarkProcessing transitions a claimed job to processing and records
	// the attempt start time.
	MarkProcessing(ctx context.Context, jobID uuid.UUID) error

	// UpdateProgress records progress for an in-flight job. Progress is
	// clamped non-decreasing within an attempt.
	UpdateProgress(ctx context.Context, jobID uuid.UUID, pct int, msg string) error

	// MarkCompleted transitions a job to its completed terminal state with
	// the given output.
	MarkCompleted(ctx context.Context, jobID uuid.UUID, output domain.JobOutput) error

	// MarkFailed records a failure. With retryable=true and retry budget
	// remaining it increments retry_count, computes the backoff deadline,
	// clears the claim, and resets the job to pending; otherwise the job
	// becomes failed terminally.
	MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) error

	// ListPending returns up to limit pending-and-due jobs of the worker
	// type, oldest first, without claiming them.
	ListPending(ctx context.Context, workerType domain.WorkerType, limit int) ([]*domain.Job, error)

	// ReleaseStale requeues jobs that have sat in claimed or processing
	// longer than the given age, counting each release against the job's
	// retry budget. Returns the number of jobs released.
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error)

	// WithTx returns a JobStore bound to the given transaction.
	WithTx(tx *sql.Tx) JobStore
}
