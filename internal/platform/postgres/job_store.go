package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/platform/logger"
	"github.com/rahilrshah/productivity-app/internal/store"
)

// jobColumns is the select list shared by every query returning full job rows.
const jobColumns = `id, user_id, thread_id, intent, worker_type, status,
	progress, progress_message, input, output, retry_count, max_retries,
	next_retry_at, claimed_by, last_error, created_at, started_at, completed_at`

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
// ClaimNext relies on FOR UPDATE SKIP LOCKED so concurrent processor
// instances never select the same row; ClaimByID is the documented degraded
// mode built on a conditional update.
type PostgresJobStore struct {
	db        store.DBTX
	retryBase time.Duration
	retryCap  time.Duration
}

// NewPostgresJobStore creates a new PostgresJobStore with the given backoff
// policy for retryable failures.
func NewPostgresJobStore(db store.DBTX, retryBase, retryCap time.Duration) *PostgresJobStore {
	if retryBase <= 0 {
		retryBase = time.Second
	}
	if retryCap <= 0 {
		retryCap = 30 * time.Second
	}
	return &PostgresJobStore{db: db, retryBase: retryBase, retryCap: retryCap}
}

// WithTx returns a JobStore bound to the given transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx, retryBase: s.retryBase, retryCap: s.retryCap}
}

// Create persists a new pending job.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal job input: %w", err)
	}

	query := `
		INSERT INTO agent_jobs
			(id, user_id, thread_id, intent, worker_type, status, progress,
			 input, retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.ThreadID, job.Intent, job.WorkerType,
		job.Status, job.Progress, input, job.RetryCount, job.MaxRetries, now,
	)
	if err != nil {
		log.Error("failed to save job", "job_id", job.ID, "intent", job.Intent, "error", err)
		return MapError(err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *PostgresJobStore) Get(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM agent_jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}
	return job, nil
}

// ClaimNext atomically claims the oldest pending, due job of the worker type.
// FOR UPDATE SKIP LOCKED makes the select-and-transition a single atomic
// step: a row locked by a concurrent claimer is skipped, never double
// claimed. Returns nil without error when no job is eligible.
func (s *PostgresJobStore) ClaimNext(ctx context.Context, workerType domain.WorkerType, claimedBy string) (*domain.Job, error) {
	query := `
		UPDATE agent_jobs SET
			status = $1, claimed_by = $2, updated_at = $3
		WHERE id = (
			SELECT id FROM agent_jobs
			WHERE status = $4
			  AND worker_type = $5
			  AND (next_retry_at IS NULL OR next_retry_at <= $3)
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	row := s.db.QueryRowContext(ctx, query,
		domain.JobStatusClaimed, claimedBy, time.Now().UTC(),
		domain.JobStatusPending, workerType,
	)
	job, err := scanJob(row)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			// Nothing pending, or concurrent claimers got there first.
			return nil, nil
		}
		return nil, MapError(err)
	}
	return job, nil
}

// ClaimByID is the conditional-update fallback claim: it transitions the job
// to claimed only if it is still pending and due. Zero affected rows means
// another caller won the race; that is reported as no job, not an error.
// This path has a read-then-update race window and exists for callers that
// selected candidate jobs separately (the one-shot batch mode).
func (s *PostgresJobStore) ClaimByID(ctx context.Context, jobID uuid.UUID, claimedBy string) (*domain.Job, error) {
	query := `
		UPDATE agent_jobs SET
			status = $1, claimed_by = $2, updated_at = $3
		WHERE id = $4
		  AND status = $5
		  AND (next_retry_at IS NULL OR next_retry_at <= $3)
		RETURNING ` + jobColumns

	row := s.db.QueryRowContext(ctx, query,
		domain.JobStatusClaimed, claimedBy, time.Now().UTC(),
		jobID, domain.JobStatusPending,
	)
	job, err := scanJob(row)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, nil
		}
		return nil, MapError(err)
	}
	return job, nil
}

// MarkProcessing transitions a claimed job to processing and starts a fresh
// attempt: progress resets to zero and the attempt start time is recorded.
func (s *PostgresJobStore) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE agent_jobs SET
			status = $1, progress = 0, progress_message = '',
			started_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusProcessing, time.Now().UTC(), jobID, domain.JobStatusClaimed)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, "job")
}

// UpdateProgress records progress for an in-flight job. GREATEST keeps
// progress non-decreasing within the attempt even if updates race.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, jobID uuid.UUID, pct int, msg string) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	query := `
		UPDATE agent_jobs SET
			progress = GREATEST(progress, $1), progress_message = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		pct, msg, time.Now().UTC(), jobID, domain.JobStatusProcessing)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, "job")
}

// MarkCompleted transitions a job to its completed terminal state.
func (s *PostgresJobStore) MarkCompleted(ctx context.Context, jobID uuid.UUID, output domain.JobOutput) error {
	out, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal job output: %w", err)
	}

	query := `
		UPDATE agent_jobs SET
			status = $1, progress = 100, output = $2, claimed_by = '',
			completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCompleted, out, time.Now().UTC(), jobID, domain.JobStatusProcessing)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, "job")
}

// MarkFailed records a failure. A retryable failure with retry budget left
// increments retry_count, schedules the next attempt with capped exponential
// backoff, clears the claim, and resets the job to pending. Otherwise the
// job fails terminally. The whole decision runs as one statement so a
// concurrent observer never sees an intermediate state.
func (s *PostgresJobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE agent_jobs SET
			status = CASE WHEN $1 AND retry_count < max_retries THEN $2 ELSE $3 END,
			retry_count = CASE WHEN $1 AND retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
			next_retry_at = CASE WHEN $1 AND retry_count < max_retries
				THEN $4::timestamptz + make_interval(secs => LEAST($5 * power(2, retry_count), $6) / 1000.0)
				ELSE NULL END,
			completed_at = CASE WHEN $1 AND retry_count < max_retries THEN NULL ELSE $4::timestamptz END,
			claimed_by = '', last_error = $7, updated_at = $4
		WHERE id = $8 AND status IN ($9, $10)
	`
	result, err := s.db.ExecContext(ctx, query,
		retryable, domain.JobStatusPending, domain.JobStatusFailed,
		time.Now().UTC(),
		float64(s.retryBase.Milliseconds()), float64(s.retryCap.Milliseconds()),
		errMsg, jobID, domain.JobStatusClaimed, domain.JobStatusProcessing,
	)
	if err != nil {
		log.Error("failed to mark job failed", "job_id", jobID, "error", err)
		return MapError(err)
	}
	return CheckRowsAffected(result, "job")
}

// ListPending returns up to limit pending-and-due jobs without claiming them.
func (s *PostgresJobStore) ListPending(ctx context.Context, workerType domain.WorkerType, limit int) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM agent_jobs
		WHERE status = $1
		  AND worker_type = $2
		  AND (next_retry_at IS NULL OR next_retry_at <= $3)
		ORDER BY created_at
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query,
		domain.JobStatusPending, workerType, time.Now().UTC(), limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return jobs, nil
}

// ReleaseStale requeues jobs whose claim has sat in claimed or processing
// past the cutoff, most likely because a processor crashed mid-attempt. Each
// release spends one retry and schedules the next attempt with the same
// backoff as a failed attempt; jobs out of budget fail terminally.
func (s *PostgresJobStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	query := `
		UPDATE agent_jobs SET
			status = CASE WHEN retry_count < max_retries THEN $1 ELSE $2 END,
			retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
			next_retry_at = CASE WHEN retry_count < max_retries
				THEN $3::timestamptz + make_interval(secs => LEAST($7 * power(2, retry_count), $8) / 1000.0)
				ELSE NULL END,
			completed_at = CASE WHEN retry_count < max_retries THEN NULL ELSE $3::timestamptz END,
			claimed_by = '',
			last_error = CASE WHEN retry_count < max_retries THEN 'released stale claim' ELSE 'stale claim, retries exhausted' END,
			updated_at = $3
		WHERE status IN ($4, $5) AND updated_at < $6
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusPending, domain.JobStatusFailed, now,
		domain.JobStatusClaimed, domain.JobStatusProcessing, now.Add(-olderThan),
		float64(s.retryBase.Milliseconds()), float64(s.retryCap.Milliseconds()),
	)
	if err != nil {
		return 0, MapError(err)
	}
	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if released > 0 {
		log.Warn("released stale job claims", "count", released, "older_than", olderThan.String())
	}
	return int(released), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job             domain.Job
		threadID        uuid.NullUUID
		progressMessage sql.NullString
		input           []byte
		output          []byte
		nextRetryAt     sql.NullTime
		claimedBy       sql.NullString
		lastError       sql.NullString
		startedAt       sql.NullTime
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&job.ID, &job.UserID, &threadID, &job.Intent, &job.WorkerType,
		&job.Status, &job.Progress, &progressMessage, &input, &output,
		&job.RetryCount, &job.MaxRetries, &nextRetryAt, &claimedBy,
		&lastError, &job.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if threadID.Valid {
		id := threadID.UUID
		job.ThreadID = &id
	}
	job.ProgressMessage = progressMessage.String
	job.ClaimedBy = claimedBy.String
	job.LastError = lastError.String
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		job.NextRetryAt = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	if len(input) > 0 {
		if err := json.Unmarshal(input, &job.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job input: %w", err)
		}
	}
	if len(output) > 0 {
		var out domain.JobOutput
		if err := json.Unmarshal(output, &out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job output: %w", err)
		}
		job.Output = &out
	}

	return &job, nil
}
