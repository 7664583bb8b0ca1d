package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a job in its lifecycle.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusClaimed    JobStatus = "claimed"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Common validation errors for Job
var (
	ErrEmptyJobID       = errors.New("job ID cannot be empty")
	ErrEmptyJobUserID   = errors.New("job user ID cannot be empty")
	ErrInvalidJobIntent = errors.New("invalid job intent")
	ErrInvalidJobStatus = errors.New("invalid job status")
	ErrBadTransition    = errors.New("invalid job status transition")
)

// jobTransitions enumerates the legal status edges. The processing-to-pending
// and claimed-to-pending edges only fire through the retry path while
// retry_count < max_retries.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusClaimed},
	JobStatusClaimed:    {JobStatusProcessing, JobStatusPending, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusPending, JobStatusFailed},
}

// CanTransition reports whether moving a job from one status to another is a
// valid edge in the lifecycle state machine.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a job in this status can never change again.
func IsTerminalStatus(s JobStatus) bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobInput carries everything a worker needs to replay the requested action:
// the raw utterance, the classifier's entities, the partially built draft,
// and a snapshot of the user's containers at enqueue time.
type JobInput struct {
	RawText    string            `json:"raw_text"`
	Entities   map[string]string `json:"entities,omitempty"`
	Draft      *DraftRecord      `json:"draft,omitempty"`
	Containers []ContainerRef    `json:"containers,omitempty"`
}

// JobOutput records the outcome of a completed job.
type JobOutput struct {
	Message        string      `json:"message"`
	CreatedRecords []uuid.UUID `json:"created_records,omitempty"`
	UpdatedRecords []uuid.UUID `json:"updated_records,omitempty"`
}

// Job is a unit of asynchronous work created by the orchestrator and executed
// by whichever processor instance wins the claim.
type Job struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ThreadID        *uuid.UUID `json:"thread_id,omitempty"`
	Intent          Intent     `json:"intent"`
	WorkerType      WorkerType `json:"worker_type"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	Input           JobInput   `json:"input"`
	Output          *JobOutput `json:"output,omitempty"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	ClaimedBy       string     `json:"claimed_by,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a pending job for the given user and intent.
// Returns an error if validation fails.
func NewJob(userID uuid.UUID, threadID *uuid.UUID, intent Intent, input JobInput, maxRetries int) (*Job, error) {
	job := &Job{
		ID:         uuid.New(),
		UserID:     userID,
		ThreadID:   threadID,
		Intent:     intent,
		WorkerType: WorkerTypeFor(intent),
		Status:     JobStatusPending,
		Input:      input,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now().UTC(),
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks the job's required fields.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.UserID == uuid.Nil {
		return ErrEmptyJobUserID
	}
	if !IsValidIntent(j.Intent) {
		return ErrInvalidJobIntent
	}
	switch j.Status {
	case JobStatusPending, JobStatusClaimed, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
	default:
		return ErrInvalidJobStatus
	}
	return nil
}

// CanRetry reports whether the job has retry budget left.
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Backoff computes the delay before the next retry attempt becomes due:
// base * 2^retry_count, capped.
func Backoff(retryCount int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
