// Package testutils provides in-memory store implementations and stub
// collaborators for tests. The fakes honor the same contracts as the
// Postgres stores, including the claim semantics, so orchestration logic
// can be tested without a database.
package testutils

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/store"
)

// MemJobStore is an in-memory store.JobStore. Claim operations hold the
// store lock for the whole select-and-transition, matching the atomicity of
// the SQL implementation.
type MemJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job

	// RetryBase and RetryCap drive the backoff computed on retryable
	// failures.
	RetryBase time.Duration
	RetryCap  time.Duration

	// Now is injectable for deterministic retry timing.
	Now func() time.Time
}

// NewMemJobStore creates an empty in-memory job store.
func NewMemJobStore() *MemJobStore {
	return &MemJobStore{
		jobs:      make(map[uuid.UUID]*domain.Job),
		RetryBase: time.Second,
		RetryCap:  30 * time.Second,
		Now:       time.Now,
	}
}

var _ store.JobStore = (*MemJobStore)(nil)

func (s *MemJobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrDuplicate
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemJobStore) Get(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *MemJobStore) ClaimNext(ctx context.Context, workerType domain.WorkerType, claimedBy string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now().UTC()
	var oldest *domain.Job
	for _, job := range s.jobs {
		if job.WorkerType != workerType || job.Status != domain.JobStatusPending {
			continue
		}
		if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Status = domain.JobStatusClaimed
	oldest.ClaimedBy = claimedBy
	return cloneJob(oldest), nil
}

func (s *MemJobStore) ClaimByID(ctx context.Context, jobID uuid.UUID, claimedBy string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return nil, nil
	}
	now := s.Now().UTC()
	if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
		return nil, nil
	}

	job.Status = domain.JobStatusClaimed
	job.ClaimedBy = claimedBy
	return cloneJob(job), nil
}

func (s *MemJobStore) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusClaimed {
		return store.ErrUpdateFailed
	}
	now := s.Now().UTC()
	job.Status = domain.JobStatusProcessing
	job.Progress = 0
	job.StartedAt = &now
	return nil
}

func (s *MemJobStore) UpdateProgress(ctx context.Context, jobID uuid.UUID, pct int, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return store.ErrUpdateFailed
	}
	if pct > job.Progress {
		job.Progress = pct
	}
	job.ProgressMessage = msg
	return nil
}

func (s *MemJobStore) MarkCompleted(ctx context.Context, jobID uuid.UUID, output domain.JobOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return store.ErrUpdateFailed
	}
	now := s.Now().UTC()
	out := output
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.Output = &out
	job.CompletedAt = &now
	return nil
}

func (s *MemJobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if domain.IsTerminalStatus(job.Status) {
		return store.ErrUpdateFailed
	}

	now := s.Now().UTC()
	job.LastError = errMsg
	if retryable && job.CanRetry() {
		next := now.Add(domain.Backoff(job.RetryCount, s.RetryBase, s.RetryCap))
		job.RetryCount++
		job.NextRetryAt = &next
		job.Status = domain.JobStatusPending
		job.ClaimedBy = ""
		return nil
	}

	job.Status = domain.JobStatusFailed
	job.CompletedAt = &now
	return nil
}

func (s *MemJobStore) ListPending(ctx context.Context, workerType domain.WorkerType, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now().UTC()
	var pending []*domain.Job
	for _, job := range s.jobs {
		if job.WorkerType != workerType || job.Status != domain.JobStatusPending {
			continue
		}
		if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
			continue
		}
		pending = append(pending, cloneJob(job))
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *MemJobStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now().UTC()
	cutoff := now.Add(-olderThan)
	released := 0
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusClaimed && job.Status != domain.JobStatusProcessing {
			continue
		}
		ref := job.CreatedAt
		if job.StartedAt != nil {
			ref = *job.StartedAt
		}
		if !ref.Before(cutoff) {
			continue
		}

		job.LastError = "claim released after timeout"
		if job.CanRetry() {
			next := now.Add(domain.Backoff(job.RetryCount, s.RetryBase, s.RetryCap))
			job.RetryCount++
			job.NextRetryAt = &next
			job.Status = domain.JobStatusPending
			job.ClaimedBy = ""
		} else {
			job.Status = domain.JobStatusFailed
			job.CompletedAt = &now
		}
		released++
	}
	return released, nil
}

func (s *MemJobStore) WithTx(tx *sql.Tx) store.JobStore { return s }

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	return &c
}

// MemThreadStore is an in-memory store.ThreadStore.
type MemThreadStore struct {
	mu      sync.Mutex
	threads map[uuid.UUID]*domain.Thread
	logs    map[uuid.UUID][]*domain.ThreadLog
}

// NewMemThreadStore creates an empty in-memory thread store.
func NewMemThreadStore() *MemThreadStore {
	return &MemThreadStore{
		threads: make(map[uuid.UUID]*domain.Thread),
		logs:    make(map[uuid.UUID][]*domain.ThreadLog),
	}
}

var _ store.ThreadStore = (*MemThreadStore)(nil)

func (s *MemThreadStore) Create(ctx context.Context, thread *domain.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.threads[thread.ID]; exists {
		return store.ErrDuplicate
	}
	c := *thread
	s.threads[thread.ID] = &c
	return nil
}

func (s *MemThreadStore) Get(ctx context.Context, threadID uuid.UUID) (*domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return nil, store.ErrThreadNotFound
	}
	c := *thread
	return &c, nil
}

func (s *MemThreadStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Thread
	for _, t := range s.threads {
		if t.UserID == userID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *MemThreadStore) AppendLog(ctx context.Context, log *domain.ThreadLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[log.ThreadID]
	if !ok {
		return store.ErrThreadNotFound
	}
	c := *log
	s.logs[log.ThreadID] = append(s.logs[log.ThreadID], &c)
	thread.MessageCount++
	thread.LastMessageAt = log.CreatedAt
	return nil
}

func (s *MemThreadStore) Logs(ctx context.Context, threadID uuid.UUID) ([]*domain.ThreadLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return nil, store.ErrThreadNotFound
	}
	logs := s.logs[threadID]
	out := make([]*domain.ThreadLog, len(logs))
	for i, l := range logs {
		c := *l
		out[i] = &c
	}
	return out, nil
}

func (s *MemThreadStore) LatestState(ctx context.Context, threadID uuid.UUID) (*domain.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return nil, store.ErrThreadNotFound
	}
	logs := s.logs[threadID]
	if len(logs) == 0 {
		return nil, nil
	}
	return logs[len(logs)-1].State, nil
}

func (s *MemThreadStore) WithTx(tx *sql.Tx) store.ThreadStore { return s }

// MemRecordStore is an in-memory store.RecordStore.
type MemRecordStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.Record

	// CreateErr, when set, is returned by Create. Used to test failure
	// handling without a broken backend.
	CreateErr error
}

// NewMemRecordStore creates an empty in-memory record store.
func NewMemRecordStore() *MemRecordStore {
	return &MemRecordStore{records: make(map[uuid.UUID]*domain.Record)}
}

var _ store.RecordStore = (*MemRecordStore)(nil)

func (s *MemRecordStore) Create(ctx context.Context, record *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if _, exists := s.records[record.ID]; exists {
		return store.ErrDuplicate
	}
	c := *record
	s.records[record.ID] = &c
	return nil
}

// CreateBatch inserts all records or none, mirroring the transactional
// batch of the SQL store.
func (s *MemRecordStore) CreateBatch(ctx context.Context, records []*domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	for _, r := range records {
		if _, exists := s.records[r.ID]; exists {
			return store.ErrDuplicate
		}
	}
	for _, r := range records {
		c := *r
		s.records[r.ID] = &c
	}
	return nil
}

func (s *MemRecordStore) Update(ctx context.Context, record *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return store.ErrRecordNotFound
	}
	c := *record
	s.records[record.ID] = &c
	return nil
}

func (s *MemRecordStore) Get(ctx context.Context, recordID uuid.UUID) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordID]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	c := *record
	return &c, nil
}

func (s *MemRecordStore) ListContainers(ctx context.Context, userID uuid.UUID) ([]*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Record
	for _, r := range s.records {
		if r.UserID == userID && r.Category.IsContainer() {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *MemRecordStore) ListScheduledBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Record
	for _, r := range s.records {
		if r.UserID != userID || r.ScheduledAt == nil {
			continue
		}
		at := r.ScheduledAt.UTC()
		if !at.Before(from) && at.Before(to) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(*out[j].ScheduledAt)
	})
	return out, nil
}

func (s *MemRecordStore) WithTx(tx *sql.Tx) store.RecordStore { return s }

// All returns every record in the store, for assertions.
func (s *MemRecordStore) All() []*domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Record, 0, len(s.records))
	for _, r := range s.records {
		c := *r
		out = append(out, &c)
	}
	return out
}
