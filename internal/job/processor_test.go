package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/testutils"
	"github.com/rahilrshah/productivity-app/internal/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeWorker executes record jobs with a configurable outcome.
type fakeWorker struct {
	workerType domain.WorkerType
	process    func(ctx context.Context, job *domain.Job) (*worker.Result, error)

	mu    sync.Mutex
	calls int
}

func (w *fakeWorker) WorkerType() domain.WorkerType { return w.workerType }

func (w *fakeWorker) CanHandle(intent domain.Intent) bool {
	return domain.WorkerTypeFor(intent) == w.workerType
}

func (w *fakeWorker) ProcessJob(ctx context.Context, job *domain.Job, wctx worker.Context, progress worker.Reporter) (*worker.Result, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	if w.process != nil {
		return w.process(ctx, job)
	}
	return &worker.Result{Message: "done"}, nil
}

func (w *fakeWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func newTestProcessor(jobs *testutils.MemJobStore, w worker.Worker) *Processor {
	cfg := DefaultProcessorConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	cfg.StaleAge = 0 // no monitor in unit tests
	return NewProcessor(jobs, testutils.NewMemThreadStore(), []worker.Worker{w}, nil, cfg, testLogger())
}

func mustCreateJob(t *testing.T, jobs *testutils.MemJobStore, intent domain.Intent, maxRetries int) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(uuid.New(), nil, intent, domain.JobInput{RawText: "x"}, maxRetries)
	require.NoError(t, err)
	require.NoError(t, jobs.Create(context.Background(), job))
	return job
}

func TestExecuteCompletesJob(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	w := &fakeWorker{
		workerType: domain.WorkerTypeRecord,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			return &worker.Result{Message: "created it", CreatedRecords: []uuid.UUID{uuid.New()}}, nil
		},
	}
	p := newTestProcessor(jobs, w)

	created := mustCreateJob(t, jobs, domain.IntentCreateTask, 3)
	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, p.InstanceID())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	p.Execute(context.Background(), claimed)

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Output)
	assert.Equal(t, "created it", final.Output.Message)
	assert.Len(t, final.Output.CreatedRecords, 1)
}

func TestExecuteRetryableFailureRequeues(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	w := &fakeWorker{
		workerType: domain.WorkerTypeRecord,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			return nil, errors.New("store briefly down")
		},
	}
	p := newTestProcessor(jobs, w)

	created := mustCreateJob(t, jobs, domain.IntentCreateTask, 3)
	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, p.InstanceID())
	require.NoError(t, err)
	p.Execute(context.Background(), claimed)

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, final.Status)
	assert.Equal(t, 1, final.RetryCount)
	assert.Empty(t, final.ClaimedBy)
	assert.Equal(t, "store briefly down", final.LastError)
	require.NotNil(t, final.NextRetryAt, "retry must carry a backoff deadline")
	assert.True(t, final.NextRetryAt.After(time.Now().Add(500*time.Millisecond)))
}

func TestExecutePermanentFailureDoesNotRetry(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	w := &fakeWorker{
		workerType: domain.WorkerTypeRecord,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			return nil, worker.Permanent(errors.New("malformed input"))
		},
	}
	p := newTestProcessor(jobs, w)

	created := mustCreateJob(t, jobs, domain.IntentCreateTask, 3)
	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, p.InstanceID())
	require.NoError(t, err)
	p.Execute(context.Background(), claimed)

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, final.Status)
	assert.Equal(t, 0, final.RetryCount)
}

func TestRetryExhaustionFailsTerminally(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	// Make retries immediately due so the test can re-claim without waiting.
	jobs.RetryBase = 0
	jobs.RetryCap = 0

	w := &fakeWorker{
		workerType: domain.WorkerTypeRecord,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			return nil, errors.New("always failing")
		},
	}
	p := newTestProcessor(jobs, w)

	created := mustCreateJob(t, jobs, domain.IntentCreateTask, 2)

	for attempt := 0; attempt < 3; attempt++ {
		claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, p.InstanceID())
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d should find a due job", attempt)
		p.Execute(context.Background(), claimed)
	}

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, final.Status)
	assert.Equal(t, 2, final.RetryCount)
	assert.Equal(t, 3, w.callCount(), "initial attempt plus two retries")

	// No further claims once terminal
	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, p.InstanceID())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestExecutePanicIsContained(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	w := &fakeWorker{
		workerType: domain.WorkerTypeRecord,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			panic("worker bug")
		},
	}
	p := newTestProcessor(jobs, w)

	created := mustCreateJob(t, jobs, domain.IntentCreateTask, 1)
	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, p.InstanceID())
	require.NoError(t, err)

	require.NotPanics(t, func() {
		p.Execute(context.Background(), claimed)
	})

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, final.Status, "panic counts as a retryable attempt")
	assert.Contains(t, final.LastError, "worker panicked")
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		mustCreateJob(t, jobs, domain.IntentCreateTask, 0)
	}

	const claimers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)

	for c := 0; c < claimers; c++ {
		wg.Add(1)
		go func(instance int) {
			defer wg.Done()
			for {
				claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, "instance")
				if err != nil {
					t.Errorf("claim failed: %v", err)
					return
				}
				if claimed == nil {
					return
				}
				mu.Lock()
				seen[claimed.ID]++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	assert.Len(t, seen, jobCount, "every job claimed exactly once")
	for id, count := range seen {
		assert.Equal(t, 1, count, "job %s claimed %d times", id, count)
	}
}

func TestPollLoopRespectsConcurrencyCap(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()

	release := make(chan struct{})
	var mu sync.Mutex
	inFlight, peak := 0, 0

	w := &fakeWorker{
		workerType: domain.WorkerTypeRecord,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			<-release
			mu.Lock()
			inFlight--
			mu.Unlock()
			return &worker.Result{Message: "ok"}, nil
		},
	}

	cfg := DefaultProcessorConfig()
	cfg.PollInterval = 2 * time.Millisecond
	cfg.MaxConcurrent = 2
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.StaleAge = 0
	p := NewProcessor(jobs, testutils.NewMemThreadStore(), []worker.Worker{w}, nil, cfg, testLogger())

	for i := 0; i < 6; i++ {
		mustCreateJob(t, jobs, domain.IntentCreateTask, 0)
	}

	p.Start()

	require.Eventually(t, func() bool { return p.ActiveJobs() == 2 },
		time.Second, 5*time.Millisecond)

	// Give the poll loop a chance to overshoot, then check it didn't.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	observedPeak := peak
	mu.Unlock()
	assert.LessOrEqual(t, observedPeak, 2)

	close(release)
	require.Eventually(t, func() bool {
		pending, err := jobs.ListPending(context.Background(), domain.WorkerTypeRecord, 10)
		return err == nil && len(pending) == 0 && p.ActiveJobs() == 0
	}, 2*time.Second, 5*time.Millisecond)

	p.Stop()
	assert.Equal(t, 6, w.callCount())
}

func TestStopDrainsInFlightJobs(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()

	started := make(chan struct{})
	w := &fakeWorker{
		workerType: domain.WorkerTypeRecord,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			close(started)
			time.Sleep(50 * time.Millisecond)
			return &worker.Result{Message: "slow but done"}, nil
		},
	}
	p := newTestProcessor(jobs, w)

	created := mustCreateJob(t, jobs, domain.IntentCreateTask, 0)
	p.Start()
	<-started

	p.Stop()

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status, "in-flight job finishes during drain")
}

func TestProcessPendingOnce(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	w := &fakeWorker{workerType: domain.WorkerTypeRecord}
	p := newTestProcessor(jobs, w)

	for i := 0; i < 3; i++ {
		mustCreateJob(t, jobs, domain.IntentCreateTask, 0)
	}

	processed, err := p.ProcessPendingOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, 3, w.callCount())

	// Second run finds nothing
	processed, err = p.ProcessPendingOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestExecuteWithoutWorkerFailsJob(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	w := &fakeWorker{workerType: domain.WorkerTypeRecord}
	p := newTestProcessor(jobs, w)

	job, err := domain.NewJob(uuid.New(), nil, domain.IntentScheduleEvent, domain.JobInput{RawText: "x"}, 3)
	require.NoError(t, err)
	require.NoError(t, jobs.Create(context.Background(), job))

	claimed, err := jobs.ClaimByID(context.Background(), job.ID, p.InstanceID())
	require.NoError(t, err)
	p.Execute(context.Background(), claimed)

	final, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, final.Status)
	assert.Zero(t, w.callCount())
}

func TestReleaseStaleRequeues(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()

	created := mustCreateJob(t, jobs, domain.IntentCreateTask, 3)
	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, "crashed-instance")
	require.NoError(t, err)
	require.NoError(t, jobs.MarkProcessing(context.Background(), claimed.ID))

	// Shift the clock far past the stale cutoff.
	jobs.Now = func() time.Time { return time.Now().Add(time.Hour) }

	released, err := jobs.ReleaseStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, final.Status)
	assert.Equal(t, 1, final.RetryCount, "release counts against the retry budget")
	assert.Empty(t, final.ClaimedBy)

	// The release schedules a backoff like any other retryable failure, so
	// the job is not immediately reclaimable.
	require.NotNil(t, final.NextRetryAt)
	assert.True(t, final.NextRetryAt.After(jobs.Now().UTC().Add(500*time.Millisecond)))

	reclaimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeRecord, "other-instance")
	require.NoError(t, err)
	assert.Nil(t, reclaimed, "released job stays backed off until next_retry_at")
}

func TestExecuteClarificationArmsThreadState(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	threads := testutils.NewMemThreadStore()

	thread := domain.NewThread(uuid.New())
	require.NoError(t, threads.Create(context.Background(), thread))

	w := &fakeWorker{
		workerType: domain.WorkerTypeCalendar,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			return &worker.Result{
				Message:            domain.FieldTarget.Question(),
				NeedsClarification: true,
				MissingFields:      []domain.Field{domain.FieldTarget},
			}, nil
		},
	}

	cfg := DefaultProcessorConfig()
	cfg.StaleAge = 0
	p := NewProcessor(jobs, threads, []worker.Worker{w}, nil, cfg, testLogger())

	input := domain.JobInput{
		RawText: "move my review session",
		Draft:   &domain.DraftRecord{Title: "Review session"},
	}
	created, err := domain.NewJob(thread.UserID, &thread.ID, domain.IntentReschedule, input, 3)
	require.NoError(t, err)
	require.NoError(t, jobs.Create(context.Background(), created))

	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeCalendar, p.InstanceID())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	p.Execute(context.Background(), claimed)

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Output)
	assert.Equal(t, domain.FieldTarget.Question(), final.Output.Message)

	// The open question must land on the thread so the user's next turn
	// resumes slot filling rather than fresh classification.
	state, err := threads.LatestState(context.Background(), thread.ID)
	require.NoError(t, err)
	require.True(t, state.Pending())
	assert.Equal(t, domain.IntentReschedule, state.PendingIntent)
	assert.Equal(t, []domain.Field{domain.FieldTarget}, state.MissingFields)
	require.NotNil(t, state.Draft)
	assert.Equal(t, "Review session", state.Draft.Title)
}

func TestExecuteClarificationPersistFailureRetries(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()
	threads := testutils.NewMemThreadStore()

	w := &fakeWorker{
		workerType: domain.WorkerTypeCalendar,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			return &worker.Result{
				Message:            domain.FieldTarget.Question(),
				NeedsClarification: true,
				MissingFields:      []domain.Field{domain.FieldTarget},
			}, nil
		},
	}

	cfg := DefaultProcessorConfig()
	cfg.StaleAge = 0
	p := NewProcessor(jobs, threads, []worker.Worker{w}, nil, cfg, testLogger())

	// The job references a thread the store does not know, so the turn
	// append fails and the attempt must count as retryable.
	ghostThread := uuid.New()
	created, err := domain.NewJob(uuid.New(), &ghostThread, domain.IntentReschedule, domain.JobInput{RawText: "move it"}, 3)
	require.NoError(t, err)
	require.NoError(t, jobs.Create(context.Background(), created))

	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeCalendar, p.InstanceID())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	p.Execute(context.Background(), claimed)

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, final.Status)
	assert.Equal(t, 1, final.RetryCount)
	assert.Contains(t, final.LastError, "appending clarification turn")
}

func TestExecuteClarificationWithoutThreadCompletes(t *testing.T) {
	t.Parallel()
	jobs := testutils.NewMemJobStore()

	w := &fakeWorker{
		workerType: domain.WorkerTypeCalendar,
		process: func(ctx context.Context, job *domain.Job) (*worker.Result, error) {
			return &worker.Result{
				Message:            domain.FieldTarget.Question(),
				NeedsClarification: true,
				MissingFields:      []domain.Field{domain.FieldTarget},
			}, nil
		},
	}
	p := newTestProcessor(jobs, w)

	created, err := domain.NewJob(uuid.New(), nil, domain.IntentReschedule, domain.JobInput{RawText: "move it"}, 3)
	require.NoError(t, err)
	require.NoError(t, jobs.Create(context.Background(), created))

	claimed, err := jobs.ClaimNext(context.Background(), domain.WorkerTypeCalendar, p.InstanceID())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	p.Execute(context.Background(), claimed)

	final, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Output)
	assert.Equal(t, domain.FieldTarget.Question(), final.Output.Message)
}
