// Package job runs the background processor that claims pending jobs from the
// durable queue and dispatches them to typed workers. Multiple processor
// instances may share one queue; the claim operation guarantees each job is
// executed by at most one of them.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/events"
	"github.com/rahilrshah/productivity-app/internal/platform/metrics"
	"github.com/rahilrshah/productivity-app/internal/store"
	"github.com/rahilrshah/productivity-app/internal/worker"
)

// ProcessorConfig holds the processor's tuning knobs.
type ProcessorConfig struct {
	// PollInterval is how often the processor looks for claimable jobs.
	PollInterval time.Duration

	// MaxConcurrent caps the number of jobs in flight at once.
	MaxConcurrent int

	// ShutdownTimeout bounds how long Stop waits for in-flight jobs.
	ShutdownTimeout time.Duration

	// StaleAge is how long a claim may sit without finishing before the
	// stale monitor releases it. Zero disables the monitor.
	StaleAge time.Duration

	// StaleCheckInterval is how often the stale monitor runs.
	// Defaults to one minute.
	StaleCheckInterval time.Duration
}

// DefaultProcessorConfig returns a ProcessorConfig with reasonable defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:       2 * time.Second,
		MaxConcurrent:      4,
		ShutdownTimeout:    30 * time.Second,
		StaleAge:           10 * time.Minute,
		StaleCheckInterval: time.Minute,
	}
}

// Processor polls the job queue and executes claimed jobs through the
// registered workers.
type Processor struct {
	jobs       store.JobStore
	threads    store.ThreadStore
	workers    map[domain.WorkerType]worker.Worker
	emitter    events.Emitter
	config     ProcessorConfig
	logger     *slog.Logger
	instanceID string

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewProcessor creates a Processor dispatching to the given workers. The
// thread store receives clarification turns for jobs a worker could not
// finish without more input from the user.
func NewProcessor(jobs store.JobStore, threads store.ThreadStore, workers []worker.Worker, emitter events.Emitter, config ProcessorConfig, logger *slog.Logger) *Processor {
	if config.StaleCheckInterval == 0 {
		config.StaleCheckInterval = time.Minute
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}

	byType := make(map[domain.WorkerType]worker.Worker, len(workers))
	for _, w := range workers {
		byType[w.WorkerType()] = w
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "processor"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		jobs:       jobs,
		threads:    threads,
		workers:    byType,
		emitter:    emitter,
		config:     config,
		logger:     logger.With("component", "job_processor"),
		instanceID: fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		ctx:        ctx,
		cancelFunc: cancel,
		active:     make(map[uuid.UUID]struct{}),
	}
}

// InstanceID returns the identity this processor claims jobs under.
func (p *Processor) InstanceID() string {
	return p.instanceID
}

// Start begins the poll loop and, when configured, the stale-claim monitor.
func (p *Processor) Start() {
	p.logger.Info("starting job processor",
		"instance_id", p.instanceID,
		"poll_interval", p.config.PollInterval,
		"max_concurrent", p.config.MaxConcurrent)

	p.wg.Add(1)
	go p.pollLoop()

	if p.config.StaleAge > 0 {
		p.wg.Add(1)
		go p.staleMonitor()
	}
}

// Stop halts claiming and waits up to the shutdown timeout for in-flight
// jobs to finish. Jobs still running after the timeout are abandoned; their
// claims will be released by a stale monitor later.
func (p *Processor) Stop() {
	p.cancelFunc()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("job processor stopped", "instance_id", p.instanceID)
	case <-time.After(p.config.ShutdownTimeout):
		p.mu.Lock()
		remaining := len(p.active)
		p.mu.Unlock()
		p.logger.Warn("job processor shutdown timed out with jobs in flight",
			"instance_id", p.instanceID,
			"undrained", remaining)
	}
}

func (p *Processor) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.claimAndDispatch()
		}
	}
}

// claimAndDispatch claims jobs for each registered worker type until the
// concurrency cap is reached or no job is eligible.
func (p *Processor) claimAndDispatch() {
	for workerType := range p.workers {
		for {
			if p.activeCount() >= p.config.MaxConcurrent {
				return
			}

			job, err := p.jobs.ClaimNext(p.ctx, workerType, p.instanceID)
			if err != nil {
				if p.ctx.Err() == nil {
					p.logger.Error("failed to claim job",
						"worker_type", workerType,
						"error", err)
				}
				break
			}
			if job == nil {
				break
			}

			metrics.IncJobsClaimed(string(workerType))
			p.dispatch(job)
		}
	}
}

// dispatch runs the job asynchronously, tracking it in the active set.
func (p *Processor) dispatch(job *domain.Job) {
	p.mu.Lock()
	p.active[job.ID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.active, job.ID)
			p.mu.Unlock()
		}()

		// Execution continues past Stop's cancel signal; a claimed job is
		// finished rather than half-done, and Stop bounds the wait instead.
		p.Execute(context.Background(), job)
	}()
}

// Execute runs one claimed job to a terminal or requeued state. Exported for
// the one-shot batch path, which claims jobs itself.
func (p *Processor) Execute(ctx context.Context, job *domain.Job) {
	logger := p.logger.With(
		"job_id", job.ID,
		"intent", job.Intent,
		"worker_type", job.WorkerType)
	start := time.Now()

	w, ok := p.workers[job.WorkerType]
	if !ok || !w.CanHandle(job.Intent) {
		logger.Error("no worker registered for job")
		p.markFailed(ctx, job, fmt.Sprintf("no worker for type %q", job.WorkerType), false)
		return
	}

	if err := p.jobs.MarkProcessing(ctx, job.ID); err != nil {
		// Most likely another actor moved the job; leave it alone.
		logger.Warn("failed to mark job processing", "error", err)
		return
	}
	logger.Info("processing job")

	wctx := worker.Context{
		UserID:     job.UserID,
		ThreadID:   job.ThreadID,
		Containers: job.Input.Containers,
	}
	reporter := worker.NewReporter(job.ID, p.jobs, p.emitter, logger)

	result, err := p.runWorker(ctx, w, job, wctx, reporter)
	if err != nil {
		retryable := !worker.IsPermanent(err)
		logger.Error("job execution failed",
			"error", err,
			"retryable", retryable,
			"retry_count", job.RetryCount)
		p.markFailed(ctx, job, err.Error(), retryable)
		metrics.ObserveJobDuration(string(job.WorkerType), time.Since(start), false)
		return
	}

	// A worker asking for clarification did not fail; the job completes
	// with the question, and the open state is written to the thread so
	// the user's next turn resumes slot filling instead of starting over.
	if result.NeedsClarification {
		if err := p.armClarification(ctx, job, result); err != nil {
			logger.Error("failed to persist clarification state", "error", err)
			p.markFailed(ctx, job, err.Error(), true)
			metrics.ObserveJobDuration(string(job.WorkerType), time.Since(start), false)
			return
		}
	}

	if err := p.jobs.MarkCompleted(ctx, job.ID, result.Output()); err != nil {
		logger.Error("failed to mark job completed", "error", err)
		return
	}

	metrics.IncJobsCompleted(string(job.WorkerType))
	metrics.ObserveJobDuration(string(job.WorkerType), time.Since(start), true)
	p.emitter.Publish(events.ProgressEvent{
		JobID:     job.ID,
		Status:    domain.JobStatusCompleted,
		Progress:  100,
		Message:   result.Message,
		Timestamp: time.Now().UTC(),
	})
	logger.Info("job completed", "duration", time.Since(start))
}

// armClarification appends an agent-initiated turn to the job's thread
// carrying the conversation state the worker left open. Jobs without a
// thread have nowhere to resume, so the question stays in the output only.
func (p *Processor) armClarification(ctx context.Context, job *domain.Job, result *worker.Result) error {
	if job.ThreadID == nil {
		return nil
	}

	log := &domain.ThreadLog{
		ID:       uuid.New(),
		ThreadID: *job.ThreadID,
		Response: result.Message,
		State: &domain.ConversationState{
			PendingIntent: job.Intent,
			Draft:         job.Input.Draft,
			MissingFields: result.MissingFields,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := p.threads.AppendLog(ctx, log); err != nil {
		return fmt.Errorf("appending clarification turn: %w", err)
	}
	return nil
}

// runWorker invokes the worker, converting a panic into an ordinary failed
// attempt so one bad job cannot take down the processor.
func (p *Processor) runWorker(ctx context.Context, w worker.Worker, job *domain.Job, wctx worker.Context, reporter worker.Reporter) (result *worker.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return w.ProcessJob(ctx, job, wctx, reporter)
}

func (p *Processor) markFailed(ctx context.Context, job *domain.Job, errMsg string, retryable bool) {
	if err := p.jobs.MarkFailed(ctx, job.ID, errMsg, retryable); err != nil {
		p.logger.Error("failed to record job failure",
			"job_id", job.ID,
			"error", err)
		return
	}
	metrics.IncJobsFailed(string(job.WorkerType), retryable)

	status := domain.JobStatusFailed
	if retryable && job.CanRetry() {
		status = domain.JobStatusPending
	}
	p.emitter.Publish(events.ProgressEvent{
		JobID:     job.ID,
		Status:    status,
		Progress:  job.Progress,
		Message:   errMsg,
		Timestamp: time.Now().UTC(),
	})
}

// ProcessPendingOnce drains up to limit due jobs per worker type using the
// conditional-update claim, then returns. Used by batch invocations that run
// without the poll loop. The claim here has a read-then-update window, which
// is acceptable for a single-instance batch run.
func (p *Processor) ProcessPendingOnce(ctx context.Context, limit int) (int, error) {
	processed := 0
	for workerType := range p.workers {
		pending, err := p.jobs.ListPending(ctx, workerType, limit)
		if err != nil {
			return processed, fmt.Errorf("listing pending jobs: %w", err)
		}

		for _, job := range pending {
			claimed, err := p.jobs.ClaimByID(ctx, job.ID, p.instanceID)
			if err != nil {
				return processed, fmt.Errorf("claiming job %s: %w", job.ID, err)
			}
			if claimed == nil {
				continue
			}
			metrics.IncJobsClaimed(string(workerType))
			p.Execute(ctx, claimed)
			processed++
		}
	}
	return processed, nil
}

func (p *Processor) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// ActiveJobs reports the number of jobs currently in flight.
func (p *Processor) ActiveJobs() int {
	return p.activeCount()
}

// staleMonitor periodically requeues jobs whose claims have gone stale, so a
// crashed instance's work is picked up again.
func (p *Processor) staleMonitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			released, err := p.jobs.ReleaseStale(p.ctx, p.config.StaleAge)
			if err != nil {
				if p.ctx.Err() == nil {
					p.logger.Error("failed to release stale claims", "error", err)
				}
				continue
			}
			if released > 0 {
				p.logger.Info("released stale job claims", "count", released)
			}
		}
	}
}
