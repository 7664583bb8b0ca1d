// Package agent implements the conversation orchestrator: the per-turn state
// machine that classifies user input, fills missing fields across turns, and
// either executes the resulting action inline or enqueues it as a job.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/classify"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/platform/metrics"
	"github.com/rahilrshah/productivity-app/internal/store"
	"github.com/rahilrshah/productivity-app/internal/worker"
)

// Status is the outcome category of one interaction turn.
type Status string

// Possible interaction statuses
const (
	StatusSuccess           Status = "SUCCESS"
	StatusProcessing        Status = "PROCESSING"
	StatusClarificationNeed Status = "CLARIFICATION_NEEDED"
	StatusError             Status = "ERROR"
)

// genericErrorMessage is the user-facing reply for any internal failure.
// Internals are logged server-side, never surfaced.
const genericErrorMessage = "Something went wrong on my end. Please try again."

// Validation errors returned to the transport layer.
var (
	ErrEmptyInput      = errors.New("input text cannot be empty")
	ErrMissingUser     = errors.New("user ID is required")
	ErrThreadForbidden = errors.New("thread does not belong to user")
)

// Request is one user turn.
type Request struct {
	UserID   uuid.UUID
	ThreadID *uuid.UUID
	Text     string

	// ClientState optionally replays the conversation state echoed to the
	// client on the previous turn. It is a hint; the state persisted with
	// the thread always wins when both exist.
	ClientState *domain.ConversationState
}

// Response is the agent's reply for one turn.
type Response struct {
	ThreadID       uuid.UUID                 `json:"thread_id"`
	Status         Status                    `json:"status"`
	Message        string                    `json:"message"`
	Intent         domain.Intent             `json:"intent,omitempty"`
	JobID          *uuid.UUID                `json:"job_id,omitempty"`
	State          *domain.ConversationState `json:"conversation_state,omitempty"`
	CreatedRecords []uuid.UUID               `json:"created_records,omitempty"`
	UpdatedRecords []uuid.UUID               `json:"updated_records,omitempty"`
}

// Orchestrator coordinates one interaction turn end to end.
type Orchestrator struct {
	classifier classify.Classifier
	threads    store.ThreadStore
	jobs       store.JobStore
	records    store.RecordStore
	cache      store.StateCache
	workers    map[domain.WorkerType]worker.Worker
	syncSafe   map[domain.Intent]bool
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// Config holds the orchestrator's policy knobs.
type Config struct {
	// SyncSafeIntents lists the intents executed inline on the request path.
	SyncSafeIntents []string

	// MaxRetries is the retry budget stamped on enqueued jobs.
	MaxRetries int
}

// NewOrchestrator creates an Orchestrator with the given collaborators.
// Workers are used only for the synchronous execution path; asynchronous
// jobs go through the queue and the processor.
func NewOrchestrator(
	classifier classify.Classifier,
	threads store.ThreadStore,
	jobs store.JobStore,
	records store.RecordStore,
	cache store.StateCache,
	workers []worker.Worker,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cache == nil {
		cache = store.NopStateCache{}
	}

	byType := make(map[domain.WorkerType]worker.Worker, len(workers))
	for _, w := range workers {
		byType[w.WorkerType()] = w
	}

	syncSafe := make(map[domain.Intent]bool, len(cfg.SyncSafeIntents))
	for _, s := range cfg.SyncSafeIntents {
		intent := domain.Intent(s)
		if domain.IsValidIntent(intent) {
			syncSafe[intent] = true
		}
	}

	return &Orchestrator{
		classifier: classifier,
		threads:    threads,
		jobs:       jobs,
		records:    records,
		cache:      cache,
		workers:    byType,
		syncSafe:   syncSafe,
		maxRetries: cfg.MaxRetries,
		logger:     logger.With("component", "agent"),
		now:        time.Now,
	}
}

// Interact runs one turn of the conversation. Validation problems return an
// error for the transport layer to map; everything past validation resolves
// to a Response, with internal failures masked as StatusError.
func (o *Orchestrator) Interact(ctx context.Context, req Request) (*Response, error) {
	if req.UserID == uuid.Nil {
		return nil, ErrMissingUser
	}
	if len([]rune(req.Text)) == 0 {
		return nil, ErrEmptyInput
	}

	thread, err := o.resolveThread(ctx, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrThreadForbidden) {
			return nil, err
		}
		return o.errorResponse(ctx, uuid.Nil, req, err), nil
	}

	logger := o.logger.With("thread_id", thread.ID, "user_id", req.UserID)

	resp := o.runTurn(ctx, logger, thread, req)
	metrics.IncInteractions(string(resp.Status))
	return resp, nil
}

// runTurn is the per-turn state machine past thread resolution.
func (o *Orchestrator) runTurn(ctx context.Context, logger *slog.Logger, thread *domain.Thread, req Request) *Response {
	containers, err := o.containerSnapshot(ctx, req.UserID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load container snapshot", "error", err)
		return o.errorResponse(ctx, thread.ID, req, err)
	}

	state, err := o.resolveState(ctx, thread.ID, req.ClientState)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load conversation state", "error", err)
		return o.errorResponse(ctx, thread.ID, req, err)
	}

	// A pending clarification consumes the turn as an answer unless the
	// text clearly reads as a brand-new request.
	if state.Pending() && !looksLikeNewRequest(req.Text) {
		if applyAnswer(state, req.Text, containers, o.now()) {
			if len(state.MissingFields) > 0 {
				return o.askClarification(ctx, logger, thread, req, state)
			}
			return o.execute(ctx, logger, thread, req, state.PendingIntent, state.Draft, containers)
		}
		// The answer did not fit the slot. Re-ask once rather than guess.
		return o.askClarification(ctx, logger, thread, req, state)
	}

	classification, err := o.classify(ctx, req.Text, containers)
	if err != nil {
		logger.ErrorContext(ctx, "classification failed", "error", err)
		return o.errorResponse(ctx, thread.ID, req, err)
	}
	logger.InfoContext(ctx, "classified utterance",
		"intent", classification.Intent,
		"confidence", classification.Confidence,
		"entities", len(classification.Entities))

	draft := buildDraft(classification, containers, o.now())
	if missing := draft.MissingFields(classification.Intent); len(missing) > 0 {
		return o.askClarification(ctx, logger, thread, req, &domain.ConversationState{
			PendingIntent: classification.Intent,
			Draft:         draft,
			MissingFields: missing,
		})
	}

	return o.execute(ctx, logger, thread, req, classification.Intent, draft, containers)
}

func (o *Orchestrator) resolveThread(ctx context.Context, req Request) (*domain.Thread, error) {
	if req.ThreadID != nil {
		thread, err := o.threads.Get(ctx, *req.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("loading thread %s: %w", *req.ThreadID, err)
		}
		if thread.UserID != req.UserID {
			return nil, ErrThreadForbidden
		}
		return thread, nil
	}

	thread := domain.NewThread(req.UserID)
	if err := o.threads.Create(ctx, thread); err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}
	return thread, nil
}

// resolveState finds the outstanding conversation state for the thread:
// the persisted turn log first, then the cache, then the client echo.
func (o *Orchestrator) resolveState(ctx context.Context, threadID uuid.UUID, clientState *domain.ConversationState) (*domain.ConversationState, error) {
	stored, err := o.threads.LatestState(ctx, threadID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading persisted state: %w", err)
	}
	if stored.Pending() {
		return stored, nil
	}

	if cached, err := o.cache.Get(ctx, threadID); err == nil && cached.Pending() {
		return cached, nil
	}

	if clientState.Pending() {
		return clientState, nil
	}
	return nil, nil
}

func (o *Orchestrator) containerSnapshot(ctx context.Context, userID uuid.UUID) ([]domain.ContainerRef, error) {
	records, err := o.records.ListContainers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	refs := make([]domain.ContainerRef, 0, len(records))
	for _, r := range records {
		refs = append(refs, r.Ref())
	}
	return refs, nil
}

func (o *Orchestrator) classify(ctx context.Context, text string, containers []domain.ContainerRef) (*classify.Classification, error) {
	start := o.now()
	c, err := o.classifier.Classify(ctx, text, summarizeContainers(containers))
	metrics.ObserveClassifyLatency(time.Since(start))
	return c, err
}

// askClarification persists the open state with the turn and replies with
// the question for the first missing field.
func (o *Orchestrator) askClarification(ctx context.Context, logger *slog.Logger, thread *domain.Thread, req Request, state *domain.ConversationState) *Response {
	question := state.MissingFields[0].Question()

	if err := o.recordTurn(ctx, thread.ID, req.Text, question, state); err != nil {
		logger.ErrorContext(ctx, "failed to record clarification turn", "error", err)
		return o.errorResponse(ctx, thread.ID, req, err)
	}

	return &Response{
		ThreadID: thread.ID,
		Status:   StatusClarificationNeed,
		Message:  question,
		Intent:   state.PendingIntent,
		State:    state,
	}
}

// execute runs the resolved intent, inline when policy allows and through
// the job queue otherwise.
func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, thread *domain.Thread, req Request, intent domain.Intent, draft *domain.DraftRecord, containers []domain.ContainerRef) *Response {
	threadID := thread.ID
	input := domain.JobInput{
		RawText:    req.Text,
		Draft:      draft,
		Containers: containers,
	}

	job, err := domain.NewJob(req.UserID, &threadID, intent, input, o.maxRetries)
	if err != nil {
		logger.ErrorContext(ctx, "failed to build job", "error", err)
		return o.errorResponse(ctx, threadID, req, err)
	}

	if o.syncSafe[intent] {
		return o.executeInline(ctx, logger, thread, req, job)
	}

	if err := o.jobs.Create(ctx, job); err != nil {
		logger.ErrorContext(ctx, "failed to enqueue job", "error", err)
		return o.errorResponse(ctx, threadID, req, err)
	}

	message := "Got it, I'm working on that now."
	if err := o.recordTurn(ctx, threadID, req.Text, message, nil); err != nil {
		logger.ErrorContext(ctx, "failed to record turn", "error", err)
	}
	logger.InfoContext(ctx, "enqueued job", "job_id", job.ID, "intent", intent)

	jobID := job.ID
	return &Response{
		ThreadID: threadID,
		Status:   StatusProcessing,
		Message:  message,
		Intent:   intent,
		JobID:    &jobID,
	}
}

// executeInline runs a sync-safe intent on the request path with no job row.
func (o *Orchestrator) executeInline(ctx context.Context, logger *slog.Logger, thread *domain.Thread, req Request, job *domain.Job) *Response {
	w, ok := o.workers[job.WorkerType]
	if !ok {
		logger.ErrorContext(ctx, "no worker for sync intent", "intent", job.Intent)
		return o.errorResponse(ctx, thread.ID, req, fmt.Errorf("no worker for type %q", job.WorkerType))
	}

	wctx := worker.Context{
		UserID:     req.UserID,
		ThreadID:   job.ThreadID,
		Containers: job.Input.Containers,
	}
	result, err := w.ProcessJob(ctx, job, wctx, worker.NopReporter{})
	if err != nil {
		logger.ErrorContext(ctx, "inline execution failed", "intent", job.Intent, "error", err)
		return o.errorResponse(ctx, thread.ID, req, err)
	}

	if result.NeedsClarification {
		state := &domain.ConversationState{
			PendingIntent: job.Intent,
			Draft:         job.Input.Draft,
			MissingFields: result.MissingFields,
		}
		return o.askClarification(ctx, logger, thread, req, state)
	}

	if err := o.recordTurn(ctx, thread.ID, req.Text, result.Message, nil); err != nil {
		logger.ErrorContext(ctx, "failed to record turn", "error", err)
	}
	logger.InfoContext(ctx, "executed intent inline", "intent", job.Intent)

	return &Response{
		ThreadID:       thread.ID,
		Status:         StatusSuccess,
		Message:        result.Message,
		Intent:         job.Intent,
		CreatedRecords: result.CreatedRecords,
		UpdatedRecords: result.UpdatedRecords,
	}
}

// recordTurn appends the turn to the thread log and mirrors the state into
// the cache. The log write is authoritative; cache failures only log.
func (o *Orchestrator) recordTurn(ctx context.Context, threadID uuid.UUID, userInput, response string, state *domain.ConversationState) error {
	log := &domain.ThreadLog{
		ID:        uuid.New(),
		ThreadID:  threadID,
		UserInput: userInput,
		Response:  response,
		State:     state,
		CreatedAt: o.now().UTC(),
	}
	if err := o.threads.AppendLog(ctx, log); err != nil {
		return fmt.Errorf("appending thread log: %w", err)
	}

	if state != nil {
		if err := o.cache.Set(ctx, threadID, state); err != nil {
			o.logger.WarnContext(ctx, "failed to cache conversation state",
				"thread_id", threadID, "error", err)
		}
	} else {
		if err := o.cache.Clear(ctx, threadID); err != nil {
			o.logger.WarnContext(ctx, "failed to clear cached state",
				"thread_id", threadID, "error", err)
		}
	}
	return nil
}

// errorResponse masks an internal failure behind the generic reply, best
// effort recording the turn so the conversation history stays coherent.
func (o *Orchestrator) errorResponse(ctx context.Context, threadID uuid.UUID, req Request, cause error) *Response {
	if threadID != uuid.Nil {
		if err := o.recordTurn(ctx, threadID, req.Text, genericErrorMessage, nil); err != nil {
			o.logger.ErrorContext(ctx, "failed to record error turn",
				"thread_id", threadID, "error", err)
		}
	}
	return &Response{
		ThreadID: threadID,
		Status:   StatusError,
		Message:  genericErrorMessage,
	}
}
