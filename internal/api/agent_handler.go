// Package api implements the HTTP surface of the assistant: the interaction
// endpoint, thread history, and job status lookups.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/agent"
	"github.com/rahilrshah/productivity-app/internal/api/shared"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/redact"
	"github.com/rahilrshah/productivity-app/internal/store"
)

// InteractionRequest is the body of POST /agent/interact.
type InteractionRequest struct {
	Text     string `json:"text" validate:"required,min=1,max=20000"`
	ThreadID string `json:"thread_id,omitempty"`

	// ConversationState optionally echoes the state returned on the
	// previous clarification turn.
	ConversationState *domain.ConversationState `json:"conversation_state,omitempty"`
}

// ThreadResponse summarizes one conversation thread.
type ThreadResponse struct {
	ID            uuid.UUID `json:"id"`
	Status        string    `json:"status"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// ThreadLogResponse is one recorded turn in a thread's history.
type ThreadLogResponse struct {
	ID        uuid.UUID `json:"id"`
	UserInput string    `json:"user_input"`
	Response  string    `json:"ai_response"`
	CreatedAt time.Time `json:"created_at"`
}

// JobResponse is the externally visible state of a job.
type JobResponse struct {
	ID              uuid.UUID         `json:"id"`
	Status          domain.JobStatus  `json:"status"`
	Intent          domain.Intent     `json:"intent"`
	Progress        int               `json:"progress"`
	ProgressMessage string            `json:"progress_message,omitempty"`
	Output          *domain.JobOutput `json:"output,omitempty"`
	RetryCount      int               `json:"retry_count"`
	LastError       string            `json:"last_error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// AgentHandler handles the assistant's HTTP endpoints.
type AgentHandler struct {
	orchestrator *agent.Orchestrator
	threads      store.ThreadStore
	jobs         store.JobStore
	logger       *slog.Logger
}

// NewAgentHandler creates a new AgentHandler with the given dependencies.
func NewAgentHandler(orchestrator *agent.Orchestrator, threads store.ThreadStore, jobs store.JobStore, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		orchestrator: orchestrator,
		threads:      threads,
		jobs:         jobs,
		logger:       logger.With("component", "agent_handler"),
	}
}

// Interact handles POST /agent/interact.
func (h *AgentHandler) Interact(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req InteractionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Text is required")
		return
	}

	agentReq := agent.Request{
		UserID:      userID,
		Text:        req.Text,
		ClientState: req.ConversationState,
	}
	if req.ThreadID != "" {
		threadID, err := uuid.Parse(req.ThreadID)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid thread ID")
			return
		}
		agentReq.ThreadID = &threadID
	}

	resp, err := h.orchestrator.Interact(r.Context(), agentReq)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrEmptyInput), errors.Is(err, agent.ErrMissingUser):
			shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			shared.RespondWithError(w, r, http.StatusNotFound, "Thread not found")
		case errors.Is(err, agent.ErrThreadForbidden):
			shared.RespondWithError(w, r, http.StatusForbidden, "Thread belongs to another user")
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to process interaction", err)
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// ListThreads handles GET /agent/threads.
func (h *AgentHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	threads, err := h.threads.ListByUser(r.Context(), userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to list threads", err)
		return
	}

	resp := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		resp = append(resp, ThreadResponse{
			ID:            t.ID,
			Status:        string(t.Status),
			MessageCount:  t.MessageCount,
			LastMessageAt: t.LastMessageAt,
			CreatedAt:     t.CreatedAt,
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// ThreadHistory handles GET /agent/interact?threadId={id}.
func (h *AgentHandler) ThreadHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	raw := r.URL.Query().Get("threadId")
	if raw == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "threadId query parameter is required")
		return
	}
	threadID, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid thread ID")
		return
	}

	thread, err := h.threads.Get(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Thread not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to load thread", err)
		return
	}
	if thread.UserID != userID {
		shared.RespondWithError(w, r, http.StatusForbidden, "Thread belongs to another user")
		return
	}

	logs, err := h.threads.Logs(r.Context(), threadID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to load thread history", err)
		return
	}

	resp := make([]ThreadLogResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, ThreadLogResponse{
			ID:        l.ID,
			UserInput: l.UserInput,
			Response:  l.Response,
			CreatedAt: l.CreatedAt,
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetJob handles GET /agent/jobs/{jobID}.
func (h *AgentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to load job", err)
		return
	}
	if job.UserID != userID {
		// Job existence is not disclosed across users.
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, JobResponse{
		ID:              job.ID,
		Status:          job.Status,
		Intent:          job.Intent,
		Progress:        job.Progress,
		ProgressMessage: job.ProgressMessage,
		Output:          job.Output,
		RetryCount:      job.RetryCount,
		LastError:       redact.String(job.LastError),
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
	})
}

// getUserIDFromContext extracts the authenticated user's UUID from the
// request context, placed there by the authentication middleware.
func getUserIDFromContext(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}
