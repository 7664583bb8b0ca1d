package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/rahilrshah/productivity-app/internal/domain"
)

// ProgressEvent describes one observable change in a job's execution:
// a progress step, completion, or failure.
type ProgressEvent struct {
	JobID     uuid.UUID        `json:"job_id"`
	Status    domain.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Emitter publishes progress events to interested observers. Publishing is
// strictly best-effort: implementations must never block job execution or
// let a delivery failure influence job state.
type Emitter interface {
	Publish(event ProgressEvent)
}

// NopEmitter discards all events. Wired when no event channel is configured.
type NopEmitter struct{}

func (NopEmitter) Publish(ProgressEvent) {}
