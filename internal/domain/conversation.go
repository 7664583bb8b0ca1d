package domain

import (
	"time"

	"github.com/google/uuid"
)

// Field identifies a required slot that may still be missing from a draft.
type Field string

// Possible slot fields
const (
	FieldTitle    Field = "title"
	FieldCategory Field = "category"
	FieldDueDate  Field = "due_date"
	FieldTarget   Field = "target"
)

// Question returns the clarification prompt for the field.
func (f Field) Question() string {
	switch f {
	case FieldTitle:
		return "What should it be called?"
	case FieldCategory:
		return "Is this a course, project, or club?"
	case FieldDueDate:
		return "When is it due?"
	case FieldTarget:
		return "Which item do you want to move?"
	default:
		return "Can you tell me more?"
	}
}

// DraftRecord is the sparse, partially extracted record built up across
// classification and slot-filling turns. Zero values mean "not provided".
type DraftRecord struct {
	Title       string     `json:"title,omitempty"`
	Category    Category   `json:"category,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	TargetID    *uuid.UUID `json:"target_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	DurationMin int        `json:"duration_min,omitempty"`
	Priority    int        `json:"priority,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Days        []int      `json:"days,omitempty"`
	Items       []string   `json:"items,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MissingFields returns the ordered list of required fields the draft still
// lacks for the given intent. Title is always required; category only when
// the intent creates a new container.
func (d *DraftRecord) MissingFields(intent Intent) []Field {
	var missing []Field
	if d == nil || d.Title == "" {
		missing = append(missing, FieldTitle)
	}
	if CreatesContainer(intent) && (d == nil || d.Category == "") {
		missing = append(missing, FieldCategory)
	}
	return missing
}

// ConversationState tracks an outstanding multi-turn clarification: the
// intent the user started, the draft built so far, and which required fields
// are still open. It is non-nil exactly while a clarification round-trip is
// in flight, and it is persisted with the thread's last turn; any in-memory
// or cached copy is never the source of truth.
type ConversationState struct {
	PendingIntent Intent       `json:"pending_intent,omitempty"`
	Draft         *DraftRecord `json:"draft,omitempty"`
	MissingFields []Field      `json:"missing_fields,omitempty"`
	ContainerHint string       `json:"container_hint,omitempty"`
}

// Pending reports whether a clarification round-trip is outstanding.
func (s *ConversationState) Pending() bool {
	return s != nil && s.PendingIntent != "" && len(s.MissingFields) > 0
}

// Thread status values
type ThreadStatus string

const (
	ThreadStatusActive   ThreadStatus = "active"
	ThreadStatusArchived ThreadStatus = "archived"
)

// Thread is one conversation session with a user.
type Thread struct {
	ID            uuid.UUID    `json:"id"`
	UserID        uuid.UUID    `json:"user_id"`
	Status        ThreadStatus `json:"status"`
	MessageCount  int          `json:"message_count"`
	LastMessageAt time.Time    `json:"last_message_at"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewThread creates an active thread for the user.
func NewThread(userID uuid.UUID) *Thread {
	now := time.Now().UTC()
	return &Thread{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        ThreadStatusActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
}

// ThreadLog is one recorded turn: what the user said, what the agent replied,
// and the conversation state left open after the turn (nil once resolved).
type ThreadLog struct {
	ID        uuid.UUID          `json:"id"`
	ThreadID  uuid.UUID          `json:"thread_id"`
	UserInput string             `json:"user_input"`
	Response  string             `json:"ai_response"`
	State     *ConversationState `json:"context_state,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
