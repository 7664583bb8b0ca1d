package agent

import (
	"strings"
	"time"

	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/timeparse"
)

// applyAnswer folds a clarification answer into the draft, targeting the
// first missing field. It reports whether the answer fit the field's shape;
// an answer that does not fit leaves the draft unchanged so the caller can
// decide between re-asking and treating the turn as a new request.
//
// After a successful application the missing list is recomputed from the
// draft, so answering one question can only shrink the list, never grow it.
func applyAnswer(state *domain.ConversationState, answer string, containers []domain.ContainerRef, now time.Time) bool {
	if !state.Pending() {
		return false
	}
	if state.Draft == nil {
		state.Draft = &domain.DraftRecord{}
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}

	switch state.MissingFields[0] {
	case domain.FieldTitle:
		// Any non-empty text names the thing.
		state.Draft.Title = answer

	case domain.FieldCategory:
		cat, ok := domain.ParseCategory(answer)
		if !ok || !cat.IsContainer() {
			return false
		}
		state.Draft.Category = cat

	case domain.FieldDueDate:
		t, ok := timeparse.Date(answer, now)
		if !ok {
			return false
		}
		state.Draft.DueDate = &t

	case domain.FieldTarget:
		ref, ok := matchContainer(containers, answer)
		if !ok {
			return false
		}
		id := ref.ID
		state.Draft.TargetID = &id

	default:
		return false
	}

	state.MissingFields = state.Draft.MissingFields(state.PendingIntent)
	return true
}

// looksLikeNewRequest reports whether a turn received mid-clarification reads
// as a fresh request rather than an answer. Multi-clause sentences with verb
// openings restart the conversation; short fragments stay in the slot loop.
func looksLikeNewRequest(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	words := strings.Fields(t)
	if len(words) < 4 {
		return false
	}
	switch words[0] {
	case "add", "create", "make", "schedule", "move", "reschedule", "find",
		"remind", "set", "plan", "break", "start", "new", "i":
		return true
	}
	return false
}
