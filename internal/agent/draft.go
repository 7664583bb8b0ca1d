package agent

import (
	"strings"
	"time"

	"github.com/rahilrshah/productivity-app/internal/classify"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/timeparse"
)

// buildDraft converts the classifier's raw entities into a typed draft,
// resolving dates, durations, frequencies, and container names against the
// user's context. Unresolvable entities are dropped rather than failing the
// turn; the slot-filling loop covers whatever ends up missing.
func buildDraft(c *classify.Classification, containers []domain.ContainerRef, now time.Time) *domain.DraftRecord {
	draft := &domain.DraftRecord{}
	if c == nil {
		return draft
	}

	if title, ok := c.Entities["title"]; ok {
		draft.Title = strings.TrimSpace(title)
	}
	if raw, ok := c.Entities["category"]; ok {
		if cat, ok := domain.ParseCategory(raw); ok {
			draft.Category = cat
		}
	}
	if draft.Category == "" {
		draft.Category = domain.DefaultCategory(c.Intent)
	}

	if raw, ok := c.Entities["due_date"]; ok {
		if t, ok := timeparse.Date(raw, now); ok {
			draft.DueDate = &t
		}
	}
	if raw, ok := c.Entities["when"]; ok && draft.DueDate == nil {
		if t, ok := timeparse.Date(raw, now); ok {
			if c.Intent == domain.IntentScheduleEvent || c.Intent == domain.IntentReschedule {
				draft.ScheduledAt = &t
			} else {
				draft.DueDate = &t
			}
		}
	}
	if raw, ok := c.Entities["duration"]; ok {
		if min, ok := timeparse.DurationMinutes(raw); ok {
			draft.DurationMin = min
		}
	}
	if raw, ok := c.Entities["frequency"]; ok {
		if days, ok := timeparse.Weekdays(raw); ok {
			draft.Days = weekdayInts(days)
		}
	}

	if raw, ok := c.Entities["parent"]; ok {
		if ref, ok := matchContainer(containers, raw); ok {
			id := ref.ID
			draft.ParentID = &id
		}
	}
	if raw, ok := c.Entities["target"]; ok {
		if ref, ok := matchContainer(containers, raw); ok {
			id := ref.ID
			draft.TargetID = &id
		}
	}

	if raw, ok := c.Entities["priority"]; ok {
		draft.Priority = parsePriority(raw)
	}
	if raw, ok := c.Entities["items"]; ok {
		draft.Items = splitItems(raw)
	}
	if notes, ok := c.Entities["notes"]; ok {
		draft.Notes = strings.TrimSpace(notes)
	}

	// Scheduling intents reuse the due date as the scheduled time when the
	// classifier only surfaced one date entity.
	if c.Intent == domain.IntentScheduleEvent && draft.ScheduledAt == nil && draft.DueDate != nil {
		draft.ScheduledAt = draft.DueDate
		draft.DueDate = nil
	}

	return draft
}

// matchContainer resolves free text against the container snapshot by
// case-insensitive containment in either direction. Exactly one candidate
// must match; ambiguity resolves to no match.
func matchContainer(containers []domain.ContainerRef, text string) (domain.ContainerRef, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return domain.ContainerRef{}, false
	}

	var found domain.ContainerRef
	count := 0
	for _, ref := range containers {
		title := strings.ToLower(ref.Title)
		if strings.Contains(title, needle) || strings.Contains(needle, title) {
			found = ref
			count++
		}
	}
	return found, count == 1
}

// parsePriority maps priority phrasing to a numeric rank: 1 is highest.
func parsePriority(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "high", "urgent", "top", "asap", "important":
		return 1
	case "2", "medium", "normal":
		return 2
	case "3", "low", "later":
		return 3
	}
	return 0
}

func splitItems(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	return items
}

func weekdayInts(days []time.Weekday) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}

// summarizeContainers renders the container snapshot as the short context
// string handed to the classifier for name resolution.
func summarizeContainers(containers []domain.ContainerRef) string {
	if len(containers) == 0 {
		return ""
	}

	byCategory := make(map[domain.Category][]string)
	for _, ref := range containers {
		byCategory[ref.Category] = append(byCategory[ref.Category], ref.Title)
	}

	var parts []string
	for _, cat := range []domain.Category{domain.CategoryCourse, domain.CategoryProject, domain.CategoryClub} {
		if titles := byCategory[cat]; len(titles) > 0 {
			parts = append(parts, string(cat)+"s: "+strings.Join(titles, ", "))
		}
	}
	return strings.Join(parts, "; ")
}
