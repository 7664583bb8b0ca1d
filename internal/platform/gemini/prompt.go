package gemini

import (
	"strings"

	"github.com/rahilrshah/productivity-app/internal/domain"
)

// intentDescriptions drives the prompt's intent menu. Keeping this next to
// the domain intent set means a new intent is a one-line addition here.
var intentDescriptions = []struct {
	intent      domain.Intent
	description string
}{
	{domain.IntentCreateTask, "create a single to-do item"},
	{domain.IntentCourseTask, "create a task belonging to a course (homework, exam, reading)"},
	{domain.IntentCreateRoutine, "create a recurring routine or habit"},
	{domain.IntentScheduleEvent, "schedule something at a time or block time"},
	{domain.IntentReschedule, "move or reschedule an existing item"},
	{domain.IntentFindTime, "find free time or an open slot"},
	{domain.IntentCreateContainer, "create a new course, project, or club"},
	{domain.IntentProjectBreakdown, "break a project down into milestones and tasks"},
}

// buildPrompt assembles the classification prompt. The model is asked for
// strict JSON with a fixed entity vocabulary so the response can be
// validated mechanically.
func buildPrompt(text, contextSummary string) string {
	var b strings.Builder

	b.WriteString("Classify the user's request into exactly one intent and extract entities.\n\n")
	b.WriteString("Intents:\n")
	for _, d := range intentDescriptions {
		b.WriteString("- ")
		b.WriteString(string(d.intent))
		b.WriteString(": ")
		b.WriteString(d.description)
		b.WriteString("\n")
	}

	b.WriteString("\nEntity keys (include only those present in the request): ")
	b.WriteString("title, category, due_date, duration, frequency, parent, priority, target, items\n")

	if contextSummary != "" {
		b.WriteString("\nThe user's current containers:\n")
		b.WriteString(contextSummary)
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with JSON only, in the shape ")
	b.WriteString(`{"intent": "...", "confidence": 0.0, "entities": {}}`)
	b.WriteString("\n\nRequest: ")
	b.WriteString(text)

	return b.String()
}
