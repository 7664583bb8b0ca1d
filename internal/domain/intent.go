package domain

// Intent represents the classified purpose of a user utterance.
type Intent string

// Possible intent values
const (
	IntentCreateTask       Intent = "create_task"
	IntentCourseTask       Intent = "course_task"
	IntentCreateRoutine    Intent = "create_routine"
	IntentScheduleEvent    Intent = "schedule_event"
	IntentReschedule       Intent = "reschedule"
	IntentFindTime         Intent = "find_time"
	IntentCreateContainer  Intent = "create_container"
	IntentProjectBreakdown Intent = "project_breakdown"
)

// FallbackIntent is the designated intent returned when classification
// produces malformed or unrecognizable output. A simple task creation is
// the lowest-risk interpretation of an unclassifiable utterance.
const FallbackIntent = IntentCreateTask

// WorkerType identifies the category of worker responsible for an intent.
type WorkerType string

// Possible worker types
const (
	WorkerTypeRecord    WorkerType = "record"
	WorkerTypeCalendar  WorkerType = "calendar"
	WorkerTypeContainer WorkerType = "container"
)

// workerTypeByIntent is the static intent-to-worker routing table.
var workerTypeByIntent = map[Intent]WorkerType{
	IntentCreateTask:       WorkerTypeRecord,
	IntentCourseTask:       WorkerTypeRecord,
	IntentCreateRoutine:    WorkerTypeRecord,
	IntentScheduleEvent:    WorkerTypeCalendar,
	IntentReschedule:       WorkerTypeCalendar,
	IntentFindTime:         WorkerTypeCalendar,
	IntentCreateContainer:  WorkerTypeContainer,
	IntentProjectBreakdown: WorkerTypeContainer,
}

// ParseIntent maps a raw intent string from the classifier to a known Intent.
// Unknown values map to the fallback intent so a bad classification never
// becomes a hard error.
func ParseIntent(s string) Intent {
	intent := Intent(s)
	if _, ok := workerTypeByIntent[intent]; ok {
		return intent
	}
	return FallbackIntent
}

// IsValidIntent reports whether the given intent is a known value.
func IsValidIntent(i Intent) bool {
	_, ok := workerTypeByIntent[i]
	return ok
}

// WorkerTypeFor returns the worker type responsible for the given intent.
// Unknown intents route to the record worker, matching the fallback intent.
func WorkerTypeFor(i Intent) WorkerType {
	if wt, ok := workerTypeByIntent[i]; ok {
		return wt
	}
	return WorkerTypeRecord
}

// CreatesContainer reports whether the intent creates a new parent container,
// which makes the category a required field.
func CreatesContainer(i Intent) bool {
	return i == IntentCreateContainer
}

// DefaultCategory returns the category implied by the intent when the user
// did not state one. Container creation has no implied category; the
// orchestrator must ask.
func DefaultCategory(i Intent) Category {
	switch i {
	case IntentCourseTask:
		return CategoryCourse
	case IntentCreateRoutine:
		return CategoryRoutine
	case IntentProjectBreakdown:
		return CategoryProject
	case IntentCreateContainer:
		return ""
	default:
		return CategoryTask
	}
}
