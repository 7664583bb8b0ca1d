package domain

import "testing"

func TestParseIntent(t *testing.T) {
	t.Parallel()
	cases := map[string]Intent{
		"create_task":       IntentCreateTask,
		"course_task":       IntentCourseTask,
		"create_routine":    IntentCreateRoutine,
		"schedule_event":    IntentScheduleEvent,
		"reschedule":        IntentReschedule,
		"find_time":         IntentFindTime,
		"create_container":  IntentCreateContainer,
		"project_breakdown": IntentProjectBreakdown,
		"":                  FallbackIntent,
		"delete_everything": FallbackIntent,
		"CREATE_TASK":       FallbackIntent, // intent strings are exact
	}
	for raw, want := range cases {
		if got := ParseIntent(raw); got != want {
			t.Errorf("ParseIntent(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestWorkerTypeFor(t *testing.T) {
	t.Parallel()
	cases := map[Intent]WorkerType{
		IntentCreateTask:       WorkerTypeRecord,
		IntentCourseTask:       WorkerTypeRecord,
		IntentCreateRoutine:    WorkerTypeRecord,
		IntentScheduleEvent:    WorkerTypeCalendar,
		IntentReschedule:       WorkerTypeCalendar,
		IntentFindTime:         WorkerTypeCalendar,
		IntentCreateContainer:  WorkerTypeContainer,
		IntentProjectBreakdown: WorkerTypeContainer,
		Intent("unknown"):      WorkerTypeRecord,
	}
	for intent, want := range cases {
		if got := WorkerTypeFor(intent); got != want {
			t.Errorf("WorkerTypeFor(%s) = %s, want %s", intent, got, want)
		}
	}
}

func TestDefaultCategory(t *testing.T) {
	t.Parallel()
	cases := map[Intent]Category{
		IntentCourseTask:       CategoryCourse,
		IntentCreateRoutine:    CategoryRoutine,
		IntentProjectBreakdown: CategoryProject,
		IntentCreateTask:       CategoryTask,
		IntentCreateContainer:  "",
	}
	for intent, want := range cases {
		if got := DefaultCategory(intent); got != want {
			t.Errorf("DefaultCategory(%s) = %q, want %q", intent, got, want)
		}
	}
}
