package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuildPayloadTask(t *testing.T) {
	t.Parallel()
	due := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	parentID := uuid.New()
	draft := &DraftRecord{
		Title:    "Finish homework",
		ParentID: &parentID,
		DueDate:  &due,
		Priority: 1,
	}

	payload, err := BuildPayload(IntentCourseTask, draft)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	task, ok := payload.(TaskPayload)
	if !ok {
		t.Fatalf("Expected TaskPayload, got %T", payload)
	}
	if task.Title != "Finish homework" {
		t.Errorf("Unexpected title %q", task.Title)
	}
	if task.Category != CategoryCourse {
		t.Errorf("Expected implied course category, got %s", task.Category)
	}
	if task.DueDate == nil || !task.DueDate.Equal(due) {
		t.Errorf("Unexpected due date %v", task.DueDate)
	}
	if task.Kind() != IntentCourseTask {
		t.Errorf("Expected kind course_task, got %s", task.Kind())
	}
}

func TestBuildPayloadMissingTitle(t *testing.T) {
	t.Parallel()
	for _, intent := range []Intent{
		IntentCreateTask, IntentCourseTask, IntentCreateRoutine,
		IntentScheduleEvent, IntentCreateContainer, IntentProjectBreakdown,
	} {
		if _, err := BuildPayload(intent, &DraftRecord{}); !errors.Is(err, ErrMissingTitle) {
			t.Errorf("BuildPayload(%s, empty) error = %v, want ErrMissingTitle", intent, err)
		}
	}
}

func TestBuildPayloadContainer(t *testing.T) {
	t.Parallel()

	// Category is required for container creation
	_, err := BuildPayload(IntentCreateContainer, &DraftRecord{Title: "Biology"})
	if !errors.Is(err, ErrMissingCategory) {
		t.Fatalf("Expected ErrMissingCategory, got %v", err)
	}

	// Non-container categories are rejected
	_, err = BuildPayload(IntentCreateContainer, &DraftRecord{Title: "Biology", Category: CategoryTask})
	if !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("Expected ErrInvalidCategory, got %v", err)
	}

	payload, err := BuildPayload(IntentCreateContainer, &DraftRecord{
		Title:    "Biology",
		Category: CategoryCourse,
		Items:    []string{"Read chapter 1", "Lab report"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	container := payload.(ContainerPayload)
	if container.Category != CategoryCourse || len(container.Items) != 2 {
		t.Errorf("Unexpected container payload %+v", container)
	}
}

func TestBuildPayloadRoutineDays(t *testing.T) {
	t.Parallel()
	payload, err := BuildPayload(IntentCreateRoutine, &DraftRecord{
		Title: "Gym",
		Days:  []int{1, 3, 5, 9, -1}, // out-of-range days dropped
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	routine := payload.(RoutinePayload)
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	if len(routine.Days) != len(want) {
		t.Fatalf("Expected %d days, got %d", len(want), len(routine.Days))
	}
	for i, d := range want {
		if routine.Days[i] != d {
			t.Errorf("Day %d = %v, want %v", i, routine.Days[i], d)
		}
	}
}

func TestBuildPayloadRescheduleWithoutTarget(t *testing.T) {
	t.Parallel()

	// A missing target is not a conversion error; the worker reports the
	// clarification.
	payload, err := BuildPayload(IntentReschedule, &DraftRecord{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p := payload.(ReschedulePayload); p.TargetID != nil {
		t.Errorf("Expected nil target, got %v", p.TargetID)
	}
}

func TestBuildPayloadUnknownIntent(t *testing.T) {
	t.Parallel()
	_, err := BuildPayload(Intent("mystery"), &DraftRecord{Title: "x"})
	if !errors.Is(err, ErrUnknownIntent) {
		t.Fatalf("Expected ErrUnknownIntent, got %v", err)
	}
}

func TestBuildPayloadNilDraft(t *testing.T) {
	t.Parallel()
	if _, err := BuildPayload(IntentCreateTask, nil); !errors.Is(err, ErrMissingTitle) {
		t.Fatalf("Expected ErrMissingTitle for nil draft, got %v", err)
	}
	if _, err := BuildPayload(IntentFindTime, nil); err != nil {
		t.Fatalf("Expected find_time to accept nil draft, got %v", err)
	}
}

func TestBuildPayloadDeterministic(t *testing.T) {
	t.Parallel()
	draft := &DraftRecord{Title: "Essay", Items: []string{"Outline", "Draft"}}

	a, err := BuildPayload(IntentProjectBreakdown, draft)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	b, err := BuildPayload(IntentProjectBreakdown, draft)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	pa, pb := a.(BreakdownPayload), b.(BreakdownPayload)
	if pa.Title != pb.Title || len(pa.Milestones) != len(pb.Milestones) {
		t.Error("Expected identical payloads from identical inputs")
	}
}
