package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payload conversion errors
var (
	ErrMissingTitle    = errors.New("payload requires a title")
	ErrMissingCategory = errors.New("payload requires a category")
	ErrUnknownIntent   = errors.New("no payload shape for intent")
)

// Payload is the validated, intent-specific shape a worker executes.
// Each intent has exactly one payload variant; the conversion from the sparse
// draft is explicit and deterministic so a job's input can be replayed.
type Payload interface {
	Kind() Intent
}

// TaskPayload creates a single item record, optionally under a container.
type TaskPayload struct {
	Title    string
	Category Category
	ParentID *uuid.UUID
	DueDate  *time.Time
	Priority int
	Notes    string
}

func (p TaskPayload) Kind() Intent {
	if p.Category == CategoryCourse {
		return IntentCourseTask
	}
	return IntentCreateTask
}

// RoutinePayload creates a recurring item with a day-of-week set.
type RoutinePayload struct {
	Title       string
	Days        []time.Weekday
	DurationMin int
}

func (p RoutinePayload) Kind() Intent { return IntentCreateRoutine }

// SchedulePayload places an item at a concrete time.
type SchedulePayload struct {
	Title       string
	ScheduledAt *time.Time
	DurationMin int
	ParentID    *uuid.UUID
}

func (p SchedulePayload) Kind() Intent { return IntentScheduleEvent }

// ReschedulePayload moves an existing record. TargetID may be nil, in which
// case the worker reports a clarification instead of failing.
type ReschedulePayload struct {
	TargetID    *uuid.UUID
	ScheduledAt *time.Time
	DueDate     *time.Time
}

func (p ReschedulePayload) Kind() Intent { return IntentReschedule }

// FindTimePayload asks for open scheduling slots.
type FindTimePayload struct {
	Title       string
	DurationMin int
}

func (p FindTimePayload) Kind() Intent { return IntentFindTime }

// ContainerPayload creates a parent container, optionally seeded with a flat
// list of child items.
type ContainerPayload struct {
	Title    string
	Category Category
	Items    []string
	Metadata map[string]string
}

func (p ContainerPayload) Kind() Intent { return IntentCreateContainer }

// BreakdownPayload builds a full project structure: a container, its
// milestones, and an initial task per milestone.
type BreakdownPayload struct {
	Title      string
	Milestones []string
}

func (p BreakdownPayload) Kind() Intent { return IntentProjectBreakdown }

// BuildPayload converts the sparse draft into the payload variant for the
// intent, validating required fields and applying intent defaults. The
// conversion is pure: the same intent and draft always produce the same
// payload, independent of store state.
func BuildPayload(intent Intent, draft *DraftRecord) (Payload, error) {
	if draft == nil {
		draft = &DraftRecord{}
	}

	switch intent {
	case IntentCreateTask, IntentCourseTask:
		if draft.Title == "" {
			return nil, ErrMissingTitle
		}
		category := draft.Category
		if category == "" {
			category = DefaultCategory(intent)
		}
		return TaskPayload{
			Title:    draft.Title,
			Category: category,
			ParentID: draft.ParentID,
			DueDate:  draft.DueDate,
			Priority: draft.Priority,
			Notes:    draft.Notes,
		}, nil

	case IntentCreateRoutine:
		if draft.Title == "" {
			return nil, ErrMissingTitle
		}
		days := make([]time.Weekday, 0, len(draft.Days))
		for _, d := range draft.Days {
			if d >= 0 && d <= 6 {
				days = append(days, time.Weekday(d))
			}
		}
		return RoutinePayload{
			Title:       draft.Title,
			Days:        days,
			DurationMin: draft.DurationMin,
		}, nil

	case IntentScheduleEvent:
		if draft.Title == "" {
			return nil, ErrMissingTitle
		}
		return SchedulePayload{
			Title:       draft.Title,
			ScheduledAt: draft.ScheduledAt,
			DurationMin: draft.DurationMin,
			ParentID:    draft.ParentID,
		}, nil

	case IntentReschedule:
		return ReschedulePayload{
			TargetID:    draft.TargetID,
			ScheduledAt: draft.ScheduledAt,
			DueDate:     draft.DueDate,
		}, nil

	case IntentFindTime:
		return FindTimePayload{
			Title:       draft.Title,
			DurationMin: draft.DurationMin,
		}, nil

	case IntentCreateContainer:
		if draft.Title == "" {
			return nil, ErrMissingTitle
		}
		if draft.Category == "" {
			return nil, ErrMissingCategory
		}
		if !draft.Category.IsContainer() {
			return nil, fmt.Errorf("%w: %q is not a container category", ErrInvalidCategory, draft.Category)
		}
		return ContainerPayload{
			Title:    draft.Title,
			Category: draft.Category,
			Items:    draft.Items,
			Metadata: draft.Metadata,
		}, nil

	case IntentProjectBreakdown:
		if draft.Title == "" {
			return nil, ErrMissingTitle
		}
		return BreakdownPayload{
			Title:      draft.Title,
			Milestones: draft.Items,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}
}
