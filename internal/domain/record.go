package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category classifies a record in the hierarchy.
type Category string

// Possible record categories
const (
	CategoryCourse  Category = "course"
	CategoryProject Category = "project"
	CategoryClub    Category = "club"
	CategoryRoutine Category = "routine"
	CategoryTask    Category = "task"
)

// Common validation errors for Record
var (
	ErrEmptyRecordID     = errors.New("record ID cannot be empty")
	ErrEmptyRecordUserID = errors.New("record user ID cannot be empty")
	ErrEmptyRecordTitle  = errors.New("record title cannot be empty")
	ErrInvalidCategory   = errors.New("invalid record category")
)

// legacyTypeByCategory maps categories to the type identifiers the record
// store still uses at rest.
var legacyTypeByCategory = map[Category]string{
	CategoryCourse:  "class",
	CategoryProject: "goal",
	CategoryClub:    "club",
	CategoryRoutine: "routine",
	CategoryTask:    "todo",
}

// ParseCategory matches free text against the known categories.
// Returns false if the text does not name a category.
func ParseCategory(s string) (Category, bool) {
	switch Category(normalizeCategory(s)) {
	case CategoryCourse:
		return CategoryCourse, true
	case CategoryProject:
		return CategoryProject, true
	case CategoryClub:
		return CategoryClub, true
	case CategoryRoutine:
		return CategoryRoutine, true
	case CategoryTask:
		return CategoryTask, true
	}
	return "", false
}

func normalizeCategory(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	switch string(out) {
	case "class", "classes", "courses":
		return "course"
	case "projects", "goal":
		return "project"
	case "clubs":
		return "club"
	case "habit", "routines":
		return "routine"
	case "todo", "tasks":
		return "task"
	}
	return string(out)
}

// IsValidCategory reports whether the category is a known value.
func IsValidCategory(c Category) bool {
	_, ok := legacyTypeByCategory[c]
	return ok
}

// LegacyType returns the at-rest type identifier for the category.
func (c Category) LegacyType() string {
	if t, ok := legacyTypeByCategory[c]; ok {
		return t
	}
	return legacyTypeByCategory[CategoryTask]
}

// IsContainer reports whether records of this category group child records.
func (c Category) IsContainer() bool {
	return c == CategoryCourse || c == CategoryProject || c == CategoryClub
}

// ContainerRef is a lightweight snapshot of a user's container used for
// name resolution during classification and worker dispatch.
type ContainerRef struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Category Category  `json:"category"`
}

// Record is the structured entity ultimately created from a user utterance:
// a container (course/project/club) or an item (task, routine, scheduled
// event) belonging to one.
type Record struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	ParentID    *uuid.UUID        `json:"parent_id,omitempty"`
	Title       string            `json:"title"`
	Category    Category          `json:"category"`
	LegacyType  string            `json:"legacy_type"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	DurationMin int               `json:"duration_min,omitempty"`
	Priority    int               `json:"priority,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewRecord creates a record with a fresh ID and timestamps.
// Returns an error if validation fails.
func NewRecord(userID uuid.UUID, title string, category Category) (*Record, error) {
	now := time.Now().UTC()
	r := &Record{
		ID:         uuid.New(),
		UserID:     userID,
		Title:      title,
		Category:   category,
		LegacyType: category.LegacyType(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the record's required fields.
func (r *Record) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyRecordID
	}
	if r.UserID == uuid.Nil {
		return ErrEmptyRecordUserID
	}
	if r.Title == "" {
		return ErrEmptyRecordTitle
	}
	if !IsValidCategory(r.Category) {
		return ErrInvalidCategory
	}
	return nil
}

// Ref returns a ContainerRef snapshot of the record.
func (r *Record) Ref() ContainerRef {
	return ContainerRef{ID: r.ID, Title: r.Title, Category: r.Category}
}
