package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/testutils"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJob(t *testing.T, intent domain.Intent, draft *domain.DraftRecord) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(uuid.New(), nil, intent, domain.JobInput{Draft: draft}, 3)
	require.NoError(t, err)
	return job
}

func TestRecordWorkerCreateTask(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	w := NewRecordWorker(records, testLogger())

	due := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	job := newJob(t, domain.IntentCreateTask, &domain.DraftRecord{
		Title:   "Finish homework",
		DueDate: &due,
	})

	result, err := w.ProcessJob(context.Background(), job, Context{UserID: job.UserID}, NopReporter{})
	require.NoError(t, err)
	require.Len(t, result.CreatedRecords, 1)
	assert.False(t, result.NeedsClarification)
	assert.Contains(t, result.Message, "Finish homework")

	created, err := records.Get(context.Background(), result.CreatedRecords[0])
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryTask, created.Category)
	assert.Equal(t, "todo", created.LegacyType)
	require.NotNil(t, created.DueDate)
	assert.True(t, created.DueDate.Equal(due))
}

func TestRecordWorkerCourseTaskAttachesToSoleCourse(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	w := NewRecordWorker(records, testLogger())

	courseID := uuid.New()
	wctx := Context{
		UserID: uuid.New(),
		Containers: []domain.ContainerRef{
			{ID: courseID, Title: "Biology 101", Category: domain.CategoryCourse},
			{ID: uuid.New(), Title: "Robotics Club", Category: domain.CategoryClub},
		},
	}
	job := newJob(t, domain.IntentCourseTask, &domain.DraftRecord{Title: "Lab report"})
	job.UserID = wctx.UserID

	result, err := w.ProcessJob(context.Background(), job, wctx, NopReporter{})
	require.NoError(t, err)

	created, err := records.Get(context.Background(), result.CreatedRecords[0])
	require.NoError(t, err)
	require.NotNil(t, created.ParentID)
	assert.Equal(t, courseID, *created.ParentID)
	assert.Contains(t, result.Message, "Biology 101")
}

func TestRecordWorkerCourseTaskAmbiguousCoursesStayUnattached(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	w := NewRecordWorker(records, testLogger())

	wctx := Context{
		UserID: uuid.New(),
		Containers: []domain.ContainerRef{
			{ID: uuid.New(), Title: "Biology", Category: domain.CategoryCourse},
			{ID: uuid.New(), Title: "Chemistry", Category: domain.CategoryCourse},
		},
	}
	job := newJob(t, domain.IntentCourseTask, &domain.DraftRecord{Title: "Homework"})
	job.UserID = wctx.UserID

	result, err := w.ProcessJob(context.Background(), job, wctx, NopReporter{})
	require.NoError(t, err)

	created, err := records.Get(context.Background(), result.CreatedRecords[0])
	require.NoError(t, err)
	assert.Nil(t, created.ParentID)
}

func TestRecordWorkerCreateRoutine(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	w := NewRecordWorker(records, testLogger())

	job := newJob(t, domain.IntentCreateRoutine, &domain.DraftRecord{
		Title:       "Morning run",
		Days:        []int{1, 3, 5},
		DurationMin: 30,
	})

	result, err := w.ProcessJob(context.Background(), job, Context{UserID: job.UserID}, NopReporter{})
	require.NoError(t, err)

	created, err := records.Get(context.Background(), result.CreatedRecords[0])
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryRoutine, created.Category)
	assert.Equal(t, "1,3,5", created.Metadata["days"])
	assert.Equal(t, 30, created.DurationMin)
	assert.Contains(t, result.Message, "Monday")
	assert.Contains(t, result.Message, "Friday")
}

func TestRecordWorkerMissingTitleFailsPermanently(t *testing.T) {
	t.Parallel()
	w := NewRecordWorker(testutils.NewMemRecordStore(), testLogger())

	job := newJob(t, domain.IntentCreateTask, &domain.DraftRecord{})
	_, err := w.ProcessJob(context.Background(), job, Context{UserID: job.UserID}, NopReporter{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestRecordWorkerStoreFailureIsRetryable(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	records.CreateErr = assert.AnError
	w := NewRecordWorker(records, testLogger())

	job := newJob(t, domain.IntentCreateTask, &domain.DraftRecord{Title: "x"})
	_, err := w.ProcessJob(context.Background(), job, Context{UserID: job.UserID}, NopReporter{})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestCanHandle(t *testing.T) {
	t.Parallel()
	w := NewRecordWorker(testutils.NewMemRecordStore(), testLogger())
	assert.True(t, w.CanHandle(domain.IntentCreateTask))
	assert.True(t, w.CanHandle(domain.IntentCreateRoutine))
	assert.False(t, w.CanHandle(domain.IntentScheduleEvent))
	assert.False(t, w.CanHandle(domain.IntentCreateContainer))
}
