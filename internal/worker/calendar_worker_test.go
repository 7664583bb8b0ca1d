package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/testutils"
)

func TestCalendarWorkerScheduleEvent(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	w := NewCalendarWorker(records, testLogger())

	at := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	job := newJob(t, domain.IntentScheduleEvent, &domain.DraftRecord{
		Title:       "Study session",
		ScheduledAt: &at,
		DurationMin: 90,
	})

	result, err := w.ProcessJob(context.Background(), job, Context{UserID: job.UserID}, NopReporter{})
	require.NoError(t, err)
	require.Len(t, result.CreatedRecords, 1)

	created, err := records.Get(context.Background(), result.CreatedRecords[0])
	require.NoError(t, err)
	require.NotNil(t, created.ScheduledAt)
	assert.True(t, created.ScheduledAt.Equal(at))
	assert.Equal(t, 90, created.DurationMin)
	assert.Contains(t, result.Message, "90 min")
}

func TestCalendarWorkerRescheduleWithoutTargetAsks(t *testing.T) {
	t.Parallel()
	w := NewCalendarWorker(testutils.NewMemRecordStore(), testLogger())

	job := newJob(t, domain.IntentReschedule, &domain.DraftRecord{})
	result, err := w.ProcessJob(context.Background(), job, Context{UserID: job.UserID}, NopReporter{})
	require.NoError(t, err)
	assert.True(t, result.NeedsClarification)
	require.Len(t, result.MissingFields, 1)
	assert.Equal(t, domain.FieldTarget, result.MissingFields[0])
	assert.Equal(t, "Which item do you want to move?", result.Message)
}

func TestCalendarWorkerReschedule(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	w := NewCalendarWorker(records, testLogger())

	userID := uuid.New()
	target, err := domain.NewRecord(userID, "Essay", domain.CategoryTask)
	require.NoError(t, err)
	require.NoError(t, records.Create(context.Background(), target))

	newDue := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	job := newJob(t, domain.IntentReschedule, &domain.DraftRecord{
		TargetID: &target.ID,
		DueDate:  &newDue,
	})
	job.UserID = userID

	result, err := w.ProcessJob(context.Background(), job, Context{UserID: userID}, NopReporter{})
	require.NoError(t, err)
	require.Len(t, result.UpdatedRecords, 1)
	assert.Equal(t, target.ID, result.UpdatedRecords[0])

	updated, err := records.Get(context.Background(), target.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.DueDate)
	assert.True(t, updated.DueDate.Equal(newDue))
}

func TestCalendarWorkerRescheduleOtherUsersRecordFailsPermanently(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	w := NewCalendarWorker(records, testLogger())

	target, err := domain.NewRecord(uuid.New(), "Someone else's", domain.CategoryTask)
	require.NoError(t, err)
	require.NoError(t, records.Create(context.Background(), target))

	job := newJob(t, domain.IntentReschedule, &domain.DraftRecord{TargetID: &target.ID})

	_, err = w.ProcessJob(context.Background(), job, Context{UserID: uuid.New()}, NopReporter{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestCalendarWorkerRescheduleMissingTargetFailsPermanently(t *testing.T) {
	t.Parallel()
	w := NewCalendarWorker(testutils.NewMemRecordStore(), testLogger())

	missing := uuid.New()
	job := newJob(t, domain.IntentReschedule, &domain.DraftRecord{TargetID: &missing})

	_, err := w.ProcessJob(context.Background(), job, Context{UserID: job.UserID}, NopReporter{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestCalendarWorkerFindTime(t *testing.T) {
	t.Parallel()
	records := testutils.NewMemRecordStore()
	w := NewCalendarWorker(records, testLogger())
	now := time.Date(2026, 9, 2, 15, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	userID := uuid.New()

	// Fill tomorrow with five scheduled items so it reads as busy.
	busyDay := time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r, err := domain.NewRecord(userID, "meeting", domain.CategoryTask)
		require.NoError(t, err)
		at := busyDay.Add(time.Duration(i) * time.Hour)
		r.ScheduledAt = &at
		require.NoError(t, records.Create(context.Background(), r))
	}

	job := newJob(t, domain.IntentFindTime, &domain.DraftRecord{Title: "studying"})
	job.UserID = userID

	result, err := w.ProcessJob(context.Background(), job, Context{UserID: userID}, NopReporter{})
	require.NoError(t, err)
	assert.Contains(t, result.Message, `"studying"`)
	assert.NotContains(t, result.Message, "Thursday, Sep 3")
	assert.Contains(t, result.Message, "Friday, Sep 4")
}

func TestCalendarWorkerFindTimeEmptySchedule(t *testing.T) {
	t.Parallel()
	w := NewCalendarWorker(testutils.NewMemRecordStore(), testLogger())

	job := newJob(t, domain.IntentFindTime, &domain.DraftRecord{})
	result, err := w.ProcessJob(context.Background(), job, Context{UserID: job.UserID}, NopReporter{})
	require.NoError(t, err)
	assert.Contains(t, result.Message, "You have room")
}
