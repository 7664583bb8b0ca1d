package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/store"
)

// Days with this many or more scheduled items are considered full by the
// find-time scan.
const busyDayThreshold = 5

// findTimeWindowDays is how far ahead the find-time scan looks.
const findTimeWindowDays = 7

// CalendarWorker executes scheduling operations: placing time blocks,
// moving existing records, and finding open slots.
type CalendarWorker struct {
	records store.RecordStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewCalendarWorker creates a CalendarWorker backed by the given record store.
func NewCalendarWorker(records store.RecordStore, logger *slog.Logger) *CalendarWorker {
	return &CalendarWorker{
		records: records,
		logger:  logger.With("component", "calendar_worker"),
		now:     time.Now,
	}
}

// WorkerType implements Worker.
func (w *CalendarWorker) WorkerType() domain.WorkerType {
	return domain.WorkerTypeCalendar
}

// CanHandle implements Worker.
func (w *CalendarWorker) CanHandle(intent domain.Intent) bool {
	return domain.WorkerTypeFor(intent) == domain.WorkerTypeCalendar
}

// ProcessJob implements Worker.
func (w *CalendarWorker) ProcessJob(ctx context.Context, job *domain.Job, wctx Context, progress Reporter) (*Result, error) {
	payload, err := buildPayload(job)
	if err != nil {
		return nil, err
	}

	switch p := payload.(type) {
	case domain.SchedulePayload:
		return w.scheduleEvent(ctx, wctx, p, progress)
	case domain.ReschedulePayload:
		return w.reschedule(ctx, wctx, p, progress)
	case domain.FindTimePayload:
		return w.findTime(ctx, wctx, p, progress)
	default:
		return nil, Permanent(fmt.Errorf("calendar worker cannot execute intent %q", job.Intent))
	}
}

func (w *CalendarWorker) scheduleEvent(ctx context.Context, wctx Context, p domain.SchedulePayload, progress Reporter) (*Result, error) {
	progress.Report(ctx, 25, "scheduling event")

	record, err := domain.NewRecord(wctx.UserID, p.Title, domain.CategoryTask)
	if err != nil {
		return nil, Permanent(fmt.Errorf("building scheduled record: %w", err))
	}
	record.ScheduledAt = p.ScheduledAt
	record.DurationMin = p.DurationMin
	record.ParentID = p.ParentID

	if err := w.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("creating scheduled record: %w", err)
	}

	progress.Report(ctx, 100, "event scheduled")
	w.logger.InfoContext(ctx, "scheduled event",
		"record_id", record.ID,
		"user_id", wctx.UserID)

	msg := fmt.Sprintf("Scheduled %q", record.Title)
	if record.ScheduledAt != nil {
		msg += " for " + record.ScheduledAt.Format("Monday, Jan 2")
	}
	if record.DurationMin > 0 {
		msg += fmt.Sprintf(" (%d min)", record.DurationMin)
	}
	msg += "."

	return &Result{
		Message:        msg,
		CreatedRecords: []uuid.UUID{record.ID},
	}, nil
}

func (w *CalendarWorker) reschedule(ctx context.Context, wctx Context, p domain.ReschedulePayload, progress Reporter) (*Result, error) {
	// Without a resolved target there is nothing to move; report the open
	// question instead of failing so the orchestrator can ask.
	if p.TargetID == nil {
		return &Result{
			Message:            domain.FieldTarget.Question(),
			NeedsClarification: true,
			MissingFields:      []domain.Field{domain.FieldTarget},
		}, nil
	}

	progress.Report(ctx, 25, "moving item")

	record, err := w.records.Get(ctx, *p.TargetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, Permanent(fmt.Errorf("reschedule target %s: %w", *p.TargetID, err))
		}
		return nil, fmt.Errorf("loading reschedule target: %w", err)
	}
	if record.UserID != wctx.UserID {
		return nil, Permanent(fmt.Errorf("reschedule target %s does not belong to user", *p.TargetID))
	}

	if p.ScheduledAt != nil {
		record.ScheduledAt = p.ScheduledAt
	}
	if p.DueDate != nil {
		record.DueDate = p.DueDate
	}
	record.UpdatedAt = w.now().UTC()

	if err := w.records.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("updating rescheduled record: %w", err)
	}

	progress.Report(ctx, 100, "item moved")
	w.logger.InfoContext(ctx, "rescheduled record",
		"record_id", record.ID,
		"user_id", wctx.UserID)

	msg := fmt.Sprintf("Moved %q", record.Title)
	switch {
	case p.ScheduledAt != nil:
		msg += " to " + p.ScheduledAt.Format("Monday, Jan 2")
	case p.DueDate != nil:
		msg += " to " + p.DueDate.Format("Monday, Jan 2")
	}
	msg += "."

	return &Result{
		Message:        msg,
		UpdatedRecords: []uuid.UUID{record.ID},
	}, nil
}

func (w *CalendarWorker) findTime(ctx context.Context, wctx Context, p domain.FindTimePayload, progress Reporter) (*Result, error) {
	progress.Report(ctx, 25, "scanning schedule")

	from := midnightUTC(w.now())
	to := from.AddDate(0, 0, findTimeWindowDays)

	scheduled, err := w.records.ListScheduledBetween(ctx, wctx.UserID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scanning scheduled records: %w", err)
	}

	perDay := make(map[string]int)
	for _, r := range scheduled {
		if r.ScheduledAt == nil {
			continue
		}
		perDay[r.ScheduledAt.UTC().Format("2006-01-02")]++
	}

	var open []string
	for d := 0; d < findTimeWindowDays; d++ {
		day := from.AddDate(0, 0, d)
		if perDay[day.Format("2006-01-02")] < busyDayThreshold {
			open = append(open, day.Format("Monday, Jan 2"))
		}
	}

	progress.Report(ctx, 100, "scan complete")
	w.logger.InfoContext(ctx, "find-time scan complete",
		"user_id", wctx.UserID,
		"open_days", len(open))

	subject := "it"
	if p.Title != "" {
		subject = fmt.Sprintf("%q", p.Title)
	}
	if len(open) == 0 {
		return &Result{
			Message: fmt.Sprintf("Your next %d days look full; no obvious slot for %s.", findTimeWindowDays, subject),
		}, nil
	}
	return &Result{
		Message: fmt.Sprintf("You have room for %s on %s.", subject, strings.Join(open, "; ")),
	}, nil
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
