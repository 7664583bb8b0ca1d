package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/store"
)

// RecordWorker creates task and routine records.
type RecordWorker struct {
	records store.RecordStore
	logger  *slog.Logger
}

// NewRecordWorker creates a RecordWorker backed by the given record store.
func NewRecordWorker(records store.RecordStore, logger *slog.Logger) *RecordWorker {
	return &RecordWorker{
		records: records,
		logger:  logger.With("component", "record_worker"),
	}
}

// WorkerType implements Worker.
func (w *RecordWorker) WorkerType() domain.WorkerType {
	return domain.WorkerTypeRecord
}

// CanHandle implements Worker.
func (w *RecordWorker) CanHandle(intent domain.Intent) bool {
	return domain.WorkerTypeFor(intent) == domain.WorkerTypeRecord
}

// ProcessJob implements Worker.
func (w *RecordWorker) ProcessJob(ctx context.Context, job *domain.Job, wctx Context, progress Reporter) (*Result, error) {
	payload, err := buildPayload(job)
	if err != nil {
		return nil, err
	}

	switch p := payload.(type) {
	case domain.TaskPayload:
		return w.createTask(ctx, wctx, p, progress)
	case domain.RoutinePayload:
		return w.createRoutine(ctx, wctx, p, progress)
	default:
		return nil, Permanent(fmt.Errorf("record worker cannot execute intent %q", job.Intent))
	}
}

func (w *RecordWorker) createTask(ctx context.Context, wctx Context, p domain.TaskPayload, progress Reporter) (*Result, error) {
	progress.Report(ctx, 25, "creating task")

	record, err := domain.NewRecord(wctx.UserID, p.Title, domain.CategoryTask)
	if err != nil {
		return nil, Permanent(fmt.Errorf("building task record: %w", err))
	}
	record.ParentID = p.ParentID
	record.DueDate = p.DueDate
	record.Priority = p.Priority
	record.Notes = p.Notes

	// A course task without an explicit parent attaches to the user's only
	// course when there is exactly one; anything ambiguous stays unattached.
	if record.ParentID == nil && p.Category == domain.CategoryCourse {
		if ref, ok := soleContainer(wctx.Containers, domain.CategoryCourse); ok {
			id := ref.ID
			record.ParentID = &id
		}
	}

	if err := w.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("creating task record: %w", err)
	}

	progress.Report(ctx, 100, "task created")
	w.logger.InfoContext(ctx, "created task record",
		"record_id", record.ID,
		"user_id", wctx.UserID)

	msg := fmt.Sprintf("Created task %q", record.Title)
	if record.DueDate != nil {
		msg += " due " + record.DueDate.Format("Monday, Jan 2")
	}
	if record.ParentID != nil {
		if name := containerName(wctx.Containers, *record.ParentID); name != "" {
			msg += " in " + name
		}
	}
	msg += "."

	return &Result{
		Message:        msg,
		CreatedRecords: []uuid.UUID{record.ID},
	}, nil
}

func (w *RecordWorker) createRoutine(ctx context.Context, wctx Context, p domain.RoutinePayload, progress Reporter) (*Result, error) {
	progress.Report(ctx, 25, "creating routine")

	record, err := domain.NewRecord(wctx.UserID, p.Title, domain.CategoryRoutine)
	if err != nil {
		return nil, Permanent(fmt.Errorf("building routine record: %w", err))
	}
	record.DurationMin = p.DurationMin
	record.Metadata = map[string]string{
		"days": formatDays(p.Days),
	}

	if err := w.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("creating routine record: %w", err)
	}

	progress.Report(ctx, 100, "routine created")
	w.logger.InfoContext(ctx, "created routine record",
		"record_id", record.ID,
		"user_id", wctx.UserID,
		"days", len(p.Days))

	msg := fmt.Sprintf("Created routine %q", record.Title)
	if len(p.Days) > 0 {
		msg += " on " + dayNames(p.Days)
	}
	msg += "."

	return &Result{
		Message:        msg,
		CreatedRecords: []uuid.UUID{record.ID},
	}, nil
}

// formatDays encodes a weekday set as a comma separated list of day numbers,
// Sunday=0, for at-rest storage.
func formatDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func dayNames(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = d.String()
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}
