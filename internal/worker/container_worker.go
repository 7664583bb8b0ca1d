package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/store"
	"github.com/rahilrshah/productivity-app/internal/timeparse"
)

// defaultMilestones is the project structure used when the user asked for a
// breakdown without naming phases.
var defaultMilestones = []string{"Planning", "Execution", "Review"}

// ContainerWorker creates container records and full project structures.
type ContainerWorker struct {
	records store.RecordStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewContainerWorker creates a ContainerWorker backed by the given record store.
func NewContainerWorker(records store.RecordStore, logger *slog.Logger) *ContainerWorker {
	return &ContainerWorker{
		records: records,
		logger:  logger.With("component", "container_worker"),
		now:     time.Now,
	}
}

// WorkerType implements Worker.
func (w *ContainerWorker) WorkerType() domain.WorkerType {
	return domain.WorkerTypeContainer
}

// CanHandle implements Worker.
func (w *ContainerWorker) CanHandle(intent domain.Intent) bool {
	return domain.WorkerTypeFor(intent) == domain.WorkerTypeContainer
}

// ProcessJob implements Worker.
func (w *ContainerWorker) ProcessJob(ctx context.Context, job *domain.Job, wctx Context, progress Reporter) (*Result, error) {
	payload, err := buildPayload(job)
	if err != nil {
		return nil, err
	}

	switch p := payload.(type) {
	case domain.ContainerPayload:
		return w.createContainer(ctx, wctx, p, progress)
	case domain.BreakdownPayload:
		return w.breakdownProject(ctx, wctx, p, progress)
	default:
		return nil, Permanent(fmt.Errorf("container worker cannot execute intent %q", job.Intent))
	}
}

func (w *ContainerWorker) createContainer(ctx context.Context, wctx Context, p domain.ContainerPayload, progress Reporter) (*Result, error) {
	progress.Report(ctx, 10, "creating "+string(p.Category))

	container, err := domain.NewRecord(wctx.UserID, p.Title, p.Category)
	if err != nil {
		return nil, Permanent(fmt.Errorf("building container record: %w", err))
	}
	container.Metadata = containerMetadata(p.Category, p.Metadata, w.now())

	batch := []*domain.Record{container}
	created := []uuid.UUID{container.ID}

	// Seed the child items, reporting proportional progress across them.
	for i, title := range p.Items {
		item, err := domain.NewRecord(wctx.UserID, title, domain.CategoryTask)
		if err != nil {
			return nil, Permanent(fmt.Errorf("building child item %q: %w", title, err))
		}
		parentID := container.ID
		item.ParentID = &parentID
		batch = append(batch, item)
		created = append(created, item.ID)
		progress.Report(ctx, 10+(80*(i+1))/len(p.Items),
			fmt.Sprintf("added %d of %d items", i+1, len(p.Items)))
	}

	// The container and its items land together or not at all.
	if err := w.records.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("creating %s %q: %w", p.Category, p.Title, err)
	}

	progress.Report(ctx, 100, string(p.Category)+" created")
	w.logger.InfoContext(ctx, "created container",
		"record_id", container.ID,
		"user_id", wctx.UserID,
		"category", p.Category,
		"items", len(p.Items))

	msg := fmt.Sprintf("Created %s %q", p.Category, container.Title)
	if len(p.Items) > 0 {
		msg += fmt.Sprintf(" with %d items", len(p.Items))
	}
	msg += "."

	return &Result{
		Message:        msg,
		CreatedRecords: created,
	}, nil
}

func (w *ContainerWorker) breakdownProject(ctx context.Context, wctx Context, p domain.BreakdownPayload, progress Reporter) (*Result, error) {
	progress.Report(ctx, 10, "creating project")

	milestones := p.Milestones
	if len(milestones) == 0 {
		milestones = defaultMilestones
	}

	project, err := domain.NewRecord(wctx.UserID, p.Title, domain.CategoryProject)
	if err != nil {
		return nil, Permanent(fmt.Errorf("building project record: %w", err))
	}

	batch := []*domain.Record{project}
	created := []uuid.UUID{project.ID}
	projectID := project.ID

	for i, title := range milestones {
		milestone, err := domain.NewRecord(wctx.UserID, title, domain.CategoryTask)
		if err != nil {
			return nil, Permanent(fmt.Errorf("building milestone %q: %w", title, err))
		}
		milestone.ParentID = &projectID
		milestone.Metadata = map[string]string{"milestone": "true"}
		batch = append(batch, milestone)
		created = append(created, milestone.ID)

		// Each milestone gets a starter task so the project is immediately
		// actionable.
		task, err := domain.NewRecord(wctx.UserID, "Start: "+title, domain.CategoryTask)
		if err != nil {
			return nil, Permanent(fmt.Errorf("building milestone task: %w", err))
		}
		milestoneID := milestone.ID
		task.ParentID = &milestoneID
		batch = append(batch, task)
		created = append(created, task.ID)

		progress.Report(ctx, 10+(85*(i+1))/len(milestones),
			fmt.Sprintf("built milestone %d of %d", i+1, len(milestones)))
	}

	// The whole structure lands atomically.
	if err := w.records.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("creating project %q: %w", p.Title, err)
	}

	progress.Report(ctx, 100, "project structure created")
	w.logger.InfoContext(ctx, "created project breakdown",
		"record_id", project.ID,
		"user_id", wctx.UserID,
		"milestones", len(milestones))

	return &Result{
		Message: fmt.Sprintf("Created project %q with %d milestones and starter tasks.",
			project.Title, len(milestones)),
		CreatedRecords: created,
	}, nil
}

// containerMetadata merges user-provided metadata with category defaults.
// Course containers get the current academic term stamped on them.
func containerMetadata(category domain.Category, extra map[string]string, now time.Time) map[string]string {
	md := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		md[k] = v
	}
	if category == domain.CategoryCourse {
		if _, ok := md["semester"]; !ok {
			md["semester"] = timeparse.Semester(now)
		}
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
