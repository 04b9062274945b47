package library

import (
	"context"
	"log/slog"

	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
)

// ProcessFunc does the work of one task and returns the status to complete
// it with.
type ProcessFunc func(ctx context.Context, item stage.WorkItem) (Status, error)

// TaskHandler adapts a ProcessFunc to the stage.Handler contract on top of
// the task table: success completes the task with the returned status and
// failures move it to error. Both transitions are version-checked.
type TaskHandler struct {
	store   *Store
	name    stage.Name
	process ProcessFunc
	logger  *slog.Logger
	health  func(context.Context) stage.Health
}

// NewTaskHandler constructs a TaskHandler for the named stage.
func NewTaskHandler(store *Store, name stage.Name, process ProcessFunc, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TaskHandler{store: store, name: name, process: process, logger: logger}
}

// WithHealth attaches a readiness probe reported through HealthCheck.
func (h *TaskHandler) WithHealth(fn func(context.Context) stage.Health) *TaskHandler {
	h.health = fn
	return h
}

// Process runs the stage work and completes the task.
func (h *TaskHandler) Process(ctx context.Context, item stage.WorkItem) error {
	status, err := h.process(ctx, item)
	if err != nil {
		return err
	}
	if status == "" {
		status = StatusDone
	}
	return h.store.CompleteTask(ctx, item.ID, item.Version, status)
}

// OnError marks the task failed. A task that changed since it was fetched is
// left for the next run.
func (h *TaskHandler) OnError(ctx context.Context, item stage.WorkItem, cause error) {
	if err := h.store.FailTask(ctx, item.ID, item.Version, cause); err != nil {
		level := slog.LevelError
		if services.IsConflict(err) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "record task failure",
			logging.String(logging.FieldStage, string(h.name)),
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(err),
		)
	}
}

// HealthCheck reports the attached probe, or healthy when none is set.
func (h *TaskHandler) HealthCheck(ctx context.Context) stage.Health {
	if h.health == nil {
		return stage.Healthy(string(h.name))
	}
	return h.health(ctx)
}
