package notifications

import (
	"context"
	"errors"
	"log/slog"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
)

// Describer turns a task ref into something a person recognises, such as the
// file path of a media row. It returns ref unchanged when nothing better is
// known.
type Describer func(ctx context.Context, ref string) string

type notifyingHandler struct {
	stage.Handler
	name     stage.Name
	svc      Service
	describe Describer
	failures bool
	unmatch  bool
	logger   *slog.Logger
}

// Notify wraps h so failed items raise an alert after the wrapped OnError
// has recorded them. Unmatched metadata-video items are reported separately.
// h is returned unchanged when every alert is disabled.
func Notify(name stage.Name, h stage.Handler, svc Service, cfg config.Notifications, describe Describer, logger *slog.Logger) stage.Handler {
	if svc == nil || (!cfg.NotifyTaskErrors && !cfg.NotifyUnmatched) {
		return h
	}
	if _, ok := svc.(noopService); ok {
		return h
	}
	if describe == nil {
		describe = func(_ context.Context, ref string) string { return ref }
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &notifyingHandler{
		Handler:  h,
		name:     name,
		svc:      svc,
		describe: describe,
		failures: cfg.NotifyTaskErrors,
		unmatch:  cfg.NotifyUnmatched,
		logger:   logging.NewComponentLogger(logger, "notifications"),
	}
}

func (h *notifyingHandler) OnError(ctx context.Context, item stage.WorkItem, err error) {
	h.Handler.OnError(ctx, item, err)

	var sendErr error
	switch {
	case h.name == stage.MetadataVideo && errors.Is(err, services.ErrNotFound):
		if !h.unmatch {
			return
		}
		sendErr = h.svc.NotifyUnmatched(ctx, h.describe(ctx, item.Ref))
	case h.failures:
		sendErr = h.svc.NotifyTaskFailed(ctx, string(h.name), h.describe(ctx, item.Ref), err)
	default:
		return
	}
	if sendErr != nil {
		h.logger.Warn("notification failed",
			logging.String(logging.FieldStage, string(h.name)),
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(sendErr),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

// HealthCheck forwards to the wrapped handler when it reports health.
func (h *notifyingHandler) HealthCheck(ctx context.Context) stage.Health {
	if checker, ok := h.Handler.(stage.HealthChecker); ok {
		return checker.HealthCheck(ctx)
	}
	return stage.Healthy(string(h.name))
}
