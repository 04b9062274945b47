package stage

import "context"

// Handler processes the work items of a single pipeline stage.
//
// Process may fail. OnError is invoked for every failure that is not a
// transient conflict and is best-effort: it records the failure (normally by
// moving the task to the error status) and must not panic.
type Handler interface {
	Process(context.Context, WorkItem) error
	OnError(context.Context, WorkItem, error)
}

// Source fetches the pending work of a single stage.
//
// Implementations return only eligible items, oldest first, at most
// maxResults of them, and an empty batch when nothing is pending. They are
// called on every triggered tick so they must be cheap.
type Source interface {
	FetchBatch(ctx context.Context, maxResults int) (Batch, error)
}

// HealthChecker is implemented by handlers that depend on external tools or
// services.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}

// HandlerFunc adapts plain functions to the Handler contract. A nil onError
// discards failures.
type HandlerFunc struct {
	ProcessFunc func(context.Context, WorkItem) error
	OnErrorFunc func(context.Context, WorkItem, error)
}

func (h HandlerFunc) Process(ctx context.Context, item WorkItem) error {
	if h.ProcessFunc == nil {
		return nil
	}
	return h.ProcessFunc(ctx, item)
}

func (h HandlerFunc) OnError(ctx context.Context, item WorkItem, err error) {
	if h.OnErrorFunc != nil {
		h.OnErrorFunc(ctx, item, err)
	}
}

// SourceFunc adapts a function to the Source contract.
type SourceFunc func(ctx context.Context, maxResults int) (Batch, error)

func (f SourceFunc) FetchBatch(ctx context.Context, maxResults int) (Batch, error) {
	return f(ctx, maxResults)
}
