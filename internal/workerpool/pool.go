package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
)

// ErrNoWorkers is returned when Run is asked to process a batch with no workers.
var ErrNoWorkers = errors.New("workerpool: worker count must be positive")

// Outcome classifies how a single item finished.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeConflict  Outcome = "conflict"
)

// Summary reports what happened to a batch.
type Summary struct {
	Attempted int
	Succeeded int
	Failed    int
	Conflicts int
	Duration  time.Duration
}

// Skipped is the number of items never attempted because the context was
// cancelled while the batch was draining.
func (s Summary) Skipped(batchSize int) int {
	if batchSize <= s.Attempted {
		return 0
	}
	return batchSize - s.Attempted
}

// Observer is notified after every attempted item.
type Observer func(item stage.WorkItem, outcome Outcome, elapsed time.Duration)

type options struct {
	logger   *slog.Logger
	observer Observer
}

// Option configures a Run call.
type Option func(*options)

// WithLogger sets the logger used for per-item diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers a callback invoked once per attempted item.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

type counters struct {
	attempted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	conflicts atomic.Int64
}

// Run processes every item of batch with up to workers concurrent workers and
// blocks until all of them exit. With a single worker (or a single item) the
// items are processed inline on the calling goroutine.
//
// Once ctx is cancelled workers stop taking new items; items already handed
// to a handler run to completion under the cancelled context.
func Run(ctx context.Context, batch stage.Batch, workers int, handler stage.Handler, opts ...Option) (Summary, error) {
	if workers <= 0 {
		return Summary{}, ErrNoWorkers
	}
	if handler == nil {
		return Summary{}, errors.New("workerpool: handler is nil")
	}
	cfg := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	start := time.Now()
	if batch.Empty() {
		return Summary{Duration: time.Since(start)}, nil
	}

	queue := make(chan stage.WorkItem, len(batch))
	for _, item := range batch {
		queue <- item
	}
	close(queue)

	var stats counters
	w := &worker{handler: handler, opts: cfg, stats: &stats}

	count := min(workers, len(batch))
	if count == 1 {
		w.drain(ctx, queue)
	} else {
		var wg sync.WaitGroup
		wg.Add(count)
		for range count {
			go func() {
				defer wg.Done()
				w.drain(ctx, queue)
			}()
		}
		wg.Wait()
	}

	return Summary{
		Attempted: int(stats.attempted.Load()),
		Succeeded: int(stats.succeeded.Load()),
		Failed:    int(stats.failed.Load()),
		Conflicts: int(stats.conflicts.Load()),
		Duration:  time.Since(start),
	}, nil
}

type worker struct {
	handler stage.Handler
	opts    options
	stats   *counters
}

// drain pulls items until the queue is empty. The queue is closed before any
// worker starts, so the receive never blocks.
func (w *worker) drain(ctx context.Context, queue <-chan stage.WorkItem) {
	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := <-queue
		if !ok {
			return
		}
		w.handle(ctx, item)
	}
}

func (w *worker) handle(ctx context.Context, item stage.WorkItem) {
	w.stats.attempted.Add(1)
	itemCtx := services.WithItemID(ctx, item.ID)
	logger := w.opts.logger.With(logging.Int64(logging.FieldItemID, item.ID))

	started := time.Now()
	err := w.process(itemCtx, item)
	elapsed := time.Since(started)

	var outcome Outcome
	switch {
	case err == nil:
		outcome = OutcomeSucceeded
		w.stats.succeeded.Add(1)
		logger.Debug("item processed",
			logging.String("ref", item.Ref),
			logging.Duration("elapsed", elapsed),
		)
	case services.IsConflict(err):
		outcome = OutcomeConflict
		w.stats.conflicts.Add(1)
		logger.Warn("item changed while processing; leaving it for the next poll",
			logging.String("ref", item.Ref),
			logging.String(logging.FieldEventType, "item_conflict"),
			logging.Error(err),
		)
	default:
		outcome = OutcomeFailed
		w.stats.failed.Add(1)
		logger.Error("item failed",
			logging.String("ref", item.Ref),
			logging.String(logging.FieldEventType, "item_failed"),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		w.onError(itemCtx, logger, item, err)
	}

	if w.opts.observer != nil {
		w.opts.observer(item, outcome, elapsed)
	}
}

func (w *worker) process(ctx context.Context, item stage.WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return w.handler.Process(ctx, item)
}

func (w *worker) onError(ctx context.Context, logger *slog.Logger, item stage.WorkItem, cause error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("error hook panicked",
				logging.String(logging.FieldEventType, "on_error_panic"),
				logging.Any("panic", r),
			)
		}
	}()
	w.handler.OnError(ctx, item, cause)
}
