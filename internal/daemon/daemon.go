package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/preflight"
	"curator/internal/stage"
	"curator/internal/staging"
	"curator/internal/workflow"
)

// ConfigSource yields the current configuration. *config.Live satisfies it.
type ConfigSource interface {
	Get() *config.Config
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      ConfigSource
	logger   *slog.Logger
	store    *library.Store
	workflow *workflow.Manager
	scanner  *staging.Scanner
	metrics  http.Handler
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	TaskCounts   map[stage.Name]map[library.Status]int
	DatabasePath string
	LockFilePath string
}

// Option configures optional daemon behavior.
type Option func(*Daemon)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(d *Daemon) {
		d.metrics = h
	}
}

// WithNotifier sends a summary after scans that staged work.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		d.notifier = n
	}
}

// HealthReport combines stage readiness, task totals and system checks.
type HealthReport struct {
	Stages []stage.Health
	Tasks  library.HealthSummary
	System []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg ConfigSource, store *library.Store, logger *slog.Logger, wf *workflow.Manager, scanner *staging.Scanner, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil || scanner == nil {
		return nil, errors.New("daemon requires config, store, workflow manager and scanner")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.Get().LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		scanner:  scanner,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg.Get(), d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, the API
// server and the staging scans.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another curator daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logPreflight(runCtx)
		if !d.cfg.Get().Workflow.ScanOnStart {
			return
		}
		if _, err := d.Scan(runCtx, ""); err != nil && runCtx.Err() == nil {
			d.logger.Warn("initial staging scan failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_scan_failed"),
				logging.String(logging.FieldErrorHint, "check that library_roots are mounted and readable"),
			)
		}
	}()

	cfg := d.cfg.Get()
	if cfg.Workflow.Watch {
		debounce := time.Duration(cfg.Workflow.WatchDebounceSeconds) * time.Second
		watcher := staging.NewWatcher(d.scanner, cfg.Paths.LibraryRoots, debounce, d.logger)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := watcher.Run(runCtx); err != nil && runCtx.Err() == nil {
				d.logger.Warn("library watcher stopped", logging.Error(err))
			}
		}()
	}

	d.logger.Info("curator daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("curator daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the address the API server listens on, once started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	counts, err := d.store.StageCounts(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(),
		TaskCounts:   counts,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}

// Trigger wakes the named stages.
func (d *Daemon) Trigger(names ...stage.Name) error {
	for _, name := range names {
		if err := d.workflow.Trigger(name); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAll wakes every stage through the trigger-all job, so manual runs
// show up in the job metrics next to scheduled ones.
func (d *Daemon) TriggerAll(ctx context.Context) error {
	return d.workflow.RunJob(ctx, workflow.JobTriggerAll)
}

// RunJob runs a periodic job immediately.
func (d *Daemon) RunJob(ctx context.Context, name string) error {
	return d.workflow.RunJob(ctx, name)
}

// Retry moves failed tasks of one stage, or of every stage when name is
// empty, back to updated and wakes the stages that got work.
func (d *Daemon) Retry(ctx context.Context, name stage.Name) (int, error) {
	if name != "" {
		if _, ok := d.workflow.Stage(name); !ok {
			return 0, fmt.Errorf("retry %q: %w", name, workflow.ErrUnknownStage)
		}
	}
	retried, err := d.store.RetryFailed(ctx, name)
	if err != nil || retried == 0 {
		return retried, err
	}
	if name == "" {
		d.workflow.TriggerAll()
	} else if err := d.workflow.Trigger(name); err != nil {
		return retried, err
	}
	d.logger.Info("failed tasks re-queued",
		logging.String(logging.FieldStage, string(name)),
		logging.Int("count", retried),
		logging.String(logging.FieldEventType, "tasks_retried"),
	)
	return retried, nil
}

// Scan runs a staging pass over the library roots, or over path when set.
func (d *Daemon) Scan(ctx context.Context, path string) (staging.Result, error) {
	var (
		result staging.Result
		err    error
	)
	if strings.TrimSpace(path) != "" {
		result, err = d.scanner.ScanPath(ctx, path)
	} else {
		result, err = d.scanner.Scan(ctx)
	}
	if err == nil && d.notifier != nil && result.Enqueued+result.Deleted > 0 {
		if notifyErr := d.notifier.NotifyScanCompleted(ctx, result.Enqueued, result.Deleted); notifyErr != nil {
			d.logger.Warn("scan notification failed", logging.Error(notifyErr))
		}
	}
	return result, err
}

// Recheck re-queues stale finished tasks.
func (d *Daemon) Recheck(ctx context.Context, req workflow.RecheckRequest) (map[stage.Name]int, error) {
	return d.workflow.Recheck(ctx, req)
}

// Tasks lists tasks for diagnostics.
func (d *Daemon) Tasks(ctx context.Context, filter library.TaskFilter) ([]*library.Task, error) {
	return d.store.ListTasks(ctx, filter)
}

// Health reports stage readiness, task totals and the local system checks.
func (d *Daemon) Health(ctx context.Context) (HealthReport, error) {
	if err := d.store.Ping(ctx); err != nil {
		return HealthReport{}, err
	}
	summary, err := d.store.Health(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	return HealthReport{
		Stages: d.workflow.Health(ctx),
		Tasks:  summary,
		System: preflight.Local(d.cfg.Get()),
	}, nil
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg.Get())) {
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "stages depending on this check will fail until it is fixed"),
		)
	}
}
