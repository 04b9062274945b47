package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
	"curator/internal/workerpool"
)

// State is the observable scheduling state of a stage.
type State string

const (
	StateIdle      State = "idle"
	StateTriggered State = "triggered"
	StateRunning   State = "running"
	StateDisabled  State = "disabled"
)

// TickResult reports what a single tick did.
type TickResult int

const (
	TickDisabled TickResult = iota
	TickIdle
	TickBusy
	TickFetchFailed
	TickEmpty
	TickProcessed
)

func (r TickResult) String() string {
	switch r {
	case TickDisabled:
		return "disabled"
	case TickIdle:
		return "idle"
	case TickBusy:
		return "busy"
	case TickFetchFailed:
		return "fetch_failed"
	case TickEmpty:
		return "empty"
	case TickProcessed:
		return "processed"
	default:
		return "unknown"
	}
}

// SettingsFunc returns the current scheduler settings of a stage. It is
// called at the start of every tick.
type SettingsFunc func() config.StageSettings

// RunReport describes the most recent non-empty run of a stage.
type RunReport struct {
	RunID    string             `json:"run_id"`
	Started  time.Time          `json:"started"`
	Found    int                `json:"found"`
	Threads  int                `json:"threads"`
	Summary  workerpool.Summary `json:"summary"`
	FetchErr string             `json:"fetch_error,omitempty"`
}

// Stage owns the scheduling state of one pipeline stage: the trigger flag,
// the non-blocking run lock and the disabled transition flag.
type Stage struct {
	name     stage.Name
	source   stage.Source
	handler  stage.Handler
	settings SettingsFunc
	logger   *slog.Logger
	metrics  *Metrics

	// requested counts Trigger calls; handled is the value of requested
	// observed by the last fetch that came back empty. The stage is
	// triggered while they differ, so a trigger arriving during a fetch is
	// never lost.
	requested atomic.Uint64
	handled   atomic.Uint64

	runLock  sync.Mutex
	running  atomic.Bool
	disabled atomic.Bool

	downstream []*Stage

	reportMu   sync.Mutex
	lastReport *RunReport
	lastTick   time.Time
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithStageLogger sets the logger; the stage name is attached automatically.
func WithStageLogger(logger *slog.Logger) StageOption {
	return func(s *Stage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStageMetrics attaches Prometheus collectors.
func WithStageMetrics(m *Metrics) StageOption {
	return func(s *Stage) {
		s.metrics = m
	}
}

// NewStage builds the scheduling controller for one stage.
func NewStage(name stage.Name, source stage.Source, handler stage.Handler, settings SettingsFunc, opts ...StageOption) *Stage {
	s := &Stage{
		name:     name,
		source:   source,
		handler:  handler,
		settings: settings,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the stage name.
func (s *Stage) Name() stage.Name {
	return s.name
}

// Handler returns the stage handler.
func (s *Stage) Handler() stage.Handler {
	return s.handler
}

// Settings returns the stage's current scheduler settings.
func (s *Stage) Settings() config.StageSettings {
	return s.settings()
}

// Downstream returns the stages this stage triggers.
func (s *Stage) Downstream() []stage.Name {
	out := make([]stage.Name, 0, len(s.downstream))
	for _, d := range s.downstream {
		out = append(out, d.name)
	}
	return out
}

// Trigger marks the stage as having pending work. It never blocks and may be
// called any number of times from any goroutine.
func (s *Stage) Trigger() {
	s.requested.Add(1)
	s.metrics.setTriggered(string(s.name), true)
}

// Triggered reports whether the stage has an unconsumed trigger.
func (s *Stage) Triggered() bool {
	return s.requested.Load() != s.handled.Load()
}

// Running reports whether a tick currently holds the run lock.
func (s *Stage) Running() bool {
	return s.running.Load()
}

// State derives the observable state.
func (s *Stage) State() State {
	switch {
	case !s.settings().Enabled():
		return StateDisabled
	case s.Running():
		return StateRunning
	case s.Triggered():
		return StateTriggered
	default:
		return StateIdle
	}
}

// LastReport returns the most recent run report, if any.
func (s *Stage) LastReport() (RunReport, time.Time, bool) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	if s.lastReport == nil {
		return RunReport{}, s.lastTick, false
	}
	return *s.lastReport, s.lastTick, true
}

// consumeTrigger advances handled to observed. A disabled tick may consume
// a newer value while a run is in flight, so handled only moves forward.
func (s *Stage) consumeTrigger(observed uint64) {
	for {
		current := s.handled.Load()
		if observed <= current || s.handled.CompareAndSwap(current, observed) {
			break
		}
	}
	s.metrics.setTriggered(string(s.name), s.Triggered())
}

// Tick performs one scheduling step. Ticks are safe to call concurrently; at
// most one of them fetches and processes a batch at a time, the others
// return TickBusy.
func (s *Stage) Tick(ctx context.Context) TickResult {
	result := s.tick(ctx)
	s.reportMu.Lock()
	s.lastTick = time.Now()
	s.reportMu.Unlock()
	s.metrics.observeTick(string(s.name), result)
	return result
}

func (s *Stage) tick(ctx context.Context) TickResult {
	settings := s.settings()
	if !settings.Enabled() {
		s.consumeTrigger(s.requested.Load())
		if s.disabled.CompareAndSwap(false, true) {
			s.logger.Info("stage disabled",
				logging.Int("max_threads", settings.MaxThreads),
				logging.String(logging.FieldEventType, "stage_disabled"),
			)
		}
		return TickDisabled
	}
	if s.disabled.CompareAndSwap(true, false) {
		s.logger.Info("stage enabled",
			logging.Int("max_threads", settings.MaxThreads),
			logging.String(logging.FieldEventType, "stage_enabled"),
		)
	}

	if !s.Triggered() {
		return TickIdle
	}
	if !s.runLock.TryLock() {
		return TickBusy
	}
	defer s.runLock.Unlock()

	s.running.Store(true)
	s.metrics.setRunning(string(s.name), true)
	defer func() {
		s.running.Store(false)
		s.metrics.setRunning(string(s.name), false)
	}()

	return s.run(ctx, settings)
}

// run executes while holding the run lock.
func (s *Stage) run(ctx context.Context, settings config.StageSettings) TickResult {
	runID := uuid.NewString()
	observed := s.requested.Load()
	ctx = services.WithStage(ctx, string(s.name))
	ctx = services.WithRunID(ctx, runID)
	logger := s.logger.With(logging.String(logging.FieldRunID, runID))

	batch, err := s.source.FetchBatch(ctx, settings.MaxResults)
	if err != nil {
		logger.Error("fetch pending work failed; will retry",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stage_fetch_failed"),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "check library database access"),
		)
		s.recordReport(RunReport{RunID: runID, Started: time.Now(), FetchErr: err.Error()})
		return TickFetchFailed
	}
	if batch.Empty() {
		s.consumeTrigger(observed)
		return TickEmpty
	}

	started := time.Now()
	logger.Debug("stage run starting",
		logging.Int("found", batch.Len()),
		logging.Int("threads", settings.MaxThreads),
	)
	name := string(s.name)
	summary, err := workerpool.Run(ctx, batch, settings.MaxThreads, s.handler,
		workerpool.WithLogger(logger),
		workerpool.WithObserver(func(_ stage.WorkItem, outcome workerpool.Outcome, elapsed time.Duration) {
			s.metrics.observeItem(name, outcome, elapsed)
		}),
	)
	if err != nil {
		// Only reachable if settings changed between the enabled check and
		// here; the batch stays pending in the store.
		logger.Warn("worker pool refused batch", logging.Error(err))
		return TickFetchFailed
	}
	s.metrics.observeRun(name, batch.Len(), summary)

	for _, next := range s.downstream {
		next.Trigger()
	}

	attrs := []logging.Attr{
		logging.Int("found", batch.Len()),
		logging.Int("threads", settings.MaxThreads),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failures", summary.Failed),
		logging.Int("conflicts", summary.Conflicts),
		logging.Duration("elapsed", summary.Duration),
		logging.String(logging.FieldEventType, "stage_run_finished"),
	}
	if skipped := summary.Skipped(batch.Len()); skipped > 0 {
		attrs = append(attrs, logging.Int("skipped", skipped))
	}
	if summary.Failed > 0 {
		logger.Warn("stage run finished with failures", logging.Args(attrs...)...)
	} else {
		logger.Info("stage run finished", logging.Args(attrs...)...)
	}

	s.recordReport(RunReport{
		RunID:   runID,
		Started: started,
		Found:   batch.Len(),
		Threads: settings.MaxThreads,
		Summary: summary,
	})
	return TickProcessed
}

func (s *Stage) recordReport(report RunReport) {
	s.reportMu.Lock()
	s.lastReport = &report
	s.reportMu.Unlock()
}
