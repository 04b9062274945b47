package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/stage"
)

// ErrUnknownStage is returned when a stage name is not registered.
var ErrUnknownStage = errors.New("unknown stage")

// ConfigSource supplies the current configuration. *config.Live satisfies it.
type ConfigSource interface {
	Get() *config.Config
}

type staticConfig struct{ cfg *config.Config }

func (s staticConfig) Get() *config.Config { return s.cfg }

// StaticConfig wraps a fixed configuration as a ConfigSource.
func StaticConfig(cfg *config.Config) ConfigSource {
	return staticConfig{cfg: cfg}
}

// Manager owns every Stage, the per-stage tick loops and the periodic jobs.
type Manager struct {
	cfg       ConfigSource
	logger    *slog.Logger
	graph     Graph
	metrics   *Metrics
	rechecker Rechecker

	stages map[stage.Name]*Stage
	order  []stage.Name
	jobs   []job

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cron    *cron.Cron
	slots   *semaphore.Weighted
	lastErr error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithGraph replaces DefaultGraph.
func WithGraph(g Graph) ManagerOption {
	return func(m *Manager) {
		m.graph = g
	}
}

// WithMetrics attaches Prometheus collectors to every stage.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithRechecker enables the recheck job and Manager.Recheck.
func WithRechecker(r Rechecker) ManagerOption {
	return func(m *Manager) {
		m.rechecker = r
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg ConfigSource, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "workflow"),
		graph:  DefaultGraph,
		stages: make(map[stage.Name]*Stage),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a stage. All stages must be registered before Start.
func (m *Manager) Register(name stage.Name, source stage.Source, handler stage.Handler) error {
	if !name.Valid() {
		return fmt.Errorf("register %q: %w", name, ErrUnknownStage)
	}
	if source == nil || handler == nil {
		return fmt.Errorf("register %s: source and handler are required", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("register %s: workflow already running", name)
	}
	if _, exists := m.stages[name]; exists {
		return fmt.Errorf("register %s: already registered", name)
	}
	settings := func() config.StageSettings {
		return m.cfg.Get().StageSettings(string(name))
	}
	overrides := m.cfg.Get().Logging.StageOverrides
	m.stages[name] = NewStage(name, source, handler, settings,
		WithStageLogger(logging.ForStage(m.logger, string(name), overrides)),
		WithStageMetrics(m.metrics),
	)
	m.order = append(m.order, name)
	return nil
}

// Stage returns a registered stage.
func (m *Manager) Stage(name stage.Name) (*Stage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stages[name]
	return s, ok
}

// Wire validates the graph and connects every stage to its downstream
// stages. Start calls it; tests that tick stages by hand call it directly.
func (m *Manager) Wire() error {
	if err := m.graph.Validate(stage.All); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.order {
		s := m.stages[name]
		s.downstream = s.downstream[:0]
		for _, next := range m.graph.Downstream(name) {
			target, ok := m.stages[next]
			if !ok {
				m.logger.Warn("downstream stage not registered; trigger dropped",
					logging.String(logging.FieldStage, string(name)),
					logging.String("downstream", string(next)),
				)
				continue
			}
			s.downstream = append(s.downstream, target)
		}
	}
	return nil
}

// Trigger marks a registered stage as having pending work.
func (m *Manager) Trigger(name stage.Name) error {
	s, ok := m.Stage(name)
	if !ok {
		return fmt.Errorf("trigger %q: %w", name, ErrUnknownStage)
	}
	s.Trigger()
	return nil
}

// TriggerAll triggers every registered stage.
func (m *Manager) TriggerAll() {
	m.mu.RLock()
	stages := make([]*Stage, 0, len(m.order))
	for _, name := range m.order {
		stages = append(stages, m.stages[name])
	}
	m.mu.RUnlock()
	for _, s := range stages {
		s.Trigger()
	}
}

// Start wires the graph, launches one tick loop per stage and schedules the
// periodic jobs. Every stage starts triggered so work left pending by a
// previous run is picked up.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Wire(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.order) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	cfg := m.cfg.Get()
	runCtx, cancel := context.WithCancel(ctx)
	m.slots = semaphore.NewWeighted(int64(max(cfg.Workflow.SchedulerThreads, 1)))

	scheduler, err := m.buildCron(runCtx, cfg)
	if err != nil {
		m.mu.Unlock()
		cancel()
		return err
	}
	m.cron = scheduler
	m.cancel = cancel
	m.running = true
	stages := make([]*Stage, 0, len(m.order))
	for _, name := range m.order {
		stages = append(stages, m.stages[name])
	}
	m.wg.Add(len(stages))
	m.mu.Unlock()

	for _, s := range stages {
		s.Trigger()
	}
	for i, s := range stages {
		// Stagger the first ticks so stages do not all hit the store at once.
		go m.runStage(runCtx, s, time.Duration(i)*25*time.Millisecond)
	}
	scheduler.Start()

	m.logger.Info("workflow started",
		logging.Int("stages", len(stages)),
		logging.Int("scheduler_threads", cfg.Workflow.SchedulerThreads),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop terminates the tick loops and periodic jobs and waits for in-flight
// ticks to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	scheduler := m.cron
	m.running = false
	m.cancel = nil
	m.cron = nil
	m.mu.Unlock()

	cancel()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
