package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/stage"
)

// Built-in job names.
const (
	JobTriggerAll = "trigger-all"
	JobRecheck    = "recheck"
)

// ErrUnknownJob is returned by RunJob for a name no job is registered under.
var ErrUnknownJob = errors.New("unknown job")

// Rechecker resets finished tasks so their stages process them again.
type Rechecker interface {
	ResetStale(ctx context.Context, stages []stage.Name, finishedBefore time.Time, includeErrors bool) (map[stage.Name]int, error)
}

// RecheckRequest selects the tasks Recheck re-queues.
type RecheckRequest struct {
	Stages        []stage.Name
	MaxAge        time.Duration
	IncludeErrors bool
}

// JobFunc is a periodic job body.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule func(*config.Config) string
	run      JobFunc
}

// AddJob registers a periodic job. schedule is evaluated at Start and may
// return "" to leave the job unscheduled. Jobs must be added before Start.
func (m *Manager) AddJob(name string, schedule func(*config.Config) string, run JobFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job{name: name, schedule: schedule, run: run})
}

func (m *Manager) builtinJobs() []job {
	jobs := []job{{
		name:     JobTriggerAll,
		schedule: func(c *config.Config) string { return c.Workflow.TriggerAllSchedule },
		run: func(context.Context) error {
			m.TriggerAll()
			return nil
		},
	}}
	if m.rechecker != nil {
		jobs = append(jobs, job{
			name:     JobRecheck,
			schedule: func(c *config.Config) string { return c.Recheck.Schedule },
			run: func(ctx context.Context) error {
				_, err := m.Recheck(ctx, m.recheckRequestFromConfig())
				return err
			},
		})
	}
	return jobs
}

// buildCron registers every job with a schedule. Called with m.mu held.
func (m *Manager) buildCron(ctx context.Context, cfg *config.Config) (*cron.Cron, error) {
	logger := m.logger
	scheduler := cron.New(
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: logger}), cron.SkipIfStillRunning(cronLogger{logger: logger})),
	)
	all := append(m.builtinJobs(), m.jobs...)
	for _, j := range all {
		spec := j.schedule(cfg)
		if spec == "" {
			logger.Debug("periodic job not scheduled", logging.String("job", j.name))
			continue
		}
		schedule, err := config.ParseSchedule(spec)
		if err != nil {
			return nil, fmt.Errorf("schedule %s job: %w", j.name, err)
		}
		scheduler.Schedule(schedule, m.jobRunner(ctx, logger, j))
		logger.Debug("periodic job scheduled", logging.String("job", j.name), logging.String("schedule", spec))
	}
	return scheduler, nil
}

func (m *Manager) jobRunner(ctx context.Context, logger *slog.Logger, j job) cron.Job {
	return cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		err := j.run(ctx)
		m.metrics.observeJob(j.name, err)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.setLastError(err)
			logger.Error("periodic job failed",
				logging.String("job", j.name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_failed"),
			)
			return
		}
		logger.Debug("periodic job finished", logging.String("job", j.name))
	})
}

// RunJob runs a registered job immediately, outside its schedule.
func (m *Manager) RunJob(ctx context.Context, name string) error {
	m.mu.RLock()
	all := append(m.builtinJobs(), m.jobs...)
	m.mu.RUnlock()
	for _, j := range all {
		if j.name == name {
			err := j.run(ctx)
			m.metrics.observeJob(j.name, err)
			return err
		}
	}
	return fmt.Errorf("run job %q: %w", name, ErrUnknownJob)
}

func (m *Manager) recheckRequestFromConfig() RecheckRequest {
	cfg := m.cfg.Get()
	stages := make([]stage.Name, 0, len(cfg.Recheck.Stages))
	for _, name := range cfg.Recheck.Stages {
		stages = append(stages, stage.Name(name))
	}
	return RecheckRequest{
		Stages:        stages,
		MaxAge:        time.Duration(cfg.Recheck.MaxAgeDays) * 24 * time.Hour,
		IncludeErrors: cfg.Recheck.IncludeErrors,
	}
}

// Recheck resets finished tasks older than req.MaxAge for the requested
// stages (all registered stages when none are given) and triggers every
// stage that got work back.
func (m *Manager) Recheck(ctx context.Context, req RecheckRequest) (map[stage.Name]int, error) {
	if m.rechecker == nil {
		return nil, errors.New("recheck not configured")
	}
	stages := req.Stages
	if len(stages) == 0 {
		m.mu.RLock()
		stages = append(stages, m.order...)
		m.mu.RUnlock()
	}
	for _, name := range stages {
		if _, ok := m.Stage(name); !ok {
			return nil, fmt.Errorf("recheck %q: %w", name, ErrUnknownStage)
		}
	}

	counts, err := m.rechecker.ResetStale(ctx, stages, time.Now().Add(-req.MaxAge), req.IncludeErrors)
	if err != nil {
		return nil, fmt.Errorf("recheck: %w", err)
	}

	names := make([]stage.Name, 0, len(counts))
	total := 0
	for name, count := range counts {
		if count > 0 {
			names = append(names, name)
			total += count
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, name := range names {
		if s, ok := m.Stage(name); ok {
			s.Trigger()
		}
	}
	m.logger.Info("recheck queued finished tasks",
		logging.Int("tasks", total),
		logging.Int("stages", len(names)),
		logging.Duration("max_age", req.MaxAge),
		logging.Bool("include_errors", req.IncludeErrors),
		logging.String(logging.FieldEventType, "recheck_finished"),
	)
	return counts, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
