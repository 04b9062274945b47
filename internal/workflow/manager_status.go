package workflow

import (
	"context"
	"time"

	"curator/internal/stage"
)

// StageStatus is a point-in-time view of one stage.
type StageStatus struct {
	Name       stage.Name   `json:"name"`
	State      State        `json:"state"`
	Triggered  bool         `json:"triggered"`
	Running    bool         `json:"running"`
	MaxThreads int          `json:"max_threads"`
	MaxResults int          `json:"max_results"`
	Upstream   []stage.Name `json:"upstream,omitempty"`
	Downstream []stage.Name `json:"downstream,omitempty"`
	LastTick   time.Time    `json:"last_tick,omitempty"`
	LastRun    *RunReport   `json:"last_run,omitempty"`
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool          `json:"running"`
	LastError string        `json:"last_error,omitempty"`
	Stages    []StageStatus `json:"stages"`
}

// Status returns the latest workflow information in registration order.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	stages := make([]*Stage, 0, len(m.order))
	for _, name := range m.order {
		stages = append(stages, m.stages[name])
	}
	m.mu.RUnlock()

	summary := StatusSummary{Running: running, Stages: make([]StageStatus, 0, len(stages))}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	for _, s := range stages {
		settings := s.Settings()
		status := StageStatus{
			Name:       s.Name(),
			State:      s.State(),
			Triggered:  s.Triggered(),
			Running:    s.Running(),
			MaxThreads: settings.MaxThreads,
			MaxResults: settings.MaxResults,
			Upstream:   m.graph.Upstream(s.Name()),
			Downstream: s.Downstream(),
		}
		report, lastTick, ok := s.LastReport()
		status.LastTick = lastTick
		if ok {
			status.LastRun = &report
		}
		summary.Stages = append(summary.Stages, status)
	}
	return summary
}

// Health runs the health check of every stage handler that implements
// stage.HealthChecker.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	m.mu.RLock()
	stages := make([]*Stage, 0, len(m.order))
	for _, name := range m.order {
		stages = append(stages, m.stages[name])
	}
	m.mu.RUnlock()

	out := make([]stage.Health, 0, len(stages))
	for _, s := range stages {
		checker, ok := s.Handler().(stage.HealthChecker)
		if !ok {
			out = append(out, stage.Healthy(string(s.Name())))
			continue
		}
		out = append(out, checker.HealthCheck(ctx))
	}
	return out
}
