package workflow

import (
	"context"
	"time"
)

// runStage is the fixed-delay tick loop of one stage: the next tick is
// scheduled only after the previous one returned.
func (m *Manager) runStage(ctx context.Context, s *Stage, initialDelay time.Duration) {
	defer m.wg.Done()

	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		result, ok := m.tickWithSlot(ctx, s)
		if !ok {
			return
		}
		timer.Reset(m.nextDelay(s, result))
	}
}

// tickWithSlot runs one tick while holding a slot of the shared scheduler
// pool. It returns false when ctx ends while waiting for a slot.
func (m *Manager) tickWithSlot(ctx context.Context, s *Stage) (TickResult, bool) {
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return TickIdle, false
	}
	defer m.slots.Release(1)
	return s.Tick(ctx), true
}

func (m *Manager) nextDelay(s *Stage, result TickResult) time.Duration {
	delay := s.Settings().TickInterval
	if delay <= 0 {
		delay = time.Second
	}
	if result == TickFetchFailed {
		retry := time.Duration(m.cfg.Get().Workflow.ErrorRetrySeconds) * time.Second
		if retry > delay {
			delay = retry
		}
	}
	return delay
}
