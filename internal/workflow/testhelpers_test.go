package workflow_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"curator/internal/config"
	"curator/internal/stage"
)

// logCapture records log messages for assertions.
type logCapture struct {
	mu       sync.Mutex
	messages []string
}

func (c *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (c *logCapture) Handle(_ context.Context, record slog.Record) error {
	c.mu.Lock()
	c.messages = append(c.messages, record.Message)
	c.mu.Unlock()
	return nil
}

func (c *logCapture) WithAttrs([]slog.Attr) slog.Handler { return c }

func (c *logCapture) WithGroup(string) slog.Handler { return c }

func (c *logCapture) count(message string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if m == message {
			n++
		}
	}
	return n
}

func newCapturingLogger() (*slog.Logger, *logCapture) {
	capture := &logCapture{}
	return slog.New(capture), capture
}

// settingsBox is a hot-swappable stage settings value.
type settingsBox struct {
	v atomic.Pointer[config.StageSettings]
}

func newSettings(threads, results int) *settingsBox {
	b := &settingsBox{}
	b.set(threads, results)
	return b
}

func (b *settingsBox) set(threads, results int) {
	b.v.Store(&config.StageSettings{MaxThreads: threads, MaxResults: results, TickInterval: 5 * time.Millisecond})
}

func (b *settingsBox) get() config.StageSettings {
	return *b.v.Load()
}

// scriptedSource returns queued batches in order, then empty batches.
type scriptedSource struct {
	mu      sync.Mutex
	batches []stage.Batch
	err     error
	calls   atomic.Int32
	during  func()
	block   chan struct{}
	entered chan struct{}
	lastMax atomic.Int32
}

func (s *scriptedSource) FetchBatch(_ context.Context, maxResults int) (stage.Batch, error) {
	s.calls.Add(1)
	s.lastMax.Store(int32(maxResults))
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if s.during != nil {
		s.during()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	return next, nil
}

// countingHandler counts Process/OnError calls per item.
type countingHandler struct {
	mu        sync.Mutex
	processed map[int64]int
	errored   map[int64]int
	fail      map[int64]error
}

func newCountingHandler() *countingHandler {
	return &countingHandler{processed: map[int64]int{}, errored: map[int64]int{}, fail: map[int64]error{}}
}

func (h *countingHandler) Process(_ context.Context, item stage.WorkItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processed[item.ID]++
	return h.fail[item.ID]
}

func (h *countingHandler) OnError(_ context.Context, item stage.WorkItem, _ error) {
	h.mu.Lock()
	h.errored[item.ID]++
	h.mu.Unlock()
}

func (h *countingHandler) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.processed {
		n += c
	}
	return n
}

func items(ids ...int64) stage.Batch {
	batch := make(stage.Batch, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, stage.WorkItem{ID: id, Domain: stage.DomainVideo})
	}
	return batch
}

// memoryQueue is a minimal task table: pending items per stage that
// handlers move forward.
type memoryQueue struct {
	mu      sync.Mutex
	pending map[stage.Name][]stage.WorkItem
	done    map[stage.Name]int
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{pending: map[stage.Name][]stage.WorkItem{}, done: map[stage.Name]int{}}
}

func (q *memoryQueue) add(name stage.Name, item stage.WorkItem) {
	q.mu.Lock()
	q.pending[name] = append(q.pending[name], item)
	q.mu.Unlock()
}

func (q *memoryQueue) source(name stage.Name) stage.Source {
	return stage.SourceFunc(func(_ context.Context, maxResults int) (stage.Batch, error) {
		q.mu.Lock()
		defer q.mu.Unlock()
		pending := q.pending[name]
		n := min(maxResults, len(pending))
		batch := append(stage.Batch(nil), pending[:n]...)
		q.pending[name] = pending[n:]
		return batch, nil
	})
}

// forwarder completes an item and optionally enqueues it for the next stages.
func (q *memoryQueue) forwarder(name stage.Name, next ...stage.Name) stage.Handler {
	return stage.HandlerFunc{ProcessFunc: func(_ context.Context, item stage.WorkItem) error {
		q.mu.Lock()
		q.done[name]++
		q.mu.Unlock()
		for _, target := range next {
			q.add(target, item)
		}
		return nil
	}}
}

func (q *memoryQueue) doneCount(name stage.Name) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done[name]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func intPtr(v int) *int { return &v }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Workflow.TriggerAllSchedule = ""
	cfg.Recheck.Schedule = ""
	cfg.Stages = map[string]config.StageOverride{}
	for _, name := range stage.All {
		cfg.Stages[string(name)] = config.StageOverride{TickIntervalMS: intPtr(5)}
	}
	return &cfg
}
