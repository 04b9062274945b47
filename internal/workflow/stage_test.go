package workflow_test

import (
	"context"
	"errors"
	"testing"

	"curator/internal/stage"
	"curator/internal/workflow"
)

func newTestStage(name stage.Name, src stage.Source, h stage.Handler, settings *settingsBox, opts ...workflow.StageOption) *workflow.Stage {
	return workflow.NewStage(name, src, h, settings.get, opts...)
}

func TestTickIdleWithoutTrigger(t *testing.T) {
	src := &scriptedSource{batches: []stage.Batch{items(1)}}
	s := newTestStage(stage.ArtworkScan, src, newCountingHandler(), newSettings(2, 10))

	if got := s.Tick(context.Background()); got != workflow.TickIdle {
		t.Fatalf("expected idle tick, got %v", got)
	}
	if src.calls.Load() != 0 {
		t.Fatal("expected no fetch without trigger")
	}
	if s.State() != workflow.StateIdle {
		t.Fatalf("unexpected state %q", s.State())
	}
}

func TestTriggerIsIdempotent(t *testing.T) {
	src := &scriptedSource{}
	s := newTestStage(stage.ArtworkScan, src, newCountingHandler(), newSettings(2, 10))
	for range 5 {
		s.Trigger()
	}
	if s.State() != workflow.StateTriggered {
		t.Fatalf("unexpected state %q", s.State())
	}
	if got := s.Tick(context.Background()); got != workflow.TickEmpty {
		t.Fatalf("expected empty tick, got %v", got)
	}
	if src.calls.Load() != 1 {
		t.Fatalf("expected a single fetch, got %d", src.calls.Load())
	}
	if s.Triggered() {
		t.Fatal("expected trigger cleared after empty fetch")
	}
}

func TestTickProcessesEveryItemOnce(t *testing.T) {
	for _, threads := range []int{1, 3} {
		src := &scriptedSource{batches: []stage.Batch{items(1, 2, 3, 4, 5)}}
		handler := newCountingHandler()
		s := newTestStage(stage.MetadataVideo, src, handler, newSettings(threads, 10))
		s.Trigger()

		if got := s.Tick(context.Background()); got != workflow.TickProcessed {
			t.Fatalf("threads=%d: expected processed tick, got %v", threads, got)
		}
		for id := int64(1); id <= 5; id++ {
			if handler.processed[id] != 1 {
				t.Fatalf("threads=%d: item %d processed %d times", threads, id, handler.processed[id])
			}
		}
		if src.lastMax.Load() != 10 {
			t.Fatalf("expected max_results passed to source, got %d", src.lastMax.Load())
		}
	}
}

func TestNonEmptyBatchKeepsTriggerUntilDrained(t *testing.T) {
	src := &scriptedSource{batches: []stage.Batch{items(1, 2), items(3)}}
	handler := newCountingHandler()
	s := newTestStage(stage.MetadataPeople, src, handler, newSettings(1, 2))
	s.Trigger()

	ctx := context.Background()
	results := []workflow.TickResult{s.Tick(ctx), s.Tick(ctx), s.Tick(ctx), s.Tick(ctx)}
	want := []workflow.TickResult{workflow.TickProcessed, workflow.TickProcessed, workflow.TickEmpty, workflow.TickIdle}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("tick %d: got %v want %v", i, results[i], want[i])
		}
	}
	if handler.total() != 3 {
		t.Fatalf("expected 3 items processed, got %d", handler.total())
	}
}

func TestDownstreamTriggeredOnlyAfterNonEmptyBatch(t *testing.T) {
	cfg := testConfig(t)
	m := workflow.NewManager(workflow.StaticConfig(cfg), nil, workflow.WithGraph(workflow.Graph{
		stage.ImportVideo:   {stage.MetadataVideo},
		stage.MetadataVideo: nil,
	}))
	upstreamSrc := &scriptedSource{batches: []stage.Batch{nil, items(7)}}
	if err := m.Register(stage.ImportVideo, upstreamSrc, newCountingHandler()); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(stage.MetadataVideo, &scriptedSource{}, newCountingHandler()); err != nil {
		t.Fatal(err)
	}
	if err := m.Wire(); err != nil {
		t.Fatalf("Wire returned error: %v", err)
	}
	upstream, _ := m.Stage(stage.ImportVideo)
	downstream, _ := m.Stage(stage.MetadataVideo)

	upstream.Trigger()
	if got := upstream.Tick(context.Background()); got != workflow.TickEmpty {
		t.Fatalf("expected empty tick, got %v", got)
	}
	if downstream.Triggered() {
		t.Fatal("empty batch must not trigger downstream")
	}

	upstream.Trigger()
	if got := upstream.Tick(context.Background()); got != workflow.TickProcessed {
		t.Fatalf("expected processed tick, got %v", got)
	}
	if !downstream.Triggered() {
		t.Fatal("expected downstream triggered before Tick returned")
	}
}

func TestDisabledStageConsumesTriggerAndLogsTransitionsOnce(t *testing.T) {
	logger, capture := newCapturingLogger()
	src := &scriptedSource{batches: []stage.Batch{items(1)}}
	settings := newSettings(0, 10)
	s := newTestStage(stage.TrailerProcess, src, newCountingHandler(), settings, workflow.WithStageLogger(logger))

	ctx := context.Background()
	for range 3 {
		s.Trigger()
		if got := s.Tick(ctx); got != workflow.TickDisabled {
			t.Fatalf("expected disabled tick, got %v", got)
		}
		if s.Triggered() {
			t.Fatal("disabled stage must consume its trigger")
		}
	}
	if src.calls.Load() != 0 {
		t.Fatal("disabled stage must not fetch")
	}
	if s.State() != workflow.StateDisabled {
		t.Fatalf("unexpected state %q", s.State())
	}
	if n := capture.count("stage disabled"); n != 1 {
		t.Fatalf("expected one disabled log, got %d", n)
	}

	settings.set(2, 10)
	for range 3 {
		s.Tick(ctx)
	}
	if n := capture.count("stage enabled"); n != 1 {
		t.Fatalf("expected one enabled log, got %d", n)
	}
	if src.calls.Load() != 0 {
		t.Fatal("trigger consumed while disabled must not cause a fetch")
	}

	s.Trigger()
	if got := s.Tick(ctx); got != workflow.TickProcessed {
		t.Fatalf("expected processed tick after enable, got %v", got)
	}
}

func TestConcurrentTickReturnsBusyWithoutFetch(t *testing.T) {
	src := &scriptedSource{
		batches: []stage.Batch{items(1)},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := newTestStage(stage.ArtworkProcess, src, newCountingHandler(), newSettings(2, 10))
	s.Trigger()

	done := make(chan workflow.TickResult)
	go func() { done <- s.Tick(context.Background()) }()
	<-src.entered

	if s.State() != workflow.StateRunning {
		t.Fatalf("expected running state, got %q", s.State())
	}
	s.Trigger()
	if got := s.Tick(context.Background()); got != workflow.TickBusy {
		t.Fatalf("expected busy tick, got %v", got)
	}
	if src.calls.Load() != 1 {
		t.Fatalf("busy tick must not fetch, saw %d fetches", src.calls.Load())
	}

	close(src.block)
	if got := <-done; got != workflow.TickProcessed {
		t.Fatalf("expected first tick to process, got %v", got)
	}
}

func TestFailedItemRoutedToOnErrorOnce(t *testing.T) {
	src := &scriptedSource{batches: []stage.Batch{items(1, 2, 3)}}
	handler := newCountingHandler()
	handler.fail[2] = errors.New("lookup failed")
	s := newTestStage(stage.MetadataFilmography, src, handler, newSettings(2, 10))
	s.Trigger()

	if got := s.Tick(context.Background()); got != workflow.TickProcessed {
		t.Fatalf("expected processed tick, got %v", got)
	}
	if handler.errored[2] != 1 || len(handler.errored) != 1 {
		t.Fatalf("expected OnError once for item 2 only, got %v", handler.errored)
	}
	for id := int64(1); id <= 3; id++ {
		if handler.processed[id] != 1 {
			t.Fatalf("item %d processed %d times", id, handler.processed[id])
		}
	}
	report, _, ok := s.LastReport()
	if !ok || report.Summary.Failed != 1 || report.Found != 3 {
		t.Fatalf("unexpected run report: %+v", report)
	}
}

func TestFetchFailureKeepsTrigger(t *testing.T) {
	logger, capture := newCapturingLogger()
	src := &scriptedSource{err: errors.New("database is locked")}
	s := newTestStage(stage.Deletion, src, newCountingHandler(), newSettings(1, 10), workflow.WithStageLogger(logger))
	s.Trigger()

	if got := s.Tick(context.Background()); got != workflow.TickFetchFailed {
		t.Fatalf("expected fetch failure, got %v", got)
	}
	if !s.Triggered() {
		t.Fatal("expected trigger kept after fetch failure")
	}
	if capture.count("fetch pending work failed; will retry") != 1 {
		t.Fatal("expected fetch failure logged")
	}
}

func TestTriggerDuringFetchIsNotLost(t *testing.T) {
	src := &scriptedSource{}
	s := newTestStage(stage.ArtworkScan, src, newCountingHandler(), newSettings(1, 10))
	src.during = s.Trigger
	s.Trigger()

	if got := s.Tick(context.Background()); got != workflow.TickEmpty {
		t.Fatalf("expected empty tick, got %v", got)
	}
	if !s.Triggered() {
		t.Fatal("trigger raised during fetch must survive an empty result")
	}
	src.during = nil
	s.Tick(context.Background())
	if s.Triggered() {
		t.Fatal("expected trigger cleared by the following empty fetch")
	}
}

func TestDisabledTickDuringRunDoesNotRewindTrigger(t *testing.T) {
	settings := newSettings(1, 10)
	src := &scriptedSource{}
	s := newTestStage(stage.TrailerScan, src, newCountingHandler(), settings)
	src.during = func() {
		settings.set(0, 10)
		s.Trigger()
		if got := s.Tick(context.Background()); got != workflow.TickDisabled {
			t.Errorf("expected disabled tick during the run, got %v", got)
		}
	}
	s.Trigger()

	if got := s.Tick(context.Background()); got != workflow.TickEmpty {
		t.Fatalf("expected empty tick, got %v", got)
	}
	if s.Triggered() {
		t.Fatal("trigger consumed by the disabled tick must stay consumed after the run")
	}
}
