package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"curator/internal/config"
	"curator/internal/stage"
	"curator/internal/workflow"
)

func TestManagerStartDrainsCascade(t *testing.T) {
	cfg := testConfig(t)
	queue := newMemoryQueue()
	for i := int64(1); i <= 30; i++ {
		queue.add(stage.ImportVideo, stage.WorkItem{ID: i, Domain: stage.DomainFile})
	}

	m := workflow.NewManager(workflow.StaticConfig(cfg), nil)
	register := func(name stage.Name, next ...stage.Name) {
		t.Helper()
		if err := m.Register(name, queue.source(name), queue.forwarder(name, next...)); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	register(stage.ImportVideo, stage.MediaFileScan, stage.MetadataVideo)
	register(stage.MediaFileScan)
	register(stage.MetadataVideo, stage.ArtworkScan)
	register(stage.ArtworkScan)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer m.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return queue.doneCount(stage.ArtworkScan) == 30 && queue.doneCount(stage.MediaFileScan) == 30
	})
	if queue.doneCount(stage.ImportVideo) != 30 || queue.doneCount(stage.MetadataVideo) != 30 {
		t.Fatalf("unexpected counts: import=%d metadata=%d", queue.doneCount(stage.ImportVideo), queue.doneCount(stage.MetadataVideo))
	}
	if !m.Running() {
		t.Fatal("expected manager running")
	}
}

func TestManagerStopWaitsForLoops(t *testing.T) {
	cfg := testConfig(t)
	m := workflow.NewManager(workflow.StaticConfig(cfg), nil)
	if err := m.Register(stage.Deletion, &scriptedSource{}, newCountingHandler()); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	m.Stop()
	if m.Running() {
		t.Fatal("expected manager stopped")
	}
	m.Stop()
}

func TestManagerRegisterValidation(t *testing.T) {
	m := workflow.NewManager(workflow.StaticConfig(testConfig(t)), nil)
	if err := m.Register("encode", &scriptedSource{}, newCountingHandler()); !errors.Is(err, workflow.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
	if err := m.Register(stage.Deletion, &scriptedSource{}, newCountingHandler()); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(stage.Deletion, &scriptedSource{}, newCountingHandler()); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := m.Trigger(stage.ArtworkScan); !errors.Is(err, workflow.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage for unregistered stage, got %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()
	if err := m.Register(stage.ArtworkScan, &scriptedSource{}, newCountingHandler()); err == nil {
		t.Fatal("expected registration after Start to fail")
	}
}

func TestTriggerAllJob(t *testing.T) {
	m := workflow.NewManager(workflow.StaticConfig(testConfig(t)), nil)
	for _, name := range []stage.Name{stage.ImportNFO, stage.TrailerScan} {
		if err := m.Register(name, &scriptedSource{}, newCountingHandler()); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.RunJob(context.Background(), workflow.JobTriggerAll); err != nil {
		t.Fatalf("RunJob returned error: %v", err)
	}
	if err := m.RunJob(context.Background(), "defrag"); !errors.Is(err, workflow.ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
	for _, name := range []stage.Name{stage.ImportNFO, stage.TrailerScan} {
		s, _ := m.Stage(name)
		if !s.Triggered() {
			t.Fatalf("expected %s triggered", name)
		}
	}
}

type fakeRechecker struct {
	stages        []stage.Name
	before        time.Time
	includeErrors bool
	counts        map[stage.Name]int
}

func (f *fakeRechecker) ResetStale(_ context.Context, stages []stage.Name, before time.Time, includeErrors bool) (map[stage.Name]int, error) {
	f.stages = stages
	f.before = before
	f.includeErrors = includeErrors
	return f.counts, nil
}

func TestRecheckTriggersStagesThatGotWork(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recheck.Stages = []string{"metadata-video", "artwork-scan"}
	cfg.Recheck.MaxAgeDays = 7
	rechecker := &fakeRechecker{counts: map[stage.Name]int{stage.MetadataVideo: 3, stage.ArtworkScan: 0}}
	m := workflow.NewManager(workflow.StaticConfig(cfg), nil, workflow.WithRechecker(rechecker))
	for _, name := range []stage.Name{stage.MetadataVideo, stage.ArtworkScan} {
		if err := m.Register(name, &scriptedSource{}, newCountingHandler()); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.RunJob(context.Background(), "recheck"); err != nil {
		t.Fatalf("recheck job failed: %v", err)
	}
	if len(rechecker.stages) != 2 {
		t.Fatalf("unexpected stages passed to rechecker: %v", rechecker.stages)
	}
	if age := time.Since(rechecker.before); age < 7*24*time.Hour-time.Minute || age > 7*24*time.Hour+time.Minute {
		t.Fatalf("unexpected cutoff age %v", age)
	}
	video, _ := m.Stage(stage.MetadataVideo)
	artwork, _ := m.Stage(stage.ArtworkScan)
	if !video.Triggered() {
		t.Fatal("expected metadata-video triggered")
	}
	if artwork.Triggered() {
		t.Fatal("artwork-scan got no work and must stay idle")
	}

	if _, err := m.Recheck(context.Background(), workflow.RecheckRequest{Stages: []stage.Name{stage.Deletion}}); !errors.Is(err, workflow.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}

func TestStatusReportsStages(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stages[string(stage.TrailerProcess)] = config.StageOverride{MaxThreads: intPtr(0)}
	m := workflow.NewManager(workflow.StaticConfig(cfg), nil)
	for _, name := range []stage.Name{stage.TrailerScan, stage.TrailerProcess} {
		if err := m.Register(name, &scriptedSource{}, newCountingHandler()); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Wire(); err != nil {
		t.Fatal(err)
	}
	if err := m.Trigger(stage.TrailerScan); err != nil {
		t.Fatal(err)
	}

	status := m.Status()
	if len(status.Stages) != 2 {
		t.Fatalf("unexpected stage count %d", len(status.Stages))
	}
	scan, process := status.Stages[0], status.Stages[1]
	if scan.State != workflow.StateTriggered || len(scan.Downstream) != 1 || scan.Downstream[0] != stage.TrailerProcess {
		t.Fatalf("unexpected trailer-scan status: %+v", scan)
	}
	if len(process.Upstream) != 1 || process.Upstream[0] != stage.TrailerScan {
		t.Fatalf("expected trailer-process to list trailer-scan upstream, got %v", process.Upstream)
	}
	if process.State != workflow.StateDisabled {
		t.Fatalf("unexpected trailer-process state: %q", process.State)
	}
	health := m.Health(context.Background())
	if len(health) != 2 || !health[0].Ready {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestMetricsCountTicksAndItems(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := workflow.NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}
	src := &scriptedSource{batches: []stage.Batch{items(1, 2)}}
	handler := newCountingHandler()
	handler.fail[2] = errors.New("bad")
	s := workflow.NewStage(stage.ImportImage, src, handler, newSettings(1, 10).get, workflow.WithStageMetrics(metrics))
	s.Trigger()
	s.Tick(context.Background())
	s.Tick(context.Background())

	expected := `
# HELP curator_stage_items_total Work items processed by outcome.
# TYPE curator_stage_items_total counter
curator_stage_items_total{outcome="failed",stage="import-image"} 1
curator_stage_items_total{outcome="succeeded",stage="import-image"} 1
# HELP curator_stage_ticks_total Stage ticks by result.
# TYPE curator_stage_ticks_total counter
curator_stage_ticks_total{result="empty",stage="import-image"} 1
curator_stage_ticks_total{result="processed",stage="import-image"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "curator_stage_items_total", "curator_stage_ticks_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}
