package staging_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/stage"
	"curator/internal/staging"
	"curator/internal/testsupport"
)

type recordingTrigger struct {
	mu    sync.Mutex
	names []stage.Name
}

func (r *recordingTrigger) Trigger(name stage.Name) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return nil
}

func (r *recordingTrigger) snapshot() []stage.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]stage.Name(nil), r.names...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type staticConfig struct{ cfg *config.Config }

func (s staticConfig) Get() *config.Config { return s.cfg }

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"/m/Heat.mkv":         staging.TypeVideo,
		"/m/Heat.2160p.MKV":   staging.TypeVideo,
		"/m/Heat.nfo":         staging.TypeNFO,
		"/m/poster.jpg":       staging.TypeImage,
		"/m/folder.TBN":       staging.TypeImage,
		"/m/Heat.en.srt":      staging.TypeSubtitle,
		"/m/Heat.mkv.watched": staging.TypeWatched,
		"/m/.watched":         staging.TypeWatched,
		"/m/.hidden.mkv":      "",
		"/m/Heat.mkv.part":    "",
		"/m/sample.mkv":       "",
		"/m/Heat-sample.mkv":  "",
		"/m/readme.txt":       "",
	}
	for path, want := range cases {
		got, ok := staging.Classify(path)
		if ok != (want != "") || got != want {
			t.Errorf("Classify(%q) = %q, %v; want %q", path, got, ok, want)
		}
	}
}

func TestScanEnqueuesChangedFilesOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := testsupport.LibraryRoot(cfg)
	ctx := context.Background()

	testsupport.WriteFile(t, filepath.Join(root, "Heat (1995)", "Heat (1995).mkv"), 64)
	testsupport.WriteFile(t, filepath.Join(root, "Heat (1995)", "Heat (1995).nfo"), 16)
	testsupport.WriteFile(t, filepath.Join(root, "Heat (1995)", "poster.jpg"), 16)
	testsupport.WriteFile(t, filepath.Join(root, "Heat (1995)", "notes.txt"), 16)
	testsupport.WriteFile(t, filepath.Join(root, ".trash", "Old.mkv"), 16)

	trigger := &recordingTrigger{}
	scanner := staging.NewScanner(store, staticConfig{cfg}, trigger, nil)

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Scanned != 3 || result.Enqueued != 3 || result.Deleted != 0 {
		t.Fatalf("unexpected first scan result: %+v", result)
	}
	want := []stage.Name{stage.ImportImage, stage.ImportNFO, stage.ImportVideo}
	if got := trigger.snapshot(); !equalNames(got, want) {
		t.Fatalf("unexpected triggered stages %v, want %v", got, want)
	}
	batch := testsupport.Fetch(t, store, stage.ImportVideo)
	if len(batch) != 1 || batch[0].Subtype != staging.TypeVideo {
		t.Fatalf("unexpected import-video batch: %+v", batch)
	}

	result, err = scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if result.Enqueued != 0 {
		t.Fatalf("unchanged files must not be re-enqueued: %+v", result)
	}
}

func TestScanHoldsYoungFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MinFileAgeSeconds = 3600
	store := testsupport.MustOpenStore(t, cfg)
	root := testsupport.LibraryRoot(cfg)

	testsupport.WriteFile(t, filepath.Join(root, "fresh.mkv"), 8)
	old := testsupport.WriteFile(t, filepath.Join(root, "old.mkv"), 8, testsupport.ModifiedAgo(2*time.Hour))

	scanner := staging.NewScanner(store, staticConfig{cfg}, nil, nil)
	result, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Held != 1 || result.Enqueued != 1 {
		t.Fatalf("expected one held and one enqueued file, got %+v", result)
	}
	batch := testsupport.Fetch(t, store, stage.ImportVideo)
	if len(batch) != 1 || batch[0].Ref != old {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestScanStagesDeletionForVanishedFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := testsupport.LibraryRoot(cfg)
	ctx := context.Background()

	path := filepath.Join(root, "gone.mkv")
	testsupport.WriteFile(t, path, 8)
	trigger := &recordingTrigger{}
	scanner := staging.NewScanner(store, staticConfig{cfg}, trigger, nil)
	if _, err := scanner.Scan(ctx); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Deleted != 1 {
		t.Fatalf("expected one deletion, got %+v", result)
	}
	batch := testsupport.Fetch(t, store, stage.Deletion)
	if len(batch) != 1 || batch[0].Ref != path || batch[0].Subtype != staging.TypeVideo {
		t.Fatalf("unexpected deletion batch: %+v", batch)
	}
	importTask, err := store.FindTask(ctx, stage.ImportVideo, path)
	if err != nil {
		t.Fatalf("FindTask failed: %v", err)
	}
	if importTask.Status != library.StatusMissing {
		t.Fatalf("import task should be missing, got %s", importTask.Status)
	}
}

func TestScanSkipsUnavailableRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := testsupport.LibraryRoot(cfg)
	ctx := context.Background()

	testsupport.WriteFile(t, filepath.Join(root, "a.mkv"), 8)
	scanner := staging.NewScanner(store, staticConfig{cfg}, nil, nil)
	if _, err := scanner.Scan(ctx); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("remove root: %v", err)
	}
	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Deleted != 0 {
		t.Fatalf("missing root must not stage deletions, got %+v", result)
	}
}

func TestScanPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := testsupport.LibraryRoot(cfg)
	ctx := context.Background()
	scanner := staging.NewScanner(store, staticConfig{cfg}, nil, nil)

	dir := filepath.Join(root, "Show", "Season 01")
	testsupport.WriteFile(t, filepath.Join(dir, "Show.S01E01.mkv"), 8)
	testsupport.WriteFile(t, filepath.Join(dir, "Show.S01E01.en.srt"), 8)

	result, err := scanner.ScanPath(ctx, filepath.Join(root, "Show"))
	if err != nil {
		t.Fatalf("ScanPath failed: %v", err)
	}
	if result.Enqueued != 2 {
		t.Fatalf("expected two enqueued files, got %+v", result)
	}

	if err := os.RemoveAll(filepath.Join(root, "Show")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	result, err = scanner.ScanPath(ctx, filepath.Join(root, "Show"))
	if err != nil {
		t.Fatalf("ScanPath failed: %v", err)
	}
	if result.Deleted != 2 {
		t.Fatalf("expected both files staged for deletion, got %+v", result)
	}

	if _, err := scanner.ScanPath(ctx, "/elsewhere/file.mkv"); err == nil {
		t.Fatal("expected error for path outside library roots")
	}
}

func TestWatcherStagesNewFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	root := testsupport.LibraryRoot(cfg)
	trigger := &recordingTrigger{}
	scanner := staging.NewScanner(store, staticConfig{cfg}, trigger, nil)
	watcher := staging.NewWatcher(scanner, cfg.Paths.LibraryRoots, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
	testsupport.WriteFile(t, filepath.Join(root, "new.mkv"), 8)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if batch := testsupport.Fetch(t, store, stage.ImportVideo); len(batch) == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not stage the new file")
}

func equalNames(a, b []stage.Name) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
