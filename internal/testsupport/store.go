package testsupport

import (
	"context"
	"testing"

	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/stage"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue creates a pending task for tests using the provided store.
func Enqueue(t testing.TB, store *library.Store, name stage.Name, domain stage.Domain, ref string) *library.Task {
	t.Helper()

	task, err := store.EnqueueTask(context.Background(), library.TaskSpec{Stage: name, Domain: domain, Ref: ref})
	if err != nil {
		t.Fatalf("store.EnqueueTask: %v", err)
	}
	return task
}

// Fetch returns the pending items of a stage, failing the test on error.
func Fetch(t testing.TB, store *library.Store, name stage.Name) stage.Batch {
	t.Helper()

	batch, err := store.FetchEligible(context.Background(), name, 100)
	if err != nil {
		t.Fatalf("store.FetchEligible: %v", err)
	}
	return batch
}

// RunStage processes every pending item of a stage once with handler.
func RunStage(t testing.TB, store *library.Store, name stage.Name, handler stage.Handler) int {
	t.Helper()

	ctx := context.Background()
	batch := Fetch(t, store, name)
	for _, item := range batch {
		if err := handler.Process(ctx, item); err != nil {
			handler.OnError(ctx, item, err)
		}
	}
	return batch.Len()
}

// TaskFor returns the task of a stage for ref, failing the test when absent.
func TaskFor(t testing.TB, store *library.Store, name stage.Name, ref string) *library.Task {
	t.Helper()

	task, err := store.FindTask(context.Background(), name, ref)
	if err != nil {
		t.Fatalf("store.FindTask: %v", err)
	}
	if task == nil {
		t.Fatalf("no %s task for %s", name, ref)
	}
	return task
}
