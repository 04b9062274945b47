package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/stage"
	"curator/internal/staging"
	"curator/internal/testsupport"
	"curator/internal/workflow"
)

func newTestAPI(t *testing.T, mutate func(*config.Config)) (http.Handler, *library.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	source := workflow.StaticConfig(cfg)
	mgr := workflow.NewManager(source, logger, workflow.WithRechecker(store))
	for _, name := range []stage.Name{stage.ImportVideo, stage.MetadataVideo} {
		if err := mgr.Register(name, store.Source(name), stage.HandlerFunc{}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	d, err := New(source, store, logger, mgr, staging.NewScanner(store, source, mgr, logger),
		WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("curator_up 1\n"))
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d.api.handler, store, cfg
}

func serve(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPIStagesReportsCounts(t *testing.T) {
	h, store, _ := newTestAPI(t, nil)
	testsupport.Enqueue(t, store, stage.MetadataVideo, stage.DomainVideo, library.MediaRef(1))

	w := serve(t, h, http.MethodGet, "/api/stages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got := resp.TaskCounts[string(stage.MetadataVideo)][string(library.StatusNew)]; got != 1 {
		t.Fatalf("expected one new metadata-video task, got %d (%v)", got, resp.TaskCounts)
	}
	if len(resp.Workflow.Stages) != 2 {
		t.Fatalf("expected 2 registered stages, got %d", len(resp.Workflow.Stages))
	}
}

func TestAPITriggerUnknownStage(t *testing.T) {
	h, _, _ := newTestAPI(t, nil)

	w := serve(t, h, http.MethodPost, "/api/stages/no-such-stage/trigger", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = serve(t, h, http.MethodPost, "/api/stages/import-video/trigger", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.TriggerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Triggered) != 1 || resp.Triggered[0] != "import-video" {
		t.Fatalf("unexpected trigger response %+v", resp)
	}
}

func TestAPITriggerAllListsRegisteredStages(t *testing.T) {
	h, _, _ := newTestAPI(t, nil)

	w := serve(t, h, http.MethodPost, "/api/trigger-all", nil)
	var resp api.TriggerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Triggered) != 2 {
		t.Fatalf("expected 2 triggered stages, got %v", resp.Triggered)
	}
}

func TestAPIScanRejectsPathOutsideRoots(t *testing.T) {
	h, _, cfg := newTestAPI(t, nil)

	w := serve(t, h, http.MethodPost, "/api/scan", api.ScanRequest{Path: filepath.Join(testsupport.BaseDir(cfg), "elsewhere")})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPIRecheckRequeuesErrors(t *testing.T) {
	h, store, _ := newTestAPI(t, nil)
	testsupport.Enqueue(t, store, stage.MetadataVideo, stage.DomainVideo, library.MediaRef(7))
	batch := testsupport.Fetch(t, store, stage.MetadataVideo)
	if len(batch) != 1 {
		t.Fatalf("expected one fetched item, got %d", len(batch))
	}
	if err := store.FailTask(t.Context(), batch[0].ID, batch[0].Version, errors.New("boom")); err != nil {
		t.Fatalf("FailTask: %v", err)
	}

	w := serve(t, h, http.MethodPost, "/api/recheck", api.RecheckRequest{
		Stages:        []string{string(stage.MetadataVideo)},
		IncludeErrors: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.RecheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Requeued[string(stage.MetadataVideo)] != 1 {
		t.Fatalf("expected 1 requeued task, got %v", resp.Requeued)
	}

	w = serve(t, h, http.MethodPost, "/api/recheck", api.RecheckRequest{OlderThan: "soon"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad duration, got %d", w.Code)
	}
}

func TestAPITasksFilters(t *testing.T) {
	h, store, _ := newTestAPI(t, nil)
	testsupport.Enqueue(t, store, stage.MetadataVideo, stage.DomainVideo, library.MediaRef(1))
	testsupport.Enqueue(t, store, stage.ImportVideo, stage.DomainFile, "/library/a.mkv")

	w := serve(t, h, http.MethodGet, "/api/tasks?stage=metadata-video", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.TaskListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Ref != library.MediaRef(1) {
		t.Fatalf("unexpected tasks %+v", resp.Tasks)
	}

	if w := serve(t, h, http.MethodGet, "/api/tasks?status=bogus", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
	if w := serve(t, h, http.MethodGet, "/api/tasks?limit=-1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestAPIHealth(t *testing.T) {
	h, _, _ := newTestAPI(t, nil)

	w := serve(t, h, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready || resp.Database != "ok" {
		t.Fatalf("unexpected health %+v", resp)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	h, _, _ := newTestAPI(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "secret"
	})

	if w := serve(t, h, http.MethodGet, "/api/health", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}

	if w := serve(t, h, http.MethodGet, "/metrics", nil); w.Code != http.StatusOK {
		t.Fatalf("expected metrics to be served without token, got %d", w.Code)
	}
}

func TestParseAge(t *testing.T) {
	cases := map[string]time.Duration{
		"30d": 30 * 24 * time.Hour,
		"90m": 90 * time.Minute,
		"0d":  0,
	}
	for input, want := range cases {
		got, err := parseAge(input)
		if err != nil {
			t.Fatalf("parseAge(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("parseAge(%q) = %s, want %s", input, got, want)
		}
	}
	for _, bad := range []string{"soon", "-1h", "xd"} {
		if _, err := parseAge(bad); err == nil {
			t.Fatalf("expected parseAge(%q) to fail", bad)
		}
	}
}

func TestAPIRetryRequeuesFailedTasks(t *testing.T) {
	h, store, _ := newTestAPI(t, nil)
	ref := library.MediaRef(11)
	testsupport.Enqueue(t, store, stage.MetadataVideo, stage.DomainVideo, ref)
	batch := testsupport.Fetch(t, store, stage.MetadataVideo)
	if err := store.FailTask(t.Context(), batch[0].ID, batch[0].Version, errors.New("tmdb down")); err != nil {
		t.Fatalf("FailTask: %v", err)
	}

	w := serve(t, h, http.MethodPost, "/api/retry", api.RetryRequest{Stage: string(stage.MetadataVideo)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.RetryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Retried != 1 {
		t.Fatalf("expected 1 retried task, got %d", resp.Retried)
	}
	if task := testsupport.TaskFor(t, store, stage.MetadataVideo, ref); task.Status != library.StatusUpdated {
		t.Fatalf("expected retried task to be updated, got %s", task.Status)
	}

	w = serve(t, h, http.MethodPost, "/api/retry", api.RetryRequest{Stage: "artwork-scan"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unregistered stage, got %d", w.Code)
	}
}

func TestAPIRunJob(t *testing.T) {
	h, _, _ := newTestAPI(t, nil)

	w := serve(t, h, http.MethodPost, "/api/jobs/trigger-all/run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Job != workflow.JobTriggerAll {
		t.Fatalf("unexpected job %q", resp.Job)
	}

	w = serve(t, h, http.MethodPost, "/api/jobs/defrag/run", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", w.Code)
	}
}
