package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
	"curator/internal/workflow"
)

type apiServer struct {
	bind    string
	handler http.Handler
	logger  *slog.Logger
	daemon  *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.handler = srv.routes(cfg.Paths.APIToken)
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stages", s.handleStages)
	mux.HandleFunc("POST /api/stages/{name}/trigger", s.handleTrigger)
	mux.HandleFunc("POST /api/trigger-all", s.handleTriggerAll)
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("POST /api/recheck", s.handleRecheck)
	mux.HandleFunc("POST /api/retry", s.handleRetry)
	mux.HandleFunc("POST /api/jobs/{name}/run", s.handleRunJob)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	root := http.NewServeMux()
	root.Handle("/api/", authMiddleware(token, mux))
	if s.daemon.metrics != nil {
		root.Handle("GET /metrics", s.daemon.metrics)
	}
	return root
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStages(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     status.Workflow,
		TaskCounts:   api.FromStageCounts(status.TaskCounts),
	})
}

func (s *apiServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := stage.Name(r.PathValue("name"))
	if err := s.daemon.Trigger(name); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.TriggerResponse{Triggered: []string{string(name)}})
}

func (s *apiServer) handleTriggerAll(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.TriggerAll(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	triggered := make([]string, 0, len(stage.All))
	for _, name := range stage.All {
		if _, ok := s.daemon.workflow.Stage(name); ok {
			triggered = append(triggered, string(name))
		}
	}
	s.writeJSON(w, http.StatusOK, api.TriggerResponse{Triggered: triggered})
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	var req api.ScanRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.daemon.Scan(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	stages := make([]string, 0, len(result.Stages))
	for _, name := range result.Stages {
		stages = append(stages, string(name))
	}
	s.writeJSON(w, http.StatusOK, api.ScanResponse{
		Scanned:  result.Scanned,
		Enqueued: result.Enqueued,
		Held:     result.Held,
		Deleted:  result.Deleted,
		Stages:   stages,
	})
}

func (s *apiServer) handleRecheck(w http.ResponseWriter, r *http.Request) {
	var req api.RecheckRequest
	if !s.decode(w, r, &req) {
		return
	}
	recheck := workflow.RecheckRequest{IncludeErrors: req.IncludeErrors}
	for _, name := range req.Stages {
		recheck.Stages = append(recheck.Stages, stage.Name(name))
	}
	if req.OlderThan != "" {
		age, err := parseAge(req.OlderThan)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid olderThan duration")
			return
		}
		recheck.MaxAge = age
	}
	counts, err := s.daemon.Recheck(r.Context(), recheck)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	requeued := make(map[string]int, len(counts))
	for name, count := range counts {
		requeued[string(name)] = count
	}
	s.writeJSON(w, http.StatusOK, api.RecheckResponse{Requeued: requeued})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req api.RetryRequest
	if !s.decode(w, r, &req) {
		return
	}
	retried, err := s.daemon.Retry(r.Context(), stage.Name(strings.TrimSpace(req.Stage)))
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RetryResponse{Retried: retried})
}

func (s *apiServer) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.daemon.RunJob(r.Context(), name); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: name})
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := library.TaskFilter{
		Stage:  stage.Name(strings.TrimSpace(query.Get("stage"))),
		Status: library.Status(strings.TrimSpace(query.Get("status"))),
		Limit:  100,
	}
	if filter.Stage != "" && !filter.Stage.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown stage "+string(filter.Stage))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown status "+string(filter.Status))
		return
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	tasks, err := s.daemon.Tasks(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: api.FromTasks(tasks)})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.Health(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Database: err.Error()})
		return
	}
	resp := api.HealthResponse{
		Ready:    true,
		Database: "ok",
		Pending:  report.Tasks.Pending,
		Errors:   report.Tasks.Errors,
		Stages:   api.StageHealthSlice(report.Stages),
		System:   api.FromPreflight(report.System),
	}
	for _, h := range resp.Stages {
		if !h.Ready {
			resp.Ready = false
		}
	}
	for _, check := range resp.System {
		if !check.Passed {
			resp.Ready = false
		}
	}
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// parseAge accepts Go durations plus a whole-day suffix such as "30d".
func parseAge(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	age, err := time.ParseDuration(value)
	if err != nil || age < 0 {
		return 0, fmt.Errorf("invalid age %q", value)
	}
	return age, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrUnknownStage), errors.Is(err, workflow.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
