package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"curator/internal/config"
	"curator/internal/daemon"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/staging"
	"curator/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the curator daemon runtime loop. cfg is watched for changes when
// it was loaded from a file.
func Run(cmdCtx context.Context, cfg *config.Live, opts Options) error {
	if cfg == nil || cfg.Get() == nil {
		return fmt.Errorf("config is required")
	}
	current := cfg.Get()

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(current, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, current)

	if cfg.Path() != "" {
		if err := cfg.Watch(signalCtx, logger); err != nil {
			logger.Warn("config hot reload disabled",
				logging.Error(err),
				logging.String(logging.FieldEventType, "config_watch_failed"),
				logging.String(logging.FieldErrorHint, "stage settings only apply after restart"),
			)
		}
	}

	store, err := library.Open(current)
	if err != nil {
		logger.Error("open library store", logging.Error(err))
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := workflow.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	manager := workflow.NewManager(cfg, logger,
		workflow.WithMetrics(metrics),
		workflow.WithRechecker(store),
	)
	notifier := notifications.NewService(current)
	if err := RegisterStages(manager, cfg, store, notifier, logger); err != nil {
		return fmt.Errorf("register stages: %w", err)
	}
	scanner := staging.NewScanner(store, cfg, manager, logger)
	staging.RegisterJob(manager, scanner)

	d, err := daemon.New(cfg, store, logger, manager, scanner,
		daemon.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		daemon.WithNotifier(notifier),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	release, err := startAndClaim(signalCtx, d, filepath.Join(current.Paths.DataDir, "curator.pid"))
	if err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check that no other daemon holds the lock and the api bind is free"),
		)
		return err
	}
	defer release()

	<-signalCtx.Done()
	logger.Info("curator daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if opts.LogLevel == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	outputs := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, "curator.log"))
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
	})
}

// startAndClaim starts d and, once it holds the instance lock, records the
// process id at pidPath. A daemon that loses the lock leaves the running
// instance's pid file alone. release removes the pid file.
func startAndClaim(ctx context.Context, d *daemon.Daemon, pidPath string) (release func(), err error) {
	if err := d.Start(ctx); err != nil {
		return nil, err
	}
	if err := writePIDFile(pidPath); err != nil {
		d.Stop()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return func() { _ = os.Remove(pidPath) }, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffprobe := cfg.FFprobeBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("tmdb_key_present", strings.TrimSpace(cfg.TMDB.APIKey) != ""),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.Int("library_roots", len(cfg.Paths.LibraryRoots)),
		logging.Bool("watch", cfg.Workflow.Watch),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
