package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/config"
	"curator/internal/daemon"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/stage"
	"curator/internal/staging"
	"curator/internal/testsupport"
	"curator/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *library.Store
	daemon     *daemon.Daemon
	configPath string
	apiAddr    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	// Scan commands assert exact counts; a start-up pass would race them.
	cfg.Workflow.ScanOnStart = false
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "curator", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	source := workflow.StaticConfig(cfg)
	mgr := workflow.NewManager(source, logger, workflow.WithRechecker(store))
	for _, name := range []stage.Name{stage.ImportVideo, stage.MediaFileScan, stage.MetadataVideo} {
		if err := mgr.Register(name, store.Source(name), stage.HandlerFunc{}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	scanner := staging.NewScanner(store, source, mgr, logger)

	d, err := daemon.New(source, store, logger, mgr, scanner)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		configPath: configPath,
		apiAddr:    d.APIAddress(),
	}
}

func runCLI(t *testing.T, args []string, apiAddr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiAddr != "" {
		flags = append(flags, "--api", apiAddr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nlibrary_roots = [%q]\ndata_dir = %q\nlog_dir = %q\nartwork_dir = %q\napi_bind = %q\n\n[tmdb]\napi_key = %q\n\n[workflow]\nmin_file_age_seconds = 0\nscan_on_start = false\n",
		testsupport.LibraryRoot(cfg),
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.ArtworkDir,
		cfg.Paths.APIBind,
		cfg.TMDB.APIKey,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
