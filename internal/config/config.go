package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	LibraryRoots []string `toml:"library_roots"`
	DataDir      string   `toml:"data_dir"`
	LogDir       string   `toml:"log_dir"`
	ArtworkDir   string   `toml:"artwork_dir"`
	APIBind      string   `toml:"api_bind"`
	APIToken     string   `toml:"api_token"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	ImageBaseURL   string `toml:"image_base_url"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains configuration for the stage scheduler and staging scans.
type Workflow struct {
	SchedulerThreads     int    `toml:"scheduler_threads"`
	TriggerAllSchedule   string `toml:"trigger_all_schedule"`
	StagingSchedule      string `toml:"staging_schedule"`
	ScanOnStart          bool   `toml:"scan_on_start"`
	Watch                bool   `toml:"watch"`
	WatchDebounceSeconds int    `toml:"watch_debounce_seconds"`
	MinFileAgeSeconds    int    `toml:"min_file_age_seconds"`
	ErrorRetrySeconds    int    `toml:"error_retry_seconds"`
}

// Recheck controls the periodic job that re-queues stale finished tasks.
type Recheck struct {
	Schedule      string   `toml:"schedule"`
	MaxAgeDays    int      `toml:"max_age_days"`
	Stages        []string `toml:"stages"`
	IncludeErrors bool     `toml:"include_errors"`
}

// Artwork contains configuration for artwork downloads.
type Artwork struct {
	MinFreeMiB             int      `toml:"min_free_mib"`
	DownloadTimeoutSeconds int      `toml:"download_timeout_seconds"`
	Kinds                  []string `toml:"kinds"`
}

// Trailers contains configuration for trailer availability checks.
type Trailers struct {
	CheckTimeoutSeconds int `toml:"check_timeout_seconds"`
}

// Notifications configures ntfy push notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyTaskErrors      bool   `toml:"notify_task_errors"`
	NotifyUnmatched       bool   `toml:"notify_unmatched"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// StageOverride is the raw [stages.<name>] table. Unset keys inherit the
// built-in default for that stage.
type StageOverride struct {
	MaxThreads     *int `toml:"max_threads,omitempty"`
	MaxResults     *int `toml:"max_results,omitempty"`
	TickIntervalMS *int `toml:"tick_interval_ms,omitempty"`
}

// StageSettings are the resolved scheduler settings for one stage.
type StageSettings struct {
	MaxThreads   int
	MaxResults   int
	TickInterval time.Duration
}

// Enabled reports whether the stage may run at all.
func (s StageSettings) Enabled() bool {
	return s.MaxThreads > 0
}

// Config encapsulates all configuration values for curator.
//
// Configuration sections by subsystem:
//   - Paths: library roots, data/log/artwork directories and API bind address
//   - TMDB: metadata, artwork and trailer lookups
//   - Workflow: scheduler pool size, safety-net schedules and staging scans
//   - Recheck: periodic re-queue of stale finished tasks
//   - Artwork, Trailers: handler timeouts and guards
//   - Notifications: ntfy alerts for failed and unmatched tasks
//   - Logging: log format, level and per-stage overrides
//   - Stages: per-stage thread count, batch size and tick interval
type Config struct {
	Paths    Paths                    `toml:"paths"`
	TMDB     TMDB                     `toml:"tmdb"`
	Workflow Workflow                 `toml:"workflow"`
	Recheck  Recheck                  `toml:"recheck"`
	Artwork  Artwork                  `toml:"artwork"`
	Trailers Trailers                 `toml:"trailers"`
	Notify   Notifications            `toml:"notifications"`
	Logging  Logging                  `toml:"logging"`
	Stages   map[string]StageOverride `toml:"stages"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("curator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// StageSettings resolves the scheduler settings for a stage, applying any
// [stages.<name>] override on top of the built-in defaults.
func (c *Config) StageSettings(name string) StageSettings {
	settings := defaultStageSettings(name)
	override, ok := c.Stages[name]
	if !ok {
		return settings
	}
	if override.MaxThreads != nil {
		settings.MaxThreads = *override.MaxThreads
	}
	if override.MaxResults != nil && *override.MaxResults > 0 {
		settings.MaxResults = *override.MaxResults
	}
	if override.TickIntervalMS != nil && *override.TickIntervalMS > 0 {
		settings.TickInterval = time.Duration(*override.TickIntervalMS) * time.Millisecond
	}
	return settings
}

// DatabasePath is the SQLite library database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "library.db")
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "curator.lock")
}

// EnsureDirectories creates required directories for daemon operation.
// Library roots are never created: a missing root usually means unmounted
// storage, and staging treats it as empty.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ArtworkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// TMDBTimeout returns the per-request timeout for TMDB calls.
func (c *Config) TMDBTimeout() time.Duration {
	return time.Duration(c.TMDB.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the config back to TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
