package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTMDB()
	c.normalizeWorkflow()
	c.normalizeRecheck()
	c.normalizeArtwork()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	roots := make([]string, 0, len(c.Paths.LibraryRoots))
	seen := make(map[string]struct{}, len(c.Paths.LibraryRoots))
	for _, root := range c.Paths.LibraryRoots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(root))
		if err != nil {
			return fmt.Errorf("paths.library_roots: %w", err)
		}
		if _, dup := seen[expanded]; dup {
			continue
		}
		seen[expanded] = struct{}{}
		roots = append(roots, expanded)
	}
	c.Paths.LibraryRoots = roots

	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtworkDir) == "" {
		c.Paths.ArtworkDir = defaultArtworkDir
	}
	if c.Paths.ArtworkDir, err = expandPath(c.Paths.ArtworkDir); err != nil {
		return fmt.Errorf("paths.artwork_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CURATOR_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.ImageBaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.ImageBaseURL), "/")
	if c.TMDB.ImageBaseURL == "" {
		c.TMDB.ImageBaseURL = defaultTMDBImageBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.Language == "" {
		c.TMDB.Language = defaultTMDBLanguage
	}
	if c.TMDB.TimeoutSeconds <= 0 {
		c.TMDB.TimeoutSeconds = defaultTMDBTimeoutSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.TriggerAllSchedule = strings.TrimSpace(c.Workflow.TriggerAllSchedule)
	c.Workflow.StagingSchedule = strings.TrimSpace(c.Workflow.StagingSchedule)
	if c.Workflow.WatchDebounceSeconds <= 0 {
		c.Workflow.WatchDebounceSeconds = defaultWatchDebounceSeconds
	}
	if c.Workflow.MinFileAgeSeconds < 0 {
		c.Workflow.MinFileAgeSeconds = 0
	}
	if c.Workflow.ErrorRetrySeconds <= 0 {
		c.Workflow.ErrorRetrySeconds = defaultErrorRetrySeconds
	}
}

func (c *Config) normalizeRecheck() {
	c.Recheck.Schedule = strings.TrimSpace(c.Recheck.Schedule)
	stages := make([]string, 0, len(c.Recheck.Stages))
	for _, name := range c.Recheck.Stages {
		if trimmed := strings.ToLower(strings.TrimSpace(name)); trimmed != "" {
			stages = append(stages, trimmed)
		}
	}
	c.Recheck.Stages = stages
}

func (c *Config) normalizeArtwork() {
	if c.Artwork.DownloadTimeoutSeconds <= 0 {
		c.Artwork.DownloadTimeoutSeconds = defaultArtworkDownloadTimeout
	}
	if c.Artwork.MinFreeMiB < 0 {
		c.Artwork.MinFreeMiB = 0
	}
	if c.Trailers.CheckTimeoutSeconds <= 0 {
		c.Trailers.CheckTimeoutSeconds = defaultTrailerCheckTimeout
	}
	kinds := make([]string, 0, len(c.Artwork.Kinds))
	for _, kind := range c.Artwork.Kinds {
		if trimmed := strings.ToLower(strings.TrimSpace(kind)); trimmed != "" {
			kinds = append(kinds, trimmed)
		}
	}
	c.Artwork.Kinds = kinds
}

func (c *Config) normalizeNotifications() {
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.RequestTimeoutSeconds <= 0 {
		c.Notify.RequestTimeoutSeconds = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.StageOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.StageOverrides))
		for name, level := range c.Logging.StageOverrides {
			normalized[strings.ToLower(strings.TrimSpace(name))] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.StageOverrides = normalized
	}
}
