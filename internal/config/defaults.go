package config

import "time"

const (
	defaultConfigPath             = "~/.config/curator/config.toml"
	defaultLibraryRoot            = "~/media"
	defaultDataDir                = "~/.local/share/curator"
	defaultLogDir                 = "~/.local/share/curator/logs"
	defaultArtworkDir             = "~/.local/share/curator/artwork"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultTMDBLanguage           = "en-US"
	defaultTMDBBaseURL            = "https://api.themoviedb.org/3"
	defaultTMDBImageBaseURL       = "https://image.tmdb.org/t/p/original"
	defaultTMDBTimeoutSeconds     = 10
	defaultSchedulerThreads       = 4
	defaultTriggerAllSchedule     = "@every 5m"
	defaultStagingSchedule        = "@every 15m"
	defaultWatchDebounceSeconds   = 5
	defaultMinFileAgeSeconds      = 30
	defaultErrorRetrySeconds      = 30
	defaultRecheckSchedule        = "@daily"
	defaultRecheckMaxAgeDays      = 30
	defaultArtworkMinFreeMiB      = 512
	defaultArtworkDownloadTimeout = 30
	defaultTrailerCheckTimeout    = 10
	defaultNtfyRequestTimeout     = 10
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
	defaultStageMaxThreads        = 2
	defaultStageMaxResults        = 100
	defaultStageTickInterval      = 2 * time.Second
)

// stageDefaults holds per-stage overrides of the generic defaults. Network
// bound stages get more threads; deletion runs single-threaded.
var stageDefaults = map[string]StageSettings{
	"import-video":         {MaxThreads: 2, MaxResults: 200},
	"import-nfo":           {MaxThreads: 2, MaxResults: 200},
	"import-image":         {MaxThreads: 2, MaxResults: 200},
	"import-watched":       {MaxThreads: 1, MaxResults: 200},
	"import-subtitle":      {MaxThreads: 2, MaxResults: 200},
	"mediafile-scan":       {MaxThreads: 2, MaxResults: 50},
	"metadata-video":       {MaxThreads: 4, MaxResults: 50},
	"metadata-people":      {MaxThreads: 4, MaxResults: 100},
	"metadata-filmography": {MaxThreads: 2, MaxResults: 100},
	"artwork-scan":         {MaxThreads: 4, MaxResults: 100},
	"artwork-process":      {MaxThreads: 4, MaxResults: 100},
	"trailer-scan":         {MaxThreads: 2, MaxResults: 100},
	"trailer-process":      {MaxThreads: 2, MaxResults: 100},
	"deletion":             {MaxThreads: 1, MaxResults: 500},
}

func defaultStageSettings(name string) StageSettings {
	settings := StageSettings{
		MaxThreads:   defaultStageMaxThreads,
		MaxResults:   defaultStageMaxResults,
		TickInterval: defaultStageTickInterval,
	}
	if known, ok := stageDefaults[name]; ok {
		if known.MaxThreads != 0 {
			settings.MaxThreads = known.MaxThreads
		}
		if known.MaxResults != 0 {
			settings.MaxResults = known.MaxResults
		}
		if known.TickInterval != 0 {
			settings.TickInterval = known.TickInterval
		}
	}
	return settings
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryRoots: []string{defaultLibraryRoot},
			DataDir:      defaultDataDir,
			LogDir:       defaultLogDir,
			ArtworkDir:   defaultArtworkDir,
			APIBind:      defaultAPIBind,
		},
		TMDB: TMDB{
			BaseURL:        defaultTMDBBaseURL,
			ImageBaseURL:   defaultTMDBImageBaseURL,
			Language:       defaultTMDBLanguage,
			TimeoutSeconds: defaultTMDBTimeoutSeconds,
		},
		Workflow: Workflow{
			SchedulerThreads:     defaultSchedulerThreads,
			TriggerAllSchedule:   defaultTriggerAllSchedule,
			StagingSchedule:      defaultStagingSchedule,
			ScanOnStart:          true,
			Watch:                true,
			WatchDebounceSeconds: defaultWatchDebounceSeconds,
			MinFileAgeSeconds:    defaultMinFileAgeSeconds,
			ErrorRetrySeconds:    defaultErrorRetrySeconds,
		},
		Recheck: Recheck{
			Schedule:   defaultRecheckSchedule,
			MaxAgeDays: defaultRecheckMaxAgeDays,
			Stages:     []string{"metadata-video", "metadata-people", "artwork-scan", "trailer-scan"},
		},
		Artwork: Artwork{
			MinFreeMiB:             defaultArtworkMinFreeMiB,
			DownloadTimeoutSeconds: defaultArtworkDownloadTimeout,
			Kinds:                  []string{"poster", "backdrop", "profile"},
		},
		Trailers: Trailers{
			CheckTimeoutSeconds: defaultTrailerCheckTimeout,
		},
		Notify: Notifications{
			RequestTimeoutSeconds: defaultNtfyRequestTimeout,
			NotifyTaskErrors:      true,
			NotifyUnmatched:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
