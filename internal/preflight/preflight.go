package preflight

import (
	"context"
	"fmt"

	"curator/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Local runs the checks that only touch the local machine: library roots,
// data and artwork directories, ffprobe and the presence of a TMDB key.
func Local(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := make([]Result, 0, len(cfg.Paths.LibraryRoots)+4)
	for i, root := range cfg.Paths.LibraryRoots {
		name := "Library root"
		if len(cfg.Paths.LibraryRoots) > 1 {
			name = fmt.Sprintf("Library root %d", i+1)
		}
		results = append(results, CheckDirectoryAccess(name, root, AccessRead))
	}
	results = append(results,
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir, AccessReadWrite),
		CheckDirectoryAccess("Artwork directory", cfg.Paths.ArtworkDir, AccessReadWrite),
		CheckBinary("FFprobe", cfg.FFprobeBinary()),
		CheckTMDBKey(cfg.TMDB.APIKey),
	)
	return results
}

// RunAll executes Local plus the network checks.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	results := Local(cfg)
	if cfg == nil || cfg.TMDB.APIKey == "" {
		return results
	}
	return append(results, CheckTMDB(ctx, cfg.TMDB.BaseURL, cfg.TMDB.APIKey))
}

// Failed filters results down to the failed checks.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
