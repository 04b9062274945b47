// Package artwork implements the artwork-scan and artwork-process stages.
// Scanning records the artwork TMDB offers for a media row or person;
// processing downloads it into the artwork directory.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
	"curator/internal/tmdb"
)

// ConfigSource yields the current configuration.
type ConfigSource interface {
	Get() *config.Config
}

// Service runs the artwork stages.
type Service struct {
	store  *library.Store
	cfg    ConfigSource
	client tmdb.API
	http   *http.Client
	statfs func(path string) (free uint64, err error)
	logger *slog.Logger
}

// NewService constructs a Service backed by the TMDB client configured in cfg.
func NewService(cfg ConfigSource, store *library.Store, logger *slog.Logger) (*Service, error) {
	current := cfg.Get()
	client, err := tmdb.New(current.TMDB.APIKey, current.TMDB.BaseURL, current.TMDB.Language,
		tmdb.WithTimeout(current.TMDBTimeout()),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "artwork", "tmdb client", "", err)
	}
	return NewServiceWithDependencies(cfg, store, client, nil, logger), nil
}

// NewServiceWithDependencies allows injecting the TMDB client and HTTP client
// (used in tests). A nil httpClient uses one bounded by the configured
// download timeout.
func NewServiceWithDependencies(cfg ConfigSource, store *library.Store, client tmdb.API, httpClient *http.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if httpClient == nil {
		timeout := time.Duration(cfg.Get().Artwork.DownloadTimeoutSeconds) * time.Second
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		client: client,
		http:   httpClient,
		statfs: freeBytes,
		logger: logging.NewComponentLogger(logger, "artwork"),
	}
}

// Handlers returns the artwork stage handlers keyed by stage name.
func (s *Service) Handlers() map[stage.Name]stage.Handler {
	return map[stage.Name]stage.Handler{
		stage.ArtworkScan:    library.NewTaskHandler(s.store, stage.ArtworkScan, s.scan, s.logger),
		stage.ArtworkProcess: library.NewTaskHandler(s.store, stage.ArtworkProcess, s.process, s.logger).WithHealth(s.health),
	}
}

func (s *Service) scan(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	kind, id, err := library.ParseRef(item.Ref)
	if err != nil {
		return "", err
	}

	var (
		ownerType string
		images    *tmdb.Images
	)
	switch kind {
	case library.RefMedia:
		media, err := s.store.GetMedia(ctx, id)
		if err != nil {
			return "", err
		}
		if media == nil {
			return library.StatusMissing, nil
		}
		if media.TMDBID == 0 {
			// Local artwork only until metadata resolves the title.
			return library.StatusDone, nil
		}
		ownerType = library.OwnerMedia
		tmdbKind := tmdb.KindMovie
		if media.Kind == library.MediaEpisode {
			tmdbKind = tmdb.KindTV
		}
		if images, err = s.client.Images(ctx, tmdbKind, media.TMDBID); err != nil {
			return "", err
		}
	case library.RefPerson:
		person, err := s.store.GetPerson(ctx, id)
		if err != nil {
			return "", err
		}
		if person == nil {
			return library.StatusMissing, nil
		}
		ownerType = library.OwnerPerson
		if images, err = s.client.PersonImages(ctx, person.TMDBID); err != nil {
			return "", err
		}
	default:
		return "", services.Wrap(services.ErrValidation, string(stage.ArtworkScan), "ref", "unsupported ref "+item.Ref, nil)
	}

	existing, err := s.store.ArtworkFor(ctx, ownerType, id)
	if err != nil {
		return "", err
	}
	local := make(map[string]bool)
	for _, art := range existing {
		if art.Source == library.ArtworkLocal {
			local[art.Kind] = true
		}
	}

	queued := 0
	for _, kind := range s.cfg.Get().Artwork.Kinds {
		if local[kind] {
			continue
		}
		image, ok := Pick(images, kind)
		if !ok {
			continue
		}
		art, err := s.store.UpsertArtwork(ctx, library.Artwork{
			OwnerType:  ownerType,
			OwnerID:    id,
			Kind:       kind,
			Source:     library.ArtworkTMDB,
			RemotePath: image.FilePath,
			Language:   image.Language,
			Width:      image.Width,
			Height:     image.Height,
		})
		if err != nil {
			return "", err
		}
		if art.Downloaded {
			continue
		}
		if _, err := s.store.EnqueueTask(ctx, library.TaskSpec{
			Stage: stage.ArtworkProcess, Domain: stage.DomainArtwork, Subtype: kind, Ref: library.Ref(library.RefArtwork, art.ID),
		}); err != nil {
			return "", err
		}
		queued++
	}
	logging.WithContext(ctx, s.logger).Debug("artwork scanned",
		logging.String("owner", item.Ref),
		logging.Int("queued", queued),
	)
	return library.StatusDone, nil
}

// Pick selects the best image of a kind: highest rated, preferring images
// without text or in English.
func Pick(images *tmdb.Images, kind string) (tmdb.Image, bool) {
	if images == nil {
		return tmdb.Image{}, false
	}
	var candidates []tmdb.Image
	switch kind {
	case "poster":
		candidates = images.Posters
	case "backdrop":
		candidates = images.Backdrops
	case "logo":
		candidates = images.Logos
	case "profile":
		candidates = images.Profiles
	}
	var (
		best  tmdb.Image
		found bool
	)
	for _, image := range candidates {
		if image.FilePath == "" {
			continue
		}
		if !found || rank(image) > rank(best) {
			best, found = image, true
		}
	}
	return best, found
}

func rank(image tmdb.Image) float64 {
	score := image.VoteAverage
	if image.Language == "" || image.Language == "en" {
		score += 10
	}
	return score
}

func (s *Service) process(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	logger := logging.WithContext(ctx, s.logger)
	id, err := library.ParseRefOf(item.Ref, library.RefArtwork)
	if err != nil {
		return "", err
	}
	art, err := s.store.GetArtwork(ctx, id)
	if err != nil {
		return "", err
	}
	if art == nil {
		return library.StatusMissing, nil
	}
	if art.Source == library.ArtworkLocal {
		return library.StatusDone, nil
	}
	if art.Downloaded && art.LocalPath != "" {
		if _, err := os.Stat(art.LocalPath); err == nil {
			return library.StatusProcessed, nil
		}
	}

	cfg := s.cfg.Get()
	if err := s.ensureSpace(cfg); err != nil {
		return "", err
	}
	dest := filepath.Join(cfg.Paths.ArtworkDir, art.OwnerType, fmt.Sprintf("%d", art.OwnerID),
		art.Kind+strings.ToLower(filepath.Ext(art.RemotePath)))
	url := imageURL(cfg.TMDB.ImageBaseURL, art.RemotePath)
	size, err := s.download(ctx, url, dest)
	if err != nil {
		return "", err
	}
	if err := s.store.MarkArtworkDownloaded(ctx, art.ID, dest); err != nil {
		return "", err
	}
	logger.Info("artwork downloaded",
		logging.Int64("artwork_id", art.ID),
		logging.String("kind", art.Kind),
		logging.String("path", dest),
		logging.Int64("bytes", size),
		logging.String(logging.FieldEventType, "artwork_downloaded"),
	)
	return library.StatusProcessed, nil
}

func imageURL(base, filePath string) string {
	if strings.HasPrefix(filePath, "http://") || strings.HasPrefix(filePath, "https://") {
		return filePath
	}
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}
	return strings.TrimRight(base, "/") + filePath
}

func (s *Service) download(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build artwork request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, string(stage.ArtworkProcess), "download", url, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, services.Wrap(services.ErrNotFound, string(stage.ArtworkProcess), "download", url, nil)
	case resp.StatusCode != http.StatusOK:
		return 0, services.Wrap(services.ErrTransient, string(stage.ArtworkProcess), "download",
			fmt.Sprintf("%s: status %d", url, resp.StatusCode), nil)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create artwork directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "artwork-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, services.Wrap(services.ErrTransient, string(stage.ArtworkProcess), "download", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename temp file: %w", err)
	}
	return size, nil
}

// ErrLowDiskSpace is returned when the artwork directory is below the
// configured free-space floor.
var ErrLowDiskSpace = errors.New("artwork directory low on disk space")

func (s *Service) ensureSpace(cfg *config.Config) error {
	if cfg.Artwork.MinFreeMiB <= 0 {
		return nil
	}
	dir := cfg.Paths.ArtworkDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artwork directory: %w", err)
	}
	free, err := s.statfs(dir)
	if err != nil {
		return fmt.Errorf("statfs %s: %w", dir, err)
	}
	need := uint64(cfg.Artwork.MinFreeMiB) * 1024 * 1024
	if free < need {
		return services.Wrap(services.ErrTransient, string(stage.ArtworkProcess), "free space",
			fmt.Sprintf("%d MiB free, %d MiB required", free/(1024*1024), cfg.Artwork.MinFreeMiB), ErrLowDiskSpace)
	}
	return nil
}

func (s *Service) health(context.Context) stage.Health {
	name := string(stage.ArtworkProcess)
	if err := s.ensureSpace(s.cfg.Get()); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
