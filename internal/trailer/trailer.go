// Package trailer implements the trailer-scan and trailer-process stages.
// Scanning records the trailers TMDB lists for a title; processing checks that
// each one is still playable through the hosting site's oEmbed endpoint.
package trailer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
	"curator/internal/tmdb"
)

// Supported hosting sites.
const (
	SiteYouTube = "YouTube"
	SiteVimeo   = "Vimeo"
)

// DefaultEndpoints maps each site to its oEmbed endpoint.
var DefaultEndpoints = map[string]string{
	SiteYouTube: "https://www.youtube.com/oembed",
	SiteVimeo:   "https://vimeo.com/api/oembed.json",
}

// Service runs the trailer stages.
type Service struct {
	store     *library.Store
	client    tmdb.API
	http      *http.Client
	endpoints map[string]string
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient overrides the client used for availability checks.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.http = client
		}
	}
}

// WithEndpoints overrides the oEmbed endpoint per site.
func WithEndpoints(endpoints map[string]string) Option {
	return func(s *Service) {
		s.endpoints = endpoints
	}
}

// NewService constructs a Service backed by the TMDB client configured in cfg.
func NewService(cfg *config.Config, store *library.Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	client, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language, tmdb.WithTimeout(cfg.TMDBTimeout()))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "trailer", "tmdb client", "", err)
	}
	timeout := time.Duration(cfg.Trailers.CheckTimeoutSeconds) * time.Second
	opts = append([]Option{WithHTTPClient(&http.Client{Timeout: timeout})}, opts...)
	return NewServiceWithClient(store, client, logger, opts...), nil
}

// NewServiceWithClient allows injecting a TMDB implementation (used in tests).
func NewServiceWithClient(store *library.Store, client tmdb.API, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	service := &Service{
		store:     store,
		client:    client,
		http:      &http.Client{Timeout: 10 * time.Second},
		endpoints: DefaultEndpoints,
		logger:    logging.NewComponentLogger(logger, "trailer"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Handlers returns the trailer stage handlers keyed by stage name.
func (s *Service) Handlers() map[stage.Name]stage.Handler {
	return map[stage.Name]stage.Handler{
		stage.TrailerScan:    library.NewTaskHandler(s.store, stage.TrailerScan, s.scan, s.logger),
		stage.TrailerProcess: library.NewTaskHandler(s.store, stage.TrailerProcess, s.check, s.logger),
	}
}

// WatchURL returns the public page of a video, or "" for unsupported sites.
func WatchURL(site, key string) string {
	switch site {
	case SiteYouTube:
		return "https://www.youtube.com/watch?v=" + url.QueryEscape(key)
	case SiteVimeo:
		return "https://vimeo.com/" + url.PathEscape(key)
	}
	return ""
}

func wanted(video tmdb.Video) bool {
	if video.Key == "" || WatchURL(video.Site, video.Key) == "" {
		return false
	}
	return video.Type == "Trailer" || video.Type == "Teaser"
}

func (s *Service) scan(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	id, err := library.ParseRefOf(item.Ref, library.RefMedia)
	if err != nil {
		return "", err
	}
	media, err := s.store.GetMedia(ctx, id)
	if err != nil {
		return "", err
	}
	if media == nil {
		return library.StatusMissing, nil
	}
	if media.TMDBID == 0 {
		return library.StatusDone, nil
	}
	kind := tmdb.KindMovie
	if media.Kind == library.MediaEpisode {
		kind = tmdb.KindTV
	}
	videos, err := s.client.Videos(ctx, kind, media.TMDBID)
	if err != nil {
		return "", err
	}

	found := 0
	for _, video := range videos.Results {
		if !wanted(video) {
			continue
		}
		trailer, err := s.store.UpsertTrailer(ctx, library.Trailer{
			MediaID: media.ID,
			Site:    video.Site,
			Key:     video.Key,
			Name:    video.Name,
			URL:     WatchURL(video.Site, video.Key),
		})
		if err != nil {
			return "", err
		}
		if _, err := s.store.EnqueueTask(ctx, library.TaskSpec{
			Stage: stage.TrailerProcess, Domain: stage.DomainTrailer, Subtype: video.Site,
			Ref: library.Ref(library.RefTrailer, trailer.ID),
		}); err != nil {
			return "", err
		}
		found++
	}
	logging.WithContext(ctx, s.logger).Debug("trailers scanned",
		logging.Int64("media_id", media.ID),
		logging.Int("trailers", found),
	)
	return library.StatusDone, nil
}

func (s *Service) check(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	id, err := library.ParseRefOf(item.Ref, library.RefTrailer)
	if err != nil {
		return "", err
	}
	trailer, err := s.store.GetTrailer(ctx, id)
	if err != nil {
		return "", err
	}
	if trailer == nil {
		return library.StatusMissing, nil
	}
	available, err := s.Available(ctx, trailer.Site, trailer.URL)
	if err != nil {
		return "", err
	}
	if err := s.store.SetTrailerAvailability(ctx, trailer.ID, available, time.Now()); err != nil {
		return "", err
	}
	if !available {
		logging.WithContext(ctx, s.logger).Info("trailer unavailable",
			logging.Int64("trailer_id", trailer.ID),
			logging.String("url", trailer.URL),
			logging.String(logging.FieldEventType, "trailer_unavailable"),
		)
	}
	return library.StatusProcessed, nil
}

// Available asks the site's oEmbed endpoint whether the video can be embedded.
// Removed and private videos report false without an error.
func (s *Service) Available(ctx context.Context, site, watchURL string) (bool, error) {
	endpoint, ok := s.endpoints[site]
	if !ok {
		return false, services.Wrap(services.ErrValidation, string(stage.TrailerProcess), "check", "unsupported site "+site, nil)
	}
	params := url.Values{}
	params.Set("url", watchURL)
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("build oembed request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, string(stage.TrailerProcess), "check", site, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusBadRequest:
		return false, nil
	default:
		return false, services.Wrap(services.ErrTransient, string(stage.TrailerProcess), "check",
			fmt.Sprintf("%s oembed status %d", strings.ToLower(site), resp.StatusCode), nil)
	}
}
