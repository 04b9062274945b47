package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"curator/internal/config"
	"curator/internal/filename"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
	"curator/internal/tmdb"
)

const (
	maxCast       = 20
	minSimilarity = 0.5
)

var crewJobs = map[string]bool{
	"Director":   true,
	"Writer":     true,
	"Screenplay": true,
	"Creator":    true,
}

// Resolver runs the metadata stages.
type Resolver struct {
	store  *library.Store
	client tmdb.API
	logger *slog.Logger
}

// NewResolver constructs a Resolver backed by the TMDB client configured in cfg.
func NewResolver(cfg *config.Config, store *library.Store, logger *slog.Logger) (*Resolver, error) {
	client, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language,
		tmdb.WithTimeout(cfg.TMDBTimeout()),
		tmdb.WithImageBaseURL(cfg.TMDB.ImageBaseURL),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "metadata", "tmdb client", "", err)
	}
	return NewResolverWithClient(store, client, logger), nil
}

// NewResolverWithClient allows injecting a TMDB implementation (used in tests).
func NewResolverWithClient(store *library.Store, client tmdb.API, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		store:  store,
		client: client,
		logger: logging.NewComponentLogger(logger, "metadata"),
	}
}

// Handlers returns the metadata stage handlers keyed by stage name.
func (r *Resolver) Handlers() map[stage.Name]stage.Handler {
	return map[stage.Name]stage.Handler{
		stage.MetadataVideo:       library.NewTaskHandler(r.store, stage.MetadataVideo, r.resolveVideo, r.logger),
		stage.MetadataPeople:      library.NewTaskHandler(r.store, stage.MetadataPeople, r.resolvePerson, r.logger),
		stage.MetadataFilmography: library.NewTaskHandler(r.store, stage.MetadataFilmography, r.resolveFilmography, r.logger),
	}
}

func kindOf(media *library.Media) tmdb.Kind {
	if media.Kind == library.MediaEpisode {
		return tmdb.KindTV
	}
	return tmdb.KindMovie
}

func (r *Resolver) resolveVideo(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	logger := logging.WithContext(ctx, r.logger)
	id, err := library.ParseRefOf(item.Ref, library.RefMedia)
	if err != nil {
		return "", err
	}
	media, err := r.store.GetMedia(ctx, id)
	if err != nil {
		return "", err
	}
	if media == nil {
		return library.StatusMissing, nil
	}

	kind := kindOf(media)
	match, err := r.match(ctx, media, kind)
	if err != nil {
		return "", err
	}

	meta := library.MediaMetadata{
		TMDBID:   match.ID,
		IMDbID:   match.IMDbID,
		Overview: match.Overview,
	}
	if media.Kind != library.MediaEpisode {
		meta.Title = match.DisplayTitle()
		meta.Year = match.Year()
	}
	if err := r.store.UpdateMediaMetadata(ctx, media.ID, meta); err != nil {
		return "", err
	}

	people, err := r.storeCredits(ctx, media.ID, kind, match.ID)
	if err != nil {
		return "", err
	}
	for _, personID := range people {
		if _, err := r.store.EnsureTask(ctx, library.TaskSpec{
			Stage: stage.MetadataPeople, Domain: stage.DomainPerson, Ref: library.PersonRef(personID),
		}); err != nil {
			return "", err
		}
	}
	ref := library.MediaRef(media.ID)
	for _, name := range []stage.Name{stage.ArtworkScan, stage.TrailerScan} {
		if _, err := r.store.EnqueueTask(ctx, library.TaskSpec{Stage: name, Domain: stage.DomainVideo, Ref: ref}); err != nil {
			return "", err
		}
	}

	logger.Info("metadata resolved",
		logging.Int64("media_id", media.ID),
		logging.Int64("tmdb_id", match.ID),
		logging.String("title", match.DisplayTitle()),
		logging.Int("people", len(people)),
		logging.String(logging.FieldEventType, "metadata_resolved"),
	)
	return library.StatusDone, nil
}

// match resolves the TMDB title of a media row: stored TMDB id first, then
// IMDb id, then a scored title search.
func (r *Resolver) match(ctx context.Context, media *library.Media, kind tmdb.Kind) (*tmdb.Result, error) {
	if media.TMDBID > 0 {
		return r.client.Details(ctx, kind, media.TMDBID)
	}
	if media.IMDbID != "" {
		found, err := r.client.FindByIMDb(ctx, media.IMDbID)
		if err != nil {
			return nil, err
		}
		return r.client.Details(ctx, kind, found.ID)
	}

	title, year := media.Title, media.Year
	if title == "" {
		info := filename.Parse(media.Path)
		title, year = info.Title, info.Year
	}
	if strings.TrimSpace(title) == "" {
		return nil, services.Wrap(services.ErrValidation, string(stage.MetadataVideo), "match", "no title to search for", nil)
	}
	resp, err := r.client.Search(ctx, kind, title, tmdb.SearchOptions{Year: year})
	if err != nil {
		return nil, err
	}
	best := BestMatch(title, year, resp.Results)
	if best == nil && year > 0 {
		// Release years differ between regions; retry without the filter.
		if resp, err = r.client.Search(ctx, kind, title, tmdb.SearchOptions{}); err != nil {
			return nil, err
		}
		best = BestMatch(title, year, resp.Results)
	}
	if best == nil {
		return nil, services.Wrap(services.ErrNotFound, string(stage.MetadataVideo), "match",
			fmt.Sprintf("no tmdb match for %q (%d)", title, year), nil)
	}
	return r.client.Details(ctx, kind, best.ID)
}

// BestMatch scores search results by title similarity and year distance and
// returns the best one above the similarity floor.
func BestMatch(title string, year int, results []tmdb.Result) *tmdb.Result {
	var (
		best      *tmdb.Result
		bestScore float64
	)
	for i := range results {
		candidate := &results[i]
		score := filename.Similarity(title, candidate.DisplayTitle())
		if score < minSimilarity {
			continue
		}
		if year > 0 {
			switch diff := candidate.Year() - year; {
			case diff == 0:
				score += 0.3
			case diff == 1 || diff == -1:
				score += 0.1
			case candidate.Year() != 0:
				score -= 0.3
			}
		}
		if best == nil || score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if best != nil && bestScore < minSimilarity {
		return nil
	}
	return best
}

// storeCredits replaces the credits of a media row and returns the local ids
// of the people involved.
func (r *Resolver) storeCredits(ctx context.Context, mediaID int64, kind tmdb.Kind, tmdbID int64) ([]int64, error) {
	credits, err := r.client.Credits(ctx, kind, tmdbID)
	if err != nil {
		return nil, err
	}

	var (
		rows   []library.Credit
		people []int64
		seen   = make(map[int64]bool)
	)
	upsert := func(tmdbPersonID int64, name, profile string) (int64, error) {
		person, err := r.store.UpsertPerson(ctx, library.Person{TMDBID: tmdbPersonID, Name: name, ProfilePath: profile})
		if err != nil {
			return 0, err
		}
		if !seen[person.ID] {
			seen[person.ID] = true
			people = append(people, person.ID)
		}
		return person.ID, nil
	}

	for _, cast := range credits.Cast {
		if cast.Order >= maxCast {
			continue
		}
		id, err := upsert(cast.ID, cast.Name, cast.ProfilePath)
		if err != nil {
			return nil, err
		}
		rows = append(rows, library.Credit{PersonID: id, Role: "cast", Character: cast.Character, Order: cast.Order})
	}
	for _, crew := range credits.Crew {
		if !crewJobs[crew.Job] {
			continue
		}
		id, err := upsert(crew.ID, crew.Name, crew.ProfilePath)
		if err != nil {
			return nil, err
		}
		rows = append(rows, library.Credit{PersonID: id, Role: "crew", Job: crew.Job})
	}
	if err := r.store.ReplaceCredits(ctx, mediaID, rows); err != nil {
		return nil, err
	}
	return people, nil
}

func (r *Resolver) resolvePerson(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	id, err := library.ParseRefOf(item.Ref, library.RefPerson)
	if err != nil {
		return "", err
	}
	person, err := r.store.GetPerson(ctx, id)
	if err != nil {
		return "", err
	}
	if person == nil {
		return library.StatusMissing, nil
	}
	details, err := r.client.Person(ctx, person.TMDBID)
	if err != nil {
		return "", err
	}
	if _, err := r.store.UpsertPerson(ctx, library.Person{
		TMDBID:       person.TMDBID,
		Name:         details.Name,
		Biography:    details.Biography,
		Birthday:     details.Birthday,
		PlaceOfBirth: details.PlaceOfBirth,
		ProfilePath:  details.ProfilePath,
	}); err != nil {
		return "", err
	}

	ref := library.PersonRef(person.ID)
	for _, spec := range []library.TaskSpec{
		{Stage: stage.MetadataFilmography, Domain: stage.DomainFilmography, Ref: ref},
		{Stage: stage.ArtworkScan, Domain: stage.DomainPerson, Ref: ref},
	} {
		if _, err := r.store.EnsureTask(ctx, spec); err != nil {
			return "", err
		}
	}
	logging.WithContext(ctx, r.logger).Debug("person resolved",
		logging.Int64("person_id", person.ID),
		logging.String("name", details.Name),
	)
	return library.StatusDone, nil
}

func (r *Resolver) resolveFilmography(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	id, err := library.ParseRefOf(item.Ref, library.RefPerson)
	if err != nil {
		return "", err
	}
	person, err := r.store.GetPerson(ctx, id)
	if err != nil {
		return "", err
	}
	if person == nil {
		return library.StatusMissing, nil
	}
	combined, err := r.client.CombinedCredits(ctx, person.TMDBID)
	if err != nil {
		return "", err
	}

	entries := make([]library.FilmographyEntry, 0, len(combined.Cast)+len(combined.Crew))
	for _, title := range combined.Cast {
		entries = append(entries, library.FilmographyEntry{
			TMDBID:    title.ID,
			MediaType: title.MediaType,
			Title:     title.DisplayTitle(),
			Year:      title.Year(),
			Character: title.Character,
		})
	}
	for _, title := range combined.Crew {
		entries = append(entries, library.FilmographyEntry{
			TMDBID:    title.ID,
			MediaType: title.MediaType,
			Title:     title.DisplayTitle(),
			Year:      title.Year(),
			Job:       title.Job,
		})
	}
	if err := r.store.ReplaceFilmography(ctx, person.ID, entries); err != nil {
		return "", err
	}
	if _, err := r.store.EnsureTask(ctx, library.TaskSpec{
		Stage: stage.ArtworkScan, Domain: stage.DomainPerson, Ref: library.PersonRef(person.ID),
	}); err != nil {
		return "", err
	}
	return library.StatusDone, nil
}
