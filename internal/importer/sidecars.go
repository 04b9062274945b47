package importer

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"curator/internal/language"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/stage"
)

// nfoDocument covers the Kodi movie, tvshow and episodedetails layouts.
type nfoDocument struct {
	XMLName   xml.Name
	Title     string `xml:"title"`
	Year      int    `xml:"year"`
	Plot      string `xml:"plot"`
	Season    int    `xml:"season"`
	Episode   int    `xml:"episode"`
	TMDBID    string `xml:"tmdbid"`
	IMDbID    string `xml:"imdbid"`
	ID        string `xml:"id"`
	UniqueIDs []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"uniqueid"`
}

// ParseNFO extracts metadata from an nfo document.
func ParseNFO(data []byte) (library.MediaMetadata, error) {
	var doc nfoDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return library.MediaMetadata{}, services.Wrap(services.ErrValidation, "import-nfo", "parse", "invalid xml", err)
	}
	meta := library.MediaMetadata{
		Title:    strings.TrimSpace(doc.Title),
		Year:     doc.Year,
		Season:   doc.Season,
		Episode:  doc.Episode,
		Overview: strings.TrimSpace(doc.Plot),
	}
	switch doc.XMLName.Local {
	case "episodedetails":
		meta.Kind = library.MediaEpisode
	case "movie":
		meta.Kind = library.MediaMovie
	}

	tmdbRaw := strings.TrimSpace(doc.TMDBID)
	imdb := strings.TrimSpace(doc.IMDbID)
	for _, uid := range doc.UniqueIDs {
		value := strings.TrimSpace(uid.Value)
		switch strings.ToLower(uid.Type) {
		case "tmdb":
			tmdbRaw = value
		case "imdb":
			imdb = value
		}
	}
	if id := strings.TrimSpace(doc.ID); id != "" {
		if strings.HasPrefix(id, "tt") && imdb == "" {
			imdb = id
		} else if tmdbRaw == "" {
			tmdbRaw = id
		}
	}
	if tmdbRaw != "" {
		if parsed, err := strconv.ParseInt(tmdbRaw, 10, 64); err == nil && parsed > 0 {
			meta.TMDBID = parsed
		}
	}
	if strings.HasPrefix(imdb, "tt") {
		meta.IMDbID = imdb
	}
	return meta, nil
}

func (i *Importer) importNFO(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	data, err := os.ReadFile(item.Ref)
	if os.IsNotExist(err) {
		return library.StatusMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("read nfo: %w", err)
	}
	meta, err := ParseNFO(data)
	if err != nil {
		return "", err
	}
	owners, err := i.ownerOf(ctx, item.Ref)
	if err != nil {
		return "", err
	}
	if len(owners) == 0 {
		return library.StatusInvalid, nil
	}
	for _, media := range owners {
		if err := i.store.UpdateMediaMetadata(ctx, media.ID, meta); err != nil {
			return "", err
		}
		if _, err := i.store.EnqueueTask(ctx, library.TaskSpec{
			Stage: stage.MetadataVideo, Domain: stage.DomainVideo, Ref: library.MediaRef(media.ID),
		}); err != nil {
			return "", err
		}
	}
	logging.WithContext(ctx, i.logger).Debug("nfo imported",
		logging.Int("media", len(owners)),
		logging.Int64("tmdb_id", meta.TMDBID),
		logging.String("imdb_id", meta.IMDbID),
	)
	return library.StatusDone, nil
}

// ArtworkKind maps a local image name to an artwork kind.
func ArtworkKind(path string) string {
	base := strings.ToLower(filepath.Base(path))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, candidate := range []struct{ token, kind string }{
		{"clearlogo", "logo"},
		{"logo", "logo"},
		{"fanart", "backdrop"},
		{"backdrop", "backdrop"},
		{"background", "backdrop"},
		{"landscape", "thumb"},
		{"thumb", "thumb"},
		{"banner", "banner"},
	} {
		if strings.HasSuffix(stem, candidate.token) {
			return candidate.kind
		}
	}
	return "poster"
}

func (i *Importer) importImage(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	if !exists(item.Ref) {
		return library.StatusMissing, nil
	}
	owners, err := i.ownerOf(ctx, item.Ref)
	if err != nil {
		return "", err
	}
	if len(owners) == 0 {
		return library.StatusInvalid, nil
	}
	kind := ArtworkKind(item.Ref)
	for _, media := range owners {
		if _, err := i.store.UpsertArtwork(ctx, library.Artwork{
			OwnerType:  library.OwnerMedia,
			OwnerID:    media.ID,
			Kind:       kind,
			Source:     library.ArtworkLocal,
			RemotePath: item.Ref,
			LocalPath:  item.Ref,
			Downloaded: true,
		}); err != nil {
			return "", err
		}
		if _, err := i.store.EnqueueTask(ctx, library.TaskSpec{
			Stage: stage.ArtworkScan, Domain: stage.DomainVideo, Ref: library.MediaRef(media.ID),
		}); err != nil {
			return "", err
		}
	}
	return library.StatusDone, nil
}

func (i *Importer) importWatched(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	info, err := os.Stat(item.Ref)
	if os.IsNotExist(err) {
		return library.StatusMissing, nil
	}
	if err != nil {
		return "", err
	}

	owners, err := i.ownerOf(ctx, item.Ref)
	if err != nil {
		return "", err
	}
	if len(owners) == 0 {
		return library.StatusInvalid, nil
	}
	watchedAt := info.ModTime()
	if watchedAt.IsZero() {
		watchedAt = time.Now()
	}
	for _, media := range owners {
		if err := i.store.SetWatched(ctx, media.ID, watchedAt); err != nil {
			return "", err
		}
	}
	return library.StatusDone, nil
}

func (i *Importer) importSubtitle(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	if !exists(item.Ref) {
		return library.StatusMissing, nil
	}
	owners, err := i.ownerOf(ctx, item.Ref)
	if err != nil {
		return "", err
	}
	if len(owners) != 1 {
		if len(owners) == 0 {
			return library.StatusInvalid, nil
		}
		return "", services.Wrap(services.ErrValidation, "import-subtitle", "owner",
			fmt.Sprintf("%s matches %d videos", filepath.Base(item.Ref), len(owners)), nil)
	}
	media := owners[0]
	sub := language.FromSubtitleName(item.Ref)
	if err := i.store.AddSubtitle(ctx, library.Subtitle{
		MediaID:  media.ID,
		Path:     item.Ref,
		Language: sub.Language,
		Forced:   sub.Forced,
	}); err != nil {
		return "", err
	}
	if _, err := i.store.EnqueueTask(ctx, library.TaskSpec{
		Stage: stage.MediaFileScan, Domain: stage.DomainVideo, Ref: library.MediaRef(media.ID),
	}); err != nil {
		return "", err
	}
	return library.StatusDone, nil
}
