package importer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"curator/internal/filename"
	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/stage"
)

// Importer holds the collaborators shared by the import stages.
type Importer struct {
	store  *library.Store
	logger *slog.Logger
}

// New constructs an Importer.
func New(store *library.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Importer{store: store, logger: logging.NewComponentLogger(logger, "importer")}
}

// Handlers returns the handler of every import stage keyed by stage name.
func (i *Importer) Handlers() map[stage.Name]stage.Handler {
	return map[stage.Name]stage.Handler{
		stage.ImportVideo:    library.NewTaskHandler(i.store, stage.ImportVideo, i.importVideo, i.logger),
		stage.ImportNFO:      library.NewTaskHandler(i.store, stage.ImportNFO, i.importNFO, i.logger),
		stage.ImportImage:    library.NewTaskHandler(i.store, stage.ImportImage, i.importImage, i.logger),
		stage.ImportWatched:  library.NewTaskHandler(i.store, stage.ImportWatched, i.importWatched, i.logger),
		stage.ImportSubtitle: library.NewTaskHandler(i.store, stage.ImportSubtitle, i.importSubtitle, i.logger),
	}
}

// sidecarStages are re-run when the video they belong to appears after them.
var sidecarStages = []stage.Name{stage.ImportNFO, stage.ImportImage, stage.ImportWatched, stage.ImportSubtitle}

func (i *Importer) importVideo(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	logger := logging.WithContext(ctx, i.logger)
	path := item.Ref
	if !exists(path) {
		return library.StatusMissing, nil
	}

	kind := library.MediaMovie
	info := filename.Parse(path)
	if info.IsEpisode() {
		kind = library.MediaEpisode
	}
	media, err := i.store.UpsertMedia(ctx, path, kind)
	if err != nil {
		return "", err
	}
	meta := library.MediaMetadata{
		Kind:    kind,
		Title:   info.Title,
		Year:    info.Year,
		Season:  info.Season,
		Episode: info.Episode,
		TMDBID:  info.TMDBID,
		IMDbID:  info.IMDbID,
	}
	if err := i.store.UpdateMediaMetadata(ctx, media.ID, meta); err != nil {
		return "", err
	}

	ref := library.MediaRef(media.ID)
	for _, name := range []stage.Name{stage.MediaFileScan, stage.MetadataVideo} {
		if _, err := i.store.EnqueueTask(ctx, library.TaskSpec{Stage: name, Domain: stage.DomainVideo, Ref: ref}); err != nil {
			return "", err
		}
	}
	if err := i.requeueOrphanedSidecars(ctx, path); err != nil {
		return "", err
	}

	logger.Info("video imported",
		logging.Int64("media_id", media.ID),
		logging.String("title", info.Title),
		logging.String("kind", string(kind)),
		logging.String(logging.FieldEventType, "video_imported"),
	)
	return library.StatusDone, nil
}

// requeueOrphanedSidecars re-runs sidecar imports that found no video earlier.
func (i *Importer) requeueOrphanedSidecars(ctx context.Context, videoPath string) error {
	dir := filepath.Dir(videoPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sidecar := filepath.Join(dir, entry.Name())
		if sidecar == videoPath || !belongsTo(sidecar, videoPath) {
			continue
		}
		for _, name := range sidecarStages {
			task, err := i.store.FindTask(ctx, name, sidecar)
			if err != nil {
				return err
			}
			if task == nil || task.Status != library.StatusInvalid {
				continue
			}
			if _, err := i.store.EnqueueTask(ctx, library.TaskSpec{
				Stage: name, Domain: task.Domain, Subtype: task.Subtype, Ref: sidecar,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ownerOf finds the media a sidecar file belongs to: the video sharing its
// stem, or the only video in the directory for folder-level files.
func (i *Importer) ownerOf(ctx context.Context, path string) ([]*library.Media, error) {
	candidates, err := i.store.MediaInDir(ctx, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	var matched []*library.Media
	for _, media := range candidates {
		if belongsTo(path, media.Path) {
			matched = append(matched, media)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}
	if isFolderLevel(path) {
		return candidates, nil
	}
	return nil, nil
}

func belongsTo(sidecar, videoPath string) bool {
	videoStem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	base := filepath.Base(sidecar)
	if strings.HasPrefix(base, filepath.Base(videoPath)+".") {
		return true
	}
	return strings.HasPrefix(base, videoStem+".") || strings.HasPrefix(base, videoStem+"-")
}

var folderLevelNames = map[string]bool{
	"poster": true, "folder": true, "cover": true, "fanart": true, "backdrop": true,
	"background": true, "logo": true, "clearlogo": true, "banner": true, "thumb": true,
	"landscape": true, "movie": true, "": true,
}

func isFolderLevel(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return folderLevelNames[stem]
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
