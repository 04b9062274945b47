// Package deletion implements the deletion stage, which removes library
// entities whose files vanished from disk.
package deletion

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"curator/internal/library"
	"curator/internal/logging"
	"curator/internal/stage"
)

// Remover runs the deletion stage.
type Remover struct {
	store  *library.Store
	logger *slog.Logger
}

// NewRemover constructs a Remover.
func NewRemover(store *library.Store, logger *slog.Logger) *Remover {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Remover{store: store, logger: logging.NewComponentLogger(logger, "deletion")}
}

// Handler returns the deletion stage handler.
func (r *Remover) Handler() stage.Handler {
	return library.NewTaskHandler(r.store, stage.Deletion, r.remove, r.logger)
}

func (r *Remover) remove(ctx context.Context, item stage.WorkItem) (library.Status, error) {
	logger := logging.WithContext(ctx, r.logger)
	if _, err := os.Stat(item.Ref); err == nil {
		// The file came back; staging re-imports it.
		return library.StatusDone, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	switch item.Subtype {
	case "video":
		removed, err := r.removeMedia(ctx, item.Ref)
		if err != nil {
			return "", err
		}
		if removed == 0 {
			return library.StatusDeleted, nil
		}
		logger.Info("media removed",
			logging.String("path", item.Ref),
			logging.String(logging.FieldEventType, "media_removed"),
		)
	case "subtitle":
		if _, err := r.store.DeleteSubtitle(ctx, item.Ref); err != nil {
			return "", err
		}
	case "image":
		if _, err := r.store.DeleteLocalArtwork(ctx, item.Ref); err != nil {
			return "", err
		}
	}
	return library.StatusDeleted, nil
}

// removeMedia deletes the media row of path with everything hanging off it
// and retires the tasks that refer to those rows.
func (r *Remover) removeMedia(ctx context.Context, path string) (int64, error) {
	media, err := r.store.MediaByPath(ctx, path)
	if err != nil || media == nil {
		return 0, err
	}

	refs := []string{library.MediaRef(media.ID)}
	artwork, err := r.store.ArtworkFor(ctx, library.OwnerMedia, media.ID)
	if err != nil {
		return 0, err
	}
	var downloaded []string
	for _, art := range artwork {
		refs = append(refs, library.Ref(library.RefArtwork, art.ID))
		if art.Source != library.ArtworkLocal && art.Downloaded && art.LocalPath != "" {
			downloaded = append(downloaded, art.LocalPath)
		}
	}
	trailers, err := r.store.Trailers(ctx, media.ID)
	if err != nil {
		return 0, err
	}
	for _, trailer := range trailers {
		refs = append(refs, library.Ref(library.RefTrailer, trailer.ID))
	}

	if err := r.store.DeleteMedia(ctx, media.ID); err != nil {
		return 0, err
	}
	if _, err := r.store.MarkMissing(ctx, refs); err != nil {
		return 0, err
	}
	for _, file := range downloaded {
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.WithContext(ctx, r.logger).Warn("remove downloaded artwork",
				logging.String("path", file),
				logging.Error(err),
			)
		}
	}
	return media.ID, nil
}
