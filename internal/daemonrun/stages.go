package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"curator/internal/artwork"
	"curator/internal/deletion"
	"curator/internal/importer"
	"curator/internal/library"
	"curator/internal/mediainfo"
	"curator/internal/metadata"
	"curator/internal/notifications"
	"curator/internal/stage"
	"curator/internal/trailer"
	"curator/internal/workflow"
)

// RegisterStages builds the handler of every pipeline stage and registers it
// with the manager, each fed by the task table of its stage. Failed items are
// reported through notifier.
func RegisterStages(mgr *workflow.Manager, cfg workflow.ConfigSource, store *library.Store, notifier notifications.Service, logger *slog.Logger) error {
	if mgr == nil || cfg == nil || store == nil {
		return fmt.Errorf("register stages: manager, config and store are required")
	}
	current := cfg.Get()

	handlers := make(map[stage.Name]stage.Handler, len(stage.All))
	merge := func(set map[stage.Name]stage.Handler) {
		for name, handler := range set {
			handlers[name] = handler
		}
	}

	merge(importer.New(store, logger).Handlers())
	handlers[stage.MediaFileScan] = mediainfo.NewScanner(store, current.FFprobeBinary(), logger).Handler()

	resolver, err := metadata.NewResolver(current, store, logger)
	if err != nil {
		return err
	}
	merge(resolver.Handlers())

	artworkService, err := artwork.NewService(cfg, store, logger)
	if err != nil {
		return err
	}
	merge(artworkService.Handlers())

	trailerService, err := trailer.NewService(current, store, logger)
	if err != nil {
		return err
	}
	merge(trailerService.Handlers())
	handlers[stage.Deletion] = deletion.NewRemover(store, logger).Handler()

	describe := describeRef(store)
	for _, name := range stage.All {
		handler, ok := handlers[name]
		if !ok {
			return fmt.Errorf("register stages: no handler for %s", name)
		}
		handler = notifications.Notify(name, handler, notifier, current.Notify, describe, logger)
		if err := mgr.Register(name, store.Source(name), handler); err != nil {
			return err
		}
	}
	return nil
}

// describeRef resolves media refs to their file path for notifications.
func describeRef(store *library.Store) notifications.Describer {
	return func(ctx context.Context, ref string) string {
		id, err := library.ParseRefOf(ref, library.RefMedia)
		if err != nil {
			return ref
		}
		media, err := store.GetMedia(ctx, id)
		if err != nil || media == nil {
			return ref
		}
		return media.Path
	}
}
