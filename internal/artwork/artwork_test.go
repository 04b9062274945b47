package artwork

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"curator/internal/config"
	"curator/internal/library"
	"curator/internal/stage"
	"curator/internal/testsupport"
	"curator/internal/tmdb"
)

func newTestService(t *testing.T, mutate func(*config.Config)) (*Service, *library.Store, *config.Config, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/img/backdrop.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithTMDB("http://tmdb.invalid", server.URL+"/img"))
	cfg.Artwork.Kinds = []string{"poster", "backdrop", "profile"}
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	fake := &testsupport.FakeTMDB{
		TitleImages: map[int64]tmdb.Images{
			949: {
				Posters: []tmdb.Image{{FilePath: "/poster.jpg", Language: "en"}},
				Backdrops: []tmdb.Image{
					{FilePath: "/other.jpg", Language: "fr", VoteAverage: 9},
					{FilePath: "/backdrop.jpg", VoteAverage: 5},
				},
			},
		},
		PeopleImages: map[int64]tmdb.Images{
			1158: {Profiles: []tmdb.Image{{FilePath: "/missing.jpg"}}},
		},
	}
	service := NewServiceWithDependencies(config.NewLive(cfg, ""), store, fake, server.Client(), nil)
	return service, store, cfg, hits
}

func TestScanAndDownload(t *testing.T) {
	service, store, cfg, _ := newTestService(t, nil)
	ctx := context.Background()
	handlers := service.Handlers()

	media, _ := store.UpsertMedia(ctx, filepath.Join(testsupport.LibraryRoot(cfg), "Heat.mkv"), library.MediaMovie)
	if err := store.UpdateMediaMetadata(ctx, media.ID, library.MediaMetadata{TMDBID: 949}); err != nil {
		t.Fatalf("UpdateMediaMetadata: %v", err)
	}
	localPoster := filepath.Join(testsupport.LibraryRoot(cfg), "poster.jpg")
	if _, err := store.UpsertArtwork(ctx, library.Artwork{
		OwnerType: library.OwnerMedia, OwnerID: media.ID, Kind: "poster",
		Source: library.ArtworkLocal, RemotePath: localPoster, LocalPath: localPoster, Downloaded: true,
	}); err != nil {
		t.Fatalf("UpsertArtwork: %v", err)
	}
	testsupport.Enqueue(t, store, stage.ArtworkScan, stage.DomainVideo, library.MediaRef(media.ID))
	testsupport.RunStage(t, store, stage.ArtworkScan, handlers[stage.ArtworkScan])

	pending := testsupport.Fetch(t, store, stage.ArtworkProcess)
	if pending.Len() != 1 || pending[0].Subtype != "backdrop" {
		t.Fatalf("expected one backdrop download, got %+v", pending)
	}

	testsupport.RunStage(t, store, stage.ArtworkProcess, handlers[stage.ArtworkProcess])
	task := testsupport.TaskFor(t, store, stage.ArtworkProcess, pending[0].Ref)
	if task.Status != library.StatusProcessed {
		t.Fatalf("expected processed, got %s (%s)", task.Status, task.ErrorMessage)
	}
	id, _ := library.ParseRefOf(pending[0].Ref, library.RefArtwork)
	art, _ := store.GetArtwork(ctx, id)
	if !art.Downloaded || art.RemotePath != "/backdrop.jpg" {
		t.Fatalf("unexpected artwork: %+v", art)
	}
	want := filepath.Join(cfg.Paths.ArtworkDir, "media", strconv.FormatInt(media.ID, 10), "backdrop.jpg")
	if art.LocalPath != want {
		t.Fatalf("local path = %q, want %q", art.LocalPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("downloaded file: %v %q", err, data)
	}
}

func TestScanSkipsUnresolvedMedia(t *testing.T) {
	service, store, cfg, _ := newTestService(t, nil)
	ctx := context.Background()

	media, _ := store.UpsertMedia(ctx, filepath.Join(testsupport.LibraryRoot(cfg), "Unknown.mkv"), library.MediaMovie)
	ref := library.MediaRef(media.ID)
	testsupport.Enqueue(t, store, stage.ArtworkScan, stage.DomainVideo, ref)
	testsupport.RunStage(t, store, stage.ArtworkScan, service.Handlers()[stage.ArtworkScan])

	if task := testsupport.TaskFor(t, store, stage.ArtworkScan, ref); task.Status != library.StatusDone {
		t.Fatalf("expected done, got %s", task.Status)
	}
	if pending := testsupport.Fetch(t, store, stage.ArtworkProcess); pending.Len() != 0 {
		t.Fatalf("expected no downloads, got %d", pending.Len())
	}
}

func TestDownloadFailureRecordsError(t *testing.T) {
	service, store, _, _ := newTestService(t, nil)
	ctx := context.Background()
	handlers := service.Handlers()

	person, _ := store.UpsertPerson(ctx, library.Person{TMDBID: 1158, Name: "Al Pacino"})
	testsupport.Enqueue(t, store, stage.ArtworkScan, stage.DomainPerson, library.PersonRef(person.ID))
	testsupport.RunStage(t, store, stage.ArtworkScan, handlers[stage.ArtworkScan])
	pending := testsupport.Fetch(t, store, stage.ArtworkProcess)
	if pending.Len() != 1 || pending[0].Subtype != "profile" {
		t.Fatalf("expected profile download, got %+v", pending)
	}

	testsupport.RunStage(t, store, stage.ArtworkProcess, handlers[stage.ArtworkProcess])
	if task := testsupport.TaskFor(t, store, stage.ArtworkProcess, pending[0].Ref); task.Status != library.StatusError {
		t.Fatalf("expected error, got %s", task.Status)
	}
}

func TestLowDiskSpaceBlocksDownload(t *testing.T) {
	service, store, cfg, hits := newTestService(t, func(cfg *config.Config) {
		cfg.Artwork.MinFreeMiB = 64
	})
	service.statfs = func(string) (uint64, error) { return 10 * 1024 * 1024, nil }
	ctx := context.Background()

	media, _ := store.UpsertMedia(ctx, filepath.Join(testsupport.LibraryRoot(cfg), "Heat.mkv"), library.MediaMovie)
	art, _ := store.UpsertArtwork(ctx, library.Artwork{
		OwnerType: library.OwnerMedia, OwnerID: media.ID, Kind: "backdrop",
		Source: library.ArtworkTMDB, RemotePath: "/backdrop.jpg",
	})
	ref := library.Ref(library.RefArtwork, art.ID)
	testsupport.Enqueue(t, store, stage.ArtworkProcess, stage.DomainArtwork, ref)

	handler := service.Handlers()[stage.ArtworkProcess]
	testsupport.RunStage(t, store, stage.ArtworkProcess, handler)
	if task := testsupport.TaskFor(t, store, stage.ArtworkProcess, ref); task.Status != library.StatusError {
		t.Fatalf("expected error, got %s", task.Status)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no download attempt, got %d", hits.Load())
	}
	if err := service.ensureSpace(cfg); !errors.Is(err, ErrLowDiskSpace) {
		t.Fatalf("expected ErrLowDiskSpace, got %v", err)
	}
	if health := handler.(stage.HealthChecker).HealthCheck(ctx); health.Ready {
		t.Fatalf("expected unhealthy stage, got %+v", health)
	}
}

func TestPickPrefersUntextedOrEnglish(t *testing.T) {
	images := &tmdb.Images{Backdrops: []tmdb.Image{
		{FilePath: "/fr.jpg", Language: "fr", VoteAverage: 9},
		{FilePath: "/plain.jpg", VoteAverage: 4},
	}}
	got, ok := Pick(images, "backdrop")
	if !ok || got.FilePath != "/plain.jpg" {
		t.Fatalf("unexpected pick: %+v %v", got, ok)
	}
	if _, ok := Pick(images, "logo"); ok {
		t.Fatal("expected no logo")
	}
}
