package trailer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/library"
	"curator/internal/stage"
	"curator/internal/testsupport"
	"curator/internal/tmdb"
	"curator/internal/trailer"
)

func TestScanAndCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("url"), "gone") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"type":"video"}`))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	fake := &testsupport.FakeTMDB{TitleVideos: map[int64]tmdb.Videos{
		949: {Results: []tmdb.Video{
			{Key: "live", Site: "YouTube", Type: "Trailer", Name: "Official Trailer"},
			{Key: "gone", Site: "YouTube", Type: "Teaser"},
			{Key: "bts", Site: "YouTube", Type: "Featurette"},
			{Key: "x", Site: "Dailymotion", Type: "Trailer"},
		}},
	}}
	service := trailer.NewServiceWithClient(store, fake, nil,
		trailer.WithHTTPClient(server.Client()),
		trailer.WithEndpoints(map[string]string{trailer.SiteYouTube: server.URL + "/oembed"}),
	)
	handlers := service.Handlers()

	media, _ := store.UpsertMedia(ctx, filepath.Join(testsupport.LibraryRoot(cfg), "Heat.mkv"), library.MediaMovie)
	if err := store.UpdateMediaMetadata(ctx, media.ID, library.MediaMetadata{TMDBID: 949}); err != nil {
		t.Fatalf("UpdateMediaMetadata: %v", err)
	}
	testsupport.Enqueue(t, store, stage.TrailerScan, stage.DomainVideo, library.MediaRef(media.ID))
	testsupport.RunStage(t, store, stage.TrailerScan, handlers[stage.TrailerScan])

	if n := testsupport.RunStage(t, store, stage.TrailerProcess, handlers[stage.TrailerProcess]); n != 2 {
		t.Fatalf("expected 2 trailer checks, got %d", n)
	}
	trailers, err := store.Trailers(ctx, media.ID)
	if err != nil || len(trailers) != 2 {
		t.Fatalf("Trailers: %v %d", err, len(trailers))
	}
	for _, tr := range trailers {
		if tr.CheckedAt == nil {
			t.Fatalf("trailer %s not checked", tr.Key)
		}
		if want := tr.Key == "live"; tr.Available != want {
			t.Fatalf("trailer %s availability = %v", tr.Key, tr.Available)
		}
		task := testsupport.TaskFor(t, store, stage.TrailerProcess, library.Ref(library.RefTrailer, tr.ID))
		if task.Status != library.StatusProcessed {
			t.Fatalf("expected processed, got %s", task.Status)
		}
	}
}

func TestAvailableServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	service := trailer.NewServiceWithClient(nil, nil, nil,
		trailer.WithHTTPClient(server.Client()),
		trailer.WithEndpoints(map[string]string{trailer.SiteVimeo: server.URL}),
	)
	if _, err := service.Available(context.Background(), trailer.SiteVimeo, "https://vimeo.com/1"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := service.Available(context.Background(), "Dailymotion", "x"); err == nil {
		t.Fatal("expected unsupported site error")
	}
}

func TestWatchURL(t *testing.T) {
	if got := trailer.WatchURL(trailer.SiteYouTube, "abc"); got != "https://www.youtube.com/watch?v=abc" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := trailer.WatchURL("Other", "abc"); got != "" {
		t.Fatalf("expected empty url, got %q", got)
	}
}
