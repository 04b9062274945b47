package tmdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"curator/internal/services"
	"curator/internal/tmdb"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := tmdb.New("", "https://example.com", "en-US"); err == nil {
		t.Fatal("expected error when api key missing")
	}
}

func TestSearchMovieSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "key" {
			t.Errorf("expected api_key query parameter, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("primary_release_year") != "1995" {
			t.Errorf("expected year filter, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":1,"results":[{"id":949,"title":"Heat","release_date":"1995-12-15"}]}`))
	}))
	t.Cleanup(server.Close)

	client, err := tmdb.New("key", server.URL, "en-US")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	resp, err := client.Search(context.Background(), tmdb.KindMovie, "Heat", tmdb.SearchOptions{Year: 1995})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].DisplayTitle() != "Heat" || resp.Results[0].Year() != 1995 {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if resp.Results[0].MediaType != "movie" {
		t.Fatalf("expected media type to default to movie, got %q", resp.Results[0].MediaType)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusInternalServerError, services.ErrTransient},
		{http.StatusUnauthorized, services.ErrExternalTool},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client, err := tmdb.New("key", server.URL, "")
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		_, err = client.Person(context.Background(), 1)
		server.Close()
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestDetailsAndFind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/tv/1399":
			_, _ = w.Write([]byte(`{"id":1399,"name":"Game of Thrones","first_air_date":"2011-04-17","external_ids":{"imdb_id":"tt0944947"}}`))
		case "/find/tt0944947":
			_, _ = w.Write([]byte(`{"movie_results":[],"tv_results":[{"id":1399,"name":"Game of Thrones"}]}`))
		case "/find/tt0000000":
			_, _ = w.Write([]byte(`{"movie_results":[],"tv_results":[]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client, err := tmdb.New("key", server.URL, "en-US")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := context.Background()

	details, err := client.Details(ctx, tmdb.KindTV, 1399)
	if err != nil {
		t.Fatalf("Details returned error: %v", err)
	}
	if details.IMDbID != "tt0944947" || details.MediaType != "tv" || details.Year() != 2011 {
		t.Fatalf("unexpected details: %#v", details)
	}

	found, err := client.FindByIMDb(ctx, "tt0944947")
	if err != nil {
		t.Fatalf("FindByIMDb returned error: %v", err)
	}
	if found == nil || found.ID != 1399 || found.MediaType != "tv" {
		t.Fatalf("unexpected find result: %#v", found)
	}
	missing, err := client.FindByIMDb(ctx, "tt0000000")
	if err != nil || missing != nil {
		t.Fatalf("expected no match, got %#v err=%v", missing, err)
	}
}

func TestImagesUsesLanguageFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("include_image_language"); got != "en,null" {
			t.Errorf("unexpected image language filter %q", got)
		}
		if r.URL.Query().Has("language") {
			t.Errorf("images request must not set language, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"id":949,"posters":[{"file_path":"/p.jpg","width":1000,"height":1500}]}`))
	}))
	t.Cleanup(server.Close)

	client, err := tmdb.New("key", server.URL, "en-US", tmdb.WithImageBaseURL("https://img.example/t/p/original/"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	images, err := client.Images(context.Background(), tmdb.KindMovie, 949)
	if err != nil {
		t.Fatalf("Images returned error: %v", err)
	}
	if len(images.Posters) != 1 {
		t.Fatalf("unexpected images: %#v", images)
	}
	if got := client.ImageURL(images.Posters[0].FilePath); got != "https://img.example/t/p/original/p.jpg" {
		t.Fatalf("unexpected image url %q", got)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	client, err := tmdb.New("key", "https://example.com", "")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := client.Search(context.Background(), tmdb.KindMovie, "  ", tmdb.SearchOptions{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}
