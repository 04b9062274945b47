package metadata_test

import (
	"context"
	"path/filepath"
	"testing"

	"curator/internal/library"
	"curator/internal/metadata"
	"curator/internal/stage"
	"curator/internal/testsupport"
	"curator/internal/tmdb"
)

func newFake() *testsupport.FakeTMDB {
	return &testsupport.FakeTMDB{
		SearchResults: []tmdb.Result{
			{ID: 11, Title: "Heat", ReleaseDate: "1986-01-01"},
			{ID: 949, Title: "Heat", ReleaseDate: "1995-12-15"},
			{ID: 5, Title: "Heated Rivalry", ReleaseDate: "1995-01-01"},
		},
		Titles: map[int64]tmdb.Result{
			949: {ID: 949, Title: "Heat", ReleaseDate: "1995-12-15", IMDbID: "tt0113277", Overview: "Crime."},
		},
		CastAndCrew: tmdb.Credits{
			Cast: []tmdb.CastMember{
				{ID: 1158, Name: "Al Pacino", Character: "Vincent Hanna", Order: 0},
				{ID: 380, Name: "Robert De Niro", Character: "Neil McCauley", Order: 1},
				{ID: 9999, Name: "Extra", Order: 40},
			},
			Crew: []tmdb.CrewMember{
				{ID: 638, Name: "Michael Mann", Job: "Director"},
				{ID: 638, Name: "Michael Mann", Job: "Writer"},
				{ID: 77, Name: "Grip", Job: "Key Grip"},
			},
		},
		People: map[int64]tmdb.Person{
			1158: {ID: 1158, Name: "Al Pacino", Biography: "Actor.", Birthday: "1940-04-25"},
		},
		Combined: tmdb.CombinedCredits{
			Cast: []tmdb.CreditedTitle{
				{ID: 949, MediaType: "movie", Title: "Heat", ReleaseDate: "1995-12-15", Character: "Vincent Hanna"},
				{ID: 238, MediaType: "movie", Title: "The Godfather", ReleaseDate: "1972-03-14", Character: "Michael Corleone"},
			},
		},
	}
}

func TestResolveVideoBySearch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	media, err := store.UpsertMedia(ctx, filepath.Join(testsupport.LibraryRoot(cfg), "Heat (1995).mkv"), library.MediaMovie)
	if err != nil {
		t.Fatalf("UpsertMedia: %v", err)
	}
	if err := store.UpdateMediaMetadata(ctx, media.ID, library.MediaMetadata{Title: "Heat", Year: 1995}); err != nil {
		t.Fatalf("UpdateMediaMetadata: %v", err)
	}
	ref := library.MediaRef(media.ID)
	testsupport.Enqueue(t, store, stage.MetadataVideo, stage.DomainVideo, ref)

	fake := newFake()
	handlers := metadata.NewResolverWithClient(store, fake, nil).Handlers()
	testsupport.RunStage(t, store, stage.MetadataVideo, handlers[stage.MetadataVideo])

	if task := testsupport.TaskFor(t, store, stage.MetadataVideo, ref); task.Status != library.StatusDone {
		t.Fatalf("expected done, got %s (%s)", task.Status, task.ErrorMessage)
	}
	got, _ := store.GetMedia(ctx, media.ID)
	if got.TMDBID != 949 || got.IMDbID != "tt0113277" || got.Overview != "Crime." {
		t.Fatalf("unexpected media: %+v", got)
	}

	credits, err := store.Credits(ctx, media.ID)
	if err != nil {
		t.Fatalf("Credits: %v", err)
	}
	if len(credits) != 4 {
		t.Fatalf("expected 4 credits, got %+v", credits)
	}
	people := testsupport.Fetch(t, store, stage.MetadataPeople)
	if people.Len() != 3 {
		t.Fatalf("expected 3 people tasks, got %d", people.Len())
	}
	for _, name := range []stage.Name{stage.ArtworkScan, stage.TrailerScan} {
		testsupport.TaskFor(t, store, name, ref)
	}
}

func TestResolveVideoNoMatchFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	media, _ := store.UpsertMedia(ctx, filepath.Join(testsupport.LibraryRoot(cfg), "Zzyzx Road.mkv"), library.MediaMovie)
	ref := library.MediaRef(media.ID)
	testsupport.Enqueue(t, store, stage.MetadataVideo, stage.DomainVideo, ref)

	fake := newFake()
	testsupport.RunStage(t, store, stage.MetadataVideo, metadata.NewResolverWithClient(store, fake, nil).Handlers()[stage.MetadataVideo])

	task := testsupport.TaskFor(t, store, stage.MetadataVideo, ref)
	if task.Status != library.StatusError || task.ErrorMessage == "" {
		t.Fatalf("expected error status, got %+v", task)
	}
	if queries := fake.Queries(); len(queries) == 0 || queries[0] != "Zzyzx Road" {
		t.Fatalf("expected filename search, got %v", fake.Queries())
	}
}

func TestResolvePersonAndFilmography(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	person, err := store.UpsertPerson(ctx, library.Person{TMDBID: 1158, Name: "Al Pacino"})
	if err != nil {
		t.Fatalf("UpsertPerson: %v", err)
	}
	ref := library.PersonRef(person.ID)
	testsupport.Enqueue(t, store, stage.MetadataPeople, stage.DomainPerson, ref)

	handlers := metadata.NewResolverWithClient(store, newFake(), nil).Handlers()
	testsupport.RunStage(t, store, stage.MetadataPeople, handlers[stage.MetadataPeople])

	got, _ := store.GetPerson(ctx, person.ID)
	if got.Biography != "Actor." || got.Birthday != "1940-04-25" {
		t.Fatalf("person not updated: %+v", got)
	}
	testsupport.TaskFor(t, store, stage.ArtworkScan, ref)

	testsupport.RunStage(t, store, stage.MetadataFilmography, handlers[stage.MetadataFilmography])
	if task := testsupport.TaskFor(t, store, stage.MetadataFilmography, ref); task.Status != library.StatusDone {
		t.Fatalf("expected done filmography, got %s", task.Status)
	}
	entries, err := store.Filmography(ctx, person.ID)
	if err != nil || len(entries) != 2 {
		t.Fatalf("Filmography: %v %+v", err, entries)
	}
	if entries[0].Title != "Heat" || entries[1].Year != 1972 {
		t.Fatalf("unexpected ordering: %+v", entries)
	}
}

func TestBestMatch(t *testing.T) {
	results := newFake().SearchResults
	best := metadata.BestMatch("Heat", 1995, results)
	if best == nil || best.ID != 949 {
		t.Fatalf("expected 949, got %+v", best)
	}
	if metadata.BestMatch("Completely Different", 0, results) != nil {
		t.Fatal("expected no match")
	}
}
