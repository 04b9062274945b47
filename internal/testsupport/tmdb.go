package testsupport

import (
	"context"
	"sync"

	"curator/internal/services"
	"curator/internal/tmdb"
)

// FakeTMDB is an in-memory tmdb.API. Unknown ids return services.ErrNotFound.
type FakeTMDB struct {
	SearchResults []tmdb.Result
	Titles        map[int64]tmdb.Result
	CastAndCrew   tmdb.Credits
	People        map[int64]tmdb.Person
	Combined      tmdb.CombinedCredits
	TitleImages   map[int64]tmdb.Images
	PeopleImages  map[int64]tmdb.Images
	TitleVideos   map[int64]tmdb.Videos

	mu      sync.Mutex
	queries []string
}

var _ tmdb.API = (*FakeTMDB)(nil)

// Queries returns the search queries received so far.
func (f *FakeTMDB) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *FakeTMDB) Search(_ context.Context, _ tmdb.Kind, query string, _ tmdb.SearchOptions) (*tmdb.Response, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return &tmdb.Response{Results: f.SearchResults}, nil
}

func (f *FakeTMDB) Details(_ context.Context, _ tmdb.Kind, id int64) (*tmdb.Result, error) {
	result, ok := f.Titles[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &result, nil
}

func (f *FakeTMDB) FindByIMDb(_ context.Context, imdbID string) (*tmdb.Result, error) {
	for _, result := range f.Titles {
		if result.IMDbID == imdbID {
			return &result, nil
		}
	}
	return nil, services.ErrNotFound
}

func (f *FakeTMDB) Credits(context.Context, tmdb.Kind, int64) (*tmdb.Credits, error) {
	credits := f.CastAndCrew
	return &credits, nil
}

func (f *FakeTMDB) Person(_ context.Context, id int64) (*tmdb.Person, error) {
	person, ok := f.People[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &person, nil
}

func (f *FakeTMDB) CombinedCredits(context.Context, int64) (*tmdb.CombinedCredits, error) {
	combined := f.Combined
	return &combined, nil
}

func (f *FakeTMDB) Images(_ context.Context, _ tmdb.Kind, id int64) (*tmdb.Images, error) {
	images := f.TitleImages[id]
	return &images, nil
}

func (f *FakeTMDB) PersonImages(_ context.Context, id int64) (*tmdb.Images, error) {
	images := f.PeopleImages[id]
	return &images, nil
}

func (f *FakeTMDB) Videos(_ context.Context, _ tmdb.Kind, id int64) (*tmdb.Videos, error) {
	videos := f.TitleVideos[id]
	return &videos, nil
}
