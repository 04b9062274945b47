package tmdb

import (
	"strconv"
	"strings"
)

// Result represents a single TMDB search match or details payload.
type Result struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	MediaType    string  `json:"media_type"`
	Popularity   float64 `json:"popularity"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
	IMDbID       string  `json:"imdb_id"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
}

// DisplayTitle returns the movie title or show name.
func (r Result) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// Year returns the release or first-air year, or 0 when unknown.
func (r Result) Year() int {
	return yearOf(r.ReleaseDate, r.FirstAirDate)
}

// Response models the TMDB paginated search response.
type Response struct {
	Page         int      `json:"page"`
	Results      []Result `json:"results"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
}

// SearchOptions contains optional parameters for TMDB searches.
type SearchOptions struct {
	Year int
}

// CastMember is one cast entry of a credits payload.
type CastMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character"`
	Order       int    `json:"order"`
	ProfilePath string `json:"profile_path"`
}

// CrewMember is one crew entry of a credits payload.
type CrewMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Job         string `json:"job"`
	Department  string `json:"department"`
	ProfilePath string `json:"profile_path"`
}

// Credits lists the cast and crew of a title.
type Credits struct {
	ID   int64        `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Person is a TMDB person record.
type Person struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Biography    string `json:"biography"`
	Birthday     string `json:"birthday"`
	PlaceOfBirth string `json:"place_of_birth"`
	ProfilePath  string `json:"profile_path"`
	IMDbID       string `json:"imdb_id"`
}

// CreditedTitle is one entry of a person's combined credits.
type CreditedTitle struct {
	ID           int64  `json:"id"`
	MediaType    string `json:"media_type"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
	Character    string `json:"character"`
	Job          string `json:"job"`
}

// DisplayTitle returns the movie title or show name.
func (c CreditedTitle) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Name
}

// Year returns the release or first-air year, or 0 when unknown.
func (c CreditedTitle) Year() int {
	return yearOf(c.ReleaseDate, c.FirstAirDate)
}

// CombinedCredits lists every title a person appeared in or worked on.
type CombinedCredits struct {
	ID   int64           `json:"id"`
	Cast []CreditedTitle `json:"cast"`
	Crew []CreditedTitle `json:"crew"`
}

// Image is one entry of an images payload.
type Image struct {
	FilePath    string  `json:"file_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Language    string  `json:"iso_639_1"`
	VoteAverage float64 `json:"vote_average"`
}

// Images groups the artwork TMDB knows for a title or person.
type Images struct {
	ID        int64   `json:"id"`
	Posters   []Image `json:"posters"`
	Backdrops []Image `json:"backdrops"`
	Logos     []Image `json:"logos"`
	Profiles  []Image `json:"profiles"`
}

// Video is one entry of a videos payload.
type Video struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
	Language string `json:"iso_639_1"`
}

// Videos lists the videos of a title.
type Videos struct {
	ID      int64   `json:"id"`
	Results []Video `json:"results"`
}

// Kind selects the movie or tv branch of the API.
type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

func yearOf(dates ...string) int {
	for _, date := range dates {
		date = strings.TrimSpace(date)
		if len(date) < 4 {
			continue
		}
		if year, err := strconv.Atoi(date[:4]); err == nil {
			return year
		}
	}
	return 0
}
