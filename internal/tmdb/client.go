package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"curator/internal/services"
)

// API defines the TMDB operations used by the pipeline stages.
type API interface {
	Search(ctx context.Context, kind Kind, query string, opts SearchOptions) (*Response, error)
	Details(ctx context.Context, kind Kind, id int64) (*Result, error)
	FindByIMDb(ctx context.Context, imdbID string) (*Result, error)
	Credits(ctx context.Context, kind Kind, id int64) (*Credits, error)
	Person(ctx context.Context, id int64) (*Person, error)
	CombinedCredits(ctx context.Context, personID int64) (*CombinedCredits, error)
	Images(ctx context.Context, kind Kind, id int64) (*Images, error)
	PersonImages(ctx context.Context, personID int64) (*Images, error)
	Videos(ctx context.Context, kind Kind, id int64) (*Videos, error)
}

// Client provides access to the TMDB API.
type Client struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	language     string
	httpClient   *http.Client
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithImageBaseURL sets the base URL ImageURL resolves file paths against.
func WithImageBaseURL(base string) Option {
	return func(c *Client) {
		c.imageBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// New creates a TMDB client.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
	}
	client := &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		imageBaseURL: "https://image.tmdb.org/t/p/original",
		language:     strings.TrimSpace(language),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ImageURL resolves a TMDB image file path to a downloadable URL.
func (c *Client) ImageURL(filePath string) string {
	if filePath == "" {
		return ""
	}
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}
	return c.imageBaseURL + filePath
}

// Search performs a movie or tv search with optional filters.
func (c *Client) Search(ctx context.Context, kind Kind, query string, opts SearchOptions) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	params := url.Values{}
	params.Set("query", query)
	if opts.Year > 0 {
		if kind == KindTV {
			params.Set("first_air_date_year", strconv.Itoa(opts.Year))
		} else {
			params.Set("primary_release_year", strconv.Itoa(opts.Year))
		}
	}
	var payload Response
	if err := c.get(ctx, "/search/"+string(kindOrMovie(kind)), params, &payload); err != nil {
		return nil, err
	}
	for i := range payload.Results {
		if payload.Results[i].MediaType == "" {
			payload.Results[i].MediaType = string(kindOrMovie(kind))
		}
	}
	return &payload, nil
}

// Details fetches a movie or show by TMDB ID.
func (c *Client) Details(ctx context.Context, kind Kind, id int64) (*Result, error) {
	if id <= 0 {
		return nil, errors.New("tmdb id must be positive")
	}
	kind = kindOrMovie(kind)
	params := url.Values{}
	if kind == KindTV {
		params.Set("append_to_response", "external_ids")
	}
	var payload struct {
		Result
		ExternalIDs struct {
			IMDbID string `json:"imdb_id"`
		} `json:"external_ids"`
	}
	if err := c.get(ctx, fmt.Sprintf("/%s/%d", kind, id), params, &payload); err != nil {
		return nil, err
	}
	result := payload.Result
	if result.IMDbID == "" {
		result.IMDbID = payload.ExternalIDs.IMDbID
	}
	result.MediaType = string(kind)
	return &result, nil
}

// FindByIMDb resolves an IMDb identifier to the matching movie or show. A
// missing match returns nil without error.
func (c *Client) FindByIMDb(ctx context.Context, imdbID string) (*Result, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, errors.New("imdb id must not be empty")
	}
	params := url.Values{}
	params.Set("external_source", "imdb_id")
	var payload struct {
		MovieResults []Result `json:"movie_results"`
		TVResults    []Result `json:"tv_results"`
	}
	if err := c.get(ctx, "/find/"+url.PathEscape(imdbID), params, &payload); err != nil {
		return nil, err
	}
	switch {
	case len(payload.MovieResults) > 0:
		result := payload.MovieResults[0]
		result.MediaType = string(KindMovie)
		return &result, nil
	case len(payload.TVResults) > 0:
		result := payload.TVResults[0]
		result.MediaType = string(KindTV)
		return &result, nil
	default:
		return nil, nil
	}
}

// Credits fetches the cast and crew of a title.
func (c *Client) Credits(ctx context.Context, kind Kind, id int64) (*Credits, error) {
	if id <= 0 {
		return nil, errors.New("tmdb id must be positive")
	}
	var payload Credits
	if err := c.get(ctx, fmt.Sprintf("/%s/%d/credits", kindOrMovie(kind), id), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Person fetches person details.
func (c *Client) Person(ctx context.Context, id int64) (*Person, error) {
	if id <= 0 {
		return nil, errors.New("person id must be positive")
	}
	var payload Person
	if err := c.get(ctx, fmt.Sprintf("/person/%d", id), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// CombinedCredits fetches every movie and tv credit of a person.
func (c *Client) CombinedCredits(ctx context.Context, personID int64) (*CombinedCredits, error) {
	if personID <= 0 {
		return nil, errors.New("person id must be positive")
	}
	var payload CombinedCredits
	if err := c.get(ctx, fmt.Sprintf("/person/%d/combined_credits", personID), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Images fetches the posters, backdrops and logos of a title.
func (c *Client) Images(ctx context.Context, kind Kind, id int64) (*Images, error) {
	if id <= 0 {
		return nil, errors.New("tmdb id must be positive")
	}
	params := url.Values{}
	params.Set("include_image_language", c.imageLanguages())
	var payload Images
	if err := c.getWithoutLanguage(ctx, fmt.Sprintf("/%s/%d/images", kindOrMovie(kind), id), params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// PersonImages fetches the profile images of a person.
func (c *Client) PersonImages(ctx context.Context, personID int64) (*Images, error) {
	if personID <= 0 {
		return nil, errors.New("person id must be positive")
	}
	var payload Images
	if err := c.getWithoutLanguage(ctx, fmt.Sprintf("/person/%d/images", personID), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Videos fetches the trailers and other videos of a title.
func (c *Client) Videos(ctx context.Context, kind Kind, id int64) (*Videos, error) {
	if id <= 0 {
		return nil, errors.New("tmdb id must be positive")
	}
	var payload Videos
	if err := c.get(ctx, fmt.Sprintf("/%s/%d/videos", kindOrMovie(kind), id), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) imageLanguages() string {
	lang := c.language
	if idx := strings.IndexByte(lang, '-'); idx > 0 {
		lang = lang[:idx]
	}
	if lang == "" {
		return "null"
	}
	return lang + ",null"
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if c.language != "" {
		params.Set("language", c.language)
	}
	return c.getWithoutLanguage(ctx, path, params, out)
}

func (c *Client) getWithoutLanguage(ctx context.Context, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return services.Wrap(services.ErrTransient, "tmdb", path, fmt.Sprintf("latency=%v", latency), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "tmdb", path, "returned 404", nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "tmdb", path, fmt.Sprintf("returned %d (latency=%v)", resp.StatusCode, latency), nil)
	case resp.StatusCode != http.StatusOK:
		return services.Wrap(services.ErrExternalTool, "tmdb", path, fmt.Sprintf("returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tmdb %s response: %w", path, err)
	}
	return nil
}

func kindOrMovie(kind Kind) Kind {
	if kind == KindTV {
		return KindTV
	}
	return KindMovie
}
