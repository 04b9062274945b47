// Package tmdb is a small client for the TMDB v3 API covering the lookups the
// metadata, artwork and trailer stages need: search, details, credits, people,
// images and videos.
package tmdb
