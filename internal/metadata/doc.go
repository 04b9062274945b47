// Package metadata implements the TMDB-backed metadata stages.
//
// metadata-video resolves a media row to a TMDB title (by stored TMDB id,
// IMDb id, or a title/year search scored with filename.Similarity) and
// records its cast and crew. metadata-people and metadata-filmography fill in
// the people discovered along the way.
package metadata
