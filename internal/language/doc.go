// Package language normalizes the language codes found in subtitle file
// names, ffprobe stream tags and TMDB payloads to ISO 639-1.
package language
