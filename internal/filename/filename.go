// Package filename derives titles, years and episode numbers from media file
// and folder names, and scores how closely two titles match.
package filename

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Info is what a media path says about its content.
type Info struct {
	Title   string
	Year    int
	Season  int
	Episode int
	// TMDBID and IMDbID come from tags such as "{tmdb-949}" or "[imdbid-tt0113277]".
	TMDBID int64
	IMDbID string
}

// IsEpisode reports whether the path carried a season/episode marker.
func (i Info) IsEpisode() bool {
	return i.Episode > 0
}

var (
	episodePattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])s(\d{1,2})[ ._-]?e(\d{1,3})(?:[^0-9]|$)`)
	altEpisode     = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(\d{1,2})x(\d{2,3})(?:[^0-9]|$)`)
	yearPattern    = regexp.MustCompile(`[\(\[ ._-]((?:19|20)\d{2})(?:[\)\] ._-]|$)`)
	tmdbTag        = regexp.MustCompile(`(?i)[\[{]tmdb(?:id)?[-=](\d+)[\]}]`)
	imdbTag        = regexp.MustCompile(`(?i)[\[{]imdb(?:id)?[-=](tt\d+)[\]}]`)
	bareIMDb       = regexp.MustCompile(`\btt\d{7,8}\b`)
	seasonDir      = regexp.MustCompile(`(?i)^(season|series|staffel)[ ._-]*\d+$|^s\d{1,2}$|^specials$`)
	// Release noise: everything from the first of these tokens on is dropped.
	noisePattern = regexp.MustCompile(`(?i)[ ._-](2160p|1080p|1080i|720p|576p|480p|4k|uhd|hdr10?|dv|bluray|blu-ray|bdrip|brrip|web-?dl|webrip|hdtv|dvdrip|remux|x264|x265|h\.?264|h\.?265|hevc|avc|aac|ac3|dts|truehd|atmos|proper|repack|extended|unrated|directors\.cut)\b`)
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// Parse derives Info from a media path. Movies are named after the file, or
// the parent folder when the file name carries no year; episodes are named
// after the show folder.
func Parse(path string) Info {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	dir := filepath.Base(filepath.Dir(path))

	info := Info{}
	info.TMDBID, info.IMDbID = parseIDs(stem)
	if info.TMDBID == 0 && info.IMDbID == "" {
		info.TMDBID, info.IMDbID = parseIDs(dir)
	}

	if m := episodePattern.FindStringSubmatchIndex(stem); m != nil {
		info.Season, _ = strconv.Atoi(stem[m[2]:m[3]])
		info.Episode, _ = strconv.Atoi(stem[m[4]:m[5]])
		info.Title, info.Year = titleAndYear(stem[:m[0]])
	} else if m := altEpisode.FindStringSubmatchIndex(stem); m != nil {
		info.Season, _ = strconv.Atoi(stem[m[2]:m[3]])
		info.Episode, _ = strconv.Atoi(stem[m[4]:m[5]])
		info.Title, info.Year = titleAndYear(stem[:m[0]])
	}
	if info.IsEpisode() {
		if info.Title == "" {
			show := dir
			if seasonDir.MatchString(show) {
				show = filepath.Base(filepath.Dir(filepath.Dir(path)))
			}
			info.Title, info.Year = titleAndYear(show)
		}
		return info
	}

	info.Title, info.Year = titleAndYear(stem)
	if info.Year == 0 && dir != "." && dir != string(filepath.Separator) {
		if title, year := titleAndYear(dir); year > 0 {
			info.Title, info.Year = title, year
		}
	}
	return info
}

func parseIDs(value string) (int64, string) {
	var tmdbID int64
	if m := tmdbTag.FindStringSubmatch(value); m != nil {
		tmdbID, _ = strconv.ParseInt(m[1], 10, 64)
	}
	imdbID := ""
	if m := imdbTag.FindStringSubmatch(value); m != nil {
		imdbID = strings.ToLower(m[1])
	} else if m := bareIMDb.FindString(value); m != "" {
		imdbID = m
	}
	return tmdbID, imdbID
}

func titleAndYear(raw string) (string, int) {
	raw = tmdbTag.ReplaceAllString(raw, " ")
	raw = imdbTag.ReplaceAllString(raw, " ")
	raw = bareIMDb.ReplaceAllString(raw, " ")
	if loc := noisePattern.FindStringIndex(raw); loc != nil {
		raw = raw[:loc[0]]
	}

	year := 0
	// The last plausible year wins so titles such as "2001 A Space Odyssey (1968)" keep their number.
	matches := yearPattern.FindAllStringSubmatchIndex(" "+raw, -1)
	if len(matches) > 0 {
		last := matches[len(matches)-1]
		start := last[2] - 1
		if start > 0 {
			year, _ = strconv.Atoi(raw[start : last[3]-1])
			raw = raw[:start]
		}
	}
	return CleanTitle(raw), year
}

// CleanTitle turns separator-laden names into a title-cased display title.
func CleanTitle(raw string) string {
	var cleaned strings.Builder
	prevSpace := true
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' || r == '&' || r == '!' || r == ',':
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == '(' || r == ')' || r == '[' || r == ']':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return ""
	}
	return titleCaser.String(title)
}
