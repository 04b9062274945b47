package staging

import (
	"path/filepath"
	"strings"
)

// File types staging recognizes. Each maps to one import stage.
const (
	TypeVideo    = "video"
	TypeNFO      = "nfo"
	TypeImage    = "image"
	TypeWatched  = "watched"
	TypeSubtitle = "subtitle"
)

var extensionTypes = map[string]string{
	".mkv":     TypeVideo,
	".mp4":     TypeVideo,
	".m4v":     TypeVideo,
	".avi":     TypeVideo,
	".mov":     TypeVideo,
	".wmv":     TypeVideo,
	".ts":      TypeVideo,
	".m2ts":    TypeVideo,
	".mpg":     TypeVideo,
	".mpeg":    TypeVideo,
	".webm":    TypeVideo,
	".nfo":     TypeNFO,
	".jpg":     TypeImage,
	".jpeg":    TypeImage,
	".png":     TypeImage,
	".webp":    TypeImage,
	".tbn":     TypeImage,
	".srt":     TypeSubtitle,
	".ass":     TypeSubtitle,
	".ssa":     TypeSubtitle,
	".sub":     TypeSubtitle,
	".vtt":     TypeSubtitle,
	".sup":     TypeSubtitle,
	".watched": TypeWatched,
}

// Classify returns the staging file type of path. Hidden files, partial
// downloads and samples are ignored.
func Classify(path string) (string, bool) {
	base := filepath.Base(path)
	if base == "" || strings.HasPrefix(base, ".") && !strings.EqualFold(base, ".watched") {
		return "", false
	}
	lower := strings.ToLower(base)
	for _, suffix := range []string{".part", ".tmp", ".!qb", ".crdownload"} {
		if strings.HasSuffix(lower, suffix) {
			return "", false
		}
	}
	if lower == ".watched" {
		return TypeWatched, true
	}
	fileType, ok := extensionTypes[filepath.Ext(lower)]
	if !ok {
		return "", false
	}
	if fileType == TypeVideo && isSample(lower) {
		return "", false
	}
	return fileType, true
}

func isSample(lowerBase string) bool {
	stem := strings.TrimSuffix(lowerBase, filepath.Ext(lowerBase))
	return stem == "sample" || strings.HasSuffix(stem, "-sample") || strings.HasSuffix(stem, ".sample")
}

// skipDir reports whether a directory is never scanned.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch strings.ToLower(name) {
	case "@eadir", "#recycle", "lost+found", "$recycle.bin":
		return true
	}
	return false
}
