package language

import (
	"path/filepath"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ISO 639-2/B codes and English names that x/text does not parse as bases.
var aliases = map[string]string{
	"fre":        "fr",
	"ger":        "de",
	"dut":        "nl",
	"chi":        "zh",
	"cze":        "cs",
	"gre":        "el",
	"per":        "fa",
	"rum":        "ro",
	"slo":        "sk",
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"dutch":      "nl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
	"polish":     "pl",
}

// ToISO2 converts a language code, tag or English name to ISO 639-1. It
// returns the empty string for unrecognized input.
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if mapped, ok := aliases[code]; ok {
		return mapped
	}
	if base, err := xlanguage.ParseBase(code); err == nil {
		return base.String()
	}
	if tag, err := xlanguage.Parse(code); err == nil {
		if base, conf := tag.Base(); conf != xlanguage.No {
			return base.String()
		}
	}
	return ""
}

// ToISO3 converts a language code to ISO 639-2/T, or "und" when unknown.
func ToISO3(code string) string {
	iso2 := ToISO2(code)
	if iso2 == "" {
		return "und"
	}
	base, err := xlanguage.ParseBase(iso2)
	if err != nil {
		return "und"
	}
	return base.ISO3()
}

// DisplayName returns the English name of a language code.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	iso2 := ToISO2(code)
	if iso2 != "" {
		if base, err := xlanguage.ParseBase(iso2); err == nil {
			if name := display.English.Languages().Name(base); name != "" {
				return name
			}
		}
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// ExtractFromTags extracts and normalizes the language from stream metadata tags.
func ExtractFromTags(tags map[string]string) string {
	keys := []string{"language", "LANGUAGE", "Language", "language_ietf", "lang", "LANG"}
	for _, key := range keys {
		if value, ok := tags[key]; ok {
			value = strings.TrimSpace(strings.ReplaceAll(value, "\u0000", ""))
			if value != "" {
				return ToISO2(value)
			}
		}
	}
	return ""
}

// SubtitleInfo is what a subtitle file name says about its track.
type SubtitleInfo struct {
	Language string
	Forced   bool
	SDH      bool
}

// FromSubtitleName reads the language and flags from a subtitle name such as
// "Movie.en.forced.srt" or "Movie.German.sdh.ass". Tokens are read from the
// end of the stem until one is neither a flag nor a language.
func FromSubtitleName(path string) SubtitleInfo {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, ".")

	var info SubtitleInfo
	for i := len(parts) - 1; i > 0; i-- {
		token := strings.ToLower(strings.TrimSpace(parts[i]))
		switch token {
		case "forced", "foreign":
			info.Forced = true
			continue
		case "sdh", "cc", "hi":
			info.SDH = true
			continue
		case "default":
			continue
		}
		if info.Language == "" && len(token) >= 2 {
			if iso2 := ToISO2(token); iso2 != "" {
				info.Language = iso2
				continue
			}
		}
		break
	}
	return info
}
