package filename

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics so "Amélie" and "amelie" compare equal.
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

func tokens(s string) map[string]float64 {
	counts := make(map[string]float64)
	for _, field := range strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if field == "the" || field == "a" || field == "an" {
			continue
		}
		counts[field]++
	}
	return counts
}

// Similarity scores two titles between 0 and 1 using the cosine of their
// token frequency vectors. Articles and diacritics are ignored.
func Similarity(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var dot, na, nb float64
	for token, count := range ta {
		na += count * count
		dot += count * tb[token]
	}
	for _, count := range tb {
		nb += count * count
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
