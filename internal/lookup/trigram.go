package lookup

import (
	"strings"
	"unicode"
)

// Trigrams extracts the pg_trgm trigram set of s: the text is lower-cased
// and split into alphanumeric words, each word is padded with two leading
// blanks and one trailing blank, and every 3-rune window is collected.
func Trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			out[string(padded[i:i+3])] = struct{}{}
		}
	}
	return out
}

// Similarity returns the share of trigrams common to a and b, in [0, 1].
// Two strings without any trigram have similarity 0.
func Similarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	common := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			common++
		}
	}
	return float64(common) / float64(len(ta)+len(tb)-common)
}
