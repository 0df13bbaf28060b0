package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases the input and strips combining diacritical marks so that
// queries like "agua" match "Água". Invalid input falls back to plain
// lowercasing.
func Fold(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	folded, _, err := transform.String(foldTransformer, lowered)
	if err != nil {
		return lowered
	}
	return folded
}

// ContainsFold reports whether haystack contains needle ignoring case and
// diacritics. An empty needle matches everything.
func ContainsFold(haystack, needle string) bool {
	needle = Fold(needle)
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), needle)
}
