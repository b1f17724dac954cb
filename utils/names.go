package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "José" -> "Jose").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// FoldName normalizes a person name for comparison: no diacritics, lower case,
// collapsed whitespace.
func FoldName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	return strings.Join(strings.Fields(name), " ")
}

// NameMatches reports whether query occurs in name, ignoring case and accents.
func NameMatches(name, query string) bool {
	q := FoldName(query)
	if q == "" {
		return true
	}
	return strings.Contains(FoldName(name), q)
}

// SpeakableText strips everything a speech synthesizer might choke on. The
// result never starts with a dash, so it cannot be read as a command option.
func SpeakableText(name string) string {
	name = RemoveDiacritics(name)
	out := strings.Map(func(r rune) rune {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return r
		case strings.ContainsRune(" -'.,!?", r):
			return r
		default:
			return -1
		}
	}, name)
	return strings.TrimLeft(out, "- ")
}
