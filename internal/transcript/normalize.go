package transcript

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeToken case-folds a word and strips punctuation and symbols so
// "Flubber," and "flubber" compare equal. Returns "" for pure punctuation.
func NormalizeToken(text string) string {
	folded := cases.Fold().String(norm.NFKC.String(text))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhrase splits a phrase into normalized tokens, dropping empties.
func NormalizePhrase(phrase string) []string {
	fields := strings.Fields(phrase)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if token := NormalizeToken(field); token != "" {
			out = append(out, token)
		}
	}
	return out
}
