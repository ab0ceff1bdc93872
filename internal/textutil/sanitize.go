package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const unknownName = "unknown"

// PathSegment reduces an identifier to one path component usable both on
// local disk and as an object key segment. Path separators and drive colons
// turn into dashes; shell and Windows reserved characters are removed.
func PathSegment(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*':
			b.WriteByte('-')
		case r == 0 || strings.ContainsRune(`?"<>|`, r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if strings.Trim(out, ".") == "" {
		return unknownName
	}
	return out
}

// SanitizeToken folds value into a lowercase [a-z0-9_-] token for log keys
// and metric-style names. Accents are stripped first, so "Épisode" becomes
// "episode"; every other rune collapses to an underscore.
func SanitizeToken(value string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.TrimSpace(value)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if out := strings.Trim(b.String(), "_-"); out != "" {
		return out
	}
	return unknownName
}
