package moderation

import (
	"strings"
	"unicode"
)

// normalize case-folds a message and strips everything that is not a letter
// or digit, so "S.B"/"s b"/"s-b" all collapse to "sb". Evasion by spacing
// or punctuation inside a banned term is defeated before matching.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// matchKeyword returns the first configured keyword contained in the
// normalized text, or "" when none match. Keywords are normalized with the
// same rules as the text.
func matchKeyword(normalized string, keywords []string) string {
	for _, kw := range keywords {
		n := normalize(kw)
		if n == "" {
			continue
		}
		if strings.Contains(normalized, n) {
			return kw
		}
	}
	return ""
}
